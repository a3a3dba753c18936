package notification

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/retail-orders/internal/domain/order"
)

// MaxMessageLength caps the rendered SMS body. Creation rejects templates
// that can only render over-length messages.
const MaxMessageLength = 800

// Template is an admin-configured message. A template with an empty
// OrderClass applies to every order class.
type Template struct {
	ID         string
	Event      Event
	OrderClass order.Class // empty = wildcard
	Body       string
	Active     bool
	SendCount  int // number of outbox rows per trigger
	SendDelay  int // minutes between sends
	Priority   int // ascending = rendered earlier
	CreatedAt  time.Time
}

// UnknownTokenError indicates a template body references a placeholder that
// cannot be resolved from order or customer data.
type UnknownTokenError struct {
	Token string
}

func (e *UnknownTokenError) Error() string {
	return fmt.Sprintf("unknown template token %q", e.Token)
}

var (
	// ErrEmptyBody is returned for a template with no message body.
	ErrEmptyBody = errors.New("template body required")
	// ErrBodyTooLong is returned when the raw body exceeds MaxMessageLength.
	ErrBodyTooLong = errors.New("template body too long")
	// ErrInvalidSendCount is returned for a non-positive send count.
	ErrInvalidSendCount = errors.New("send count must be at least 1")
)

// tokenPattern matches {{token}} placeholders.
var tokenPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// knownTokens is the closed set of placeholders resolvable at render time.
var knownTokens = map[string]struct{}{
	"customerName":  {},
	"customerPhone": {},
	"orderNumber":   {},
	"orderTotal":    {},
	"subtotal":      {},
	"discountTotal": {},
	"deliveryFee":   {},
	"voucherCode":   {},
	"receiptNumber": {},
	"orderClass":    {},
}

// Validate enforces creation-time invariants: non-empty body within limits,
// positive send count, and no unknown tokens. Unknown tokens are rejected
// here even though rendering later resolves them to empty strings.
func (t *Template) Validate() error {
	if t.Body == "" {
		return ErrEmptyBody
	}
	if len(t.Body) > MaxMessageLength {
		return ErrBodyTooLong
	}
	if t.SendCount < 1 {
		return ErrInvalidSendCount
	}
	for _, m := range tokenPattern.FindAllStringSubmatch(t.Body, -1) {
		if _, ok := knownTokens[m[1]]; !ok {
			return &UnknownTokenError{Token: m[1]}
		}
	}
	return nil
}

// Repository defines persistence for notification templates.
type Repository interface {
	// ActiveForEvent returns active templates matching the event whose class
	// filter is empty or equals class, ordered by priority ascending.
	ActiveForEvent(ctx context.Context, event Event, class order.Class) ([]Template, error)
	Create(ctx context.Context, t *Template) error
}
