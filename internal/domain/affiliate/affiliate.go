// Package affiliate resolves voucher codes to marketers and accrues their
// order commissions.
package affiliate

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Marketer is an affiliate whose voucher code links orders to a commission.
type Marketer struct {
	ID                   string
	Name                 string
	Code                 string
	CommissionPercentage decimal.Decimal
	Active               bool
}

// Commission is the single accrued commission row for an order.
type Commission struct {
	OrderID     string
	AffiliateID string
	Amount      decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ErrNotFound is returned when no marketer matches a voucher code.
var ErrNotFound = errors.New("affiliate not found")

// Repository provides marketer lookup and commission persistence.
type Repository interface {
	// FindActiveByCode resolves a voucher code to an active marketer,
	// case-insensitively. Returns ErrNotFound when nothing matches.
	FindActiveByCode(ctx context.Context, code string) (*Marketer, error)
	// UpsertCommission creates or replaces the commission row for an order.
	// At most one row per order ever exists.
	UpsertCommission(ctx context.Context, c Commission) error
}

// Accruer records commissions for voucher-linked orders.
type Accruer struct {
	repo Repository
	now  func() time.Time
}

// NewAccruer creates an Accruer backed by the given repository.
func NewAccruer(repo Repository) *Accruer {
	return &Accruer{repo: repo, now: time.Now}
}

// Accrue resolves the voucher code and upserts the order's commission,
// computed on the pre-discount order value. A voucher that does not belong
// to an active marketer accrues nothing and is not an error. The returned
// marketer ID is empty when no commission was recorded.
func (a *Accruer) Accrue(ctx context.Context, orderID, voucherCode string, preDiscountTotal decimal.Decimal) (string, error) {
	if voucherCode == "" {
		return "", nil
	}

	m, err := a.repo.FindActiveByCode(ctx, voucherCode)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", errors.Wrap(err, "resolve affiliate")
	}

	amount := preDiscountTotal.Mul(m.CommissionPercentage).Div(decimal.NewFromInt(100)).Round(2)
	now := a.now()
	c := Commission{
		OrderID:     orderID,
		AffiliateID: m.ID,
		Amount:      amount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.repo.UpsertCommission(ctx, c); err != nil {
		return "", errors.Wrap(err, "upsert commission")
	}
	return m.ID, nil
}
