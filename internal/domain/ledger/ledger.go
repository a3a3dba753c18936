// Package ledger posts balanced double-entry accounting pairs for paid orders.
package ledger

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the accounting side of an entry.
type Side string

const (
	Debit  Side = "DEBIT"
	Credit Side = "CREDIT"
)

// Static chart-of-accounts codes used by the order flow. The payment method
// to cash-account mapping is configuration, not data.
const (
	AccountCashOnHand   = "1000"
	AccountCardClearing = "1010"
	AccountBankTransfer = "1020"
	AccountSalesRevenue = "4000"
)

var (
	// ErrAlreadyPosted is returned when entries for the order already exist.
	// Callers may treat it as success-equivalent.
	ErrAlreadyPosted = errors.New("ledger entries already posted for order")
	// ErrUnknownPaymentMethod is returned for a method with no account mapping.
	ErrUnknownPaymentMethod = errors.New("no cash account mapped for payment method")
	// ErrNotPosted is returned when reversing an order with no prior posting.
	ErrNotPosted = errors.New("no ledger entries to reverse for order")
)

// cashAccounts maps payment method names to debit accounts.
var cashAccounts = map[string]string{
	"CASH":     AccountCashOnHand,
	"CARD":     AccountCardClearing,
	"TRANSFER": AccountBankTransfer,
}

// Entry is one half of a balanced posting pair.
type Entry struct {
	ID          string
	OrderID     string
	AccountCode string
	Side        Side
	Amount      decimal.Decimal
	Reversal    bool
	Memo        string
	PostedAt    time.Time
}

// Repository defines persistence for ledger entries. PostPair must write both
// entries atomically within the transaction carried by ctx.
type Repository interface {
	ExistsForOrder(ctx context.Context, orderID string) (bool, error)
	PostPair(ctx context.Context, debit, credit Entry) error
	EntriesForOrder(ctx context.Context, orderID string) ([]Entry, error)
}

// Poster posts sale and reversal pairs, idempotently per order.
type Poster struct {
	repo Repository
	now  func() time.Time
}

// NewPoster creates a Poster backed by the given repository.
func NewPoster(repo Repository) *Poster {
	return &Poster{repo: repo, now: time.Now}
}

// PostSale writes the balanced pair for a paid order: debit the cash account
// selected by the payment method, credit sales revenue, both for the payable
// amount. A second call for the same order returns ErrAlreadyPosted and
// writes nothing.
func (p *Poster) PostSale(ctx context.Context, orderID string, paymentMethod string, amount decimal.Decimal) error {
	cashAccount, ok := cashAccounts[paymentMethod]
	if !ok {
		return errors.Wrapf(ErrUnknownPaymentMethod, "method %q", paymentMethod)
	}

	exists, err := p.repo.ExistsForOrder(ctx, orderID)
	if err != nil {
		return errors.Wrap(err, "check existing entries")
	}
	if exists {
		return ErrAlreadyPosted
	}

	now := p.now()
	debit := Entry{
		ID:          uuid.New().String(),
		OrderID:     orderID,
		AccountCode: cashAccount,
		Side:        Debit,
		Amount:      amount,
		Memo:        "order payment",
		PostedAt:    now,
	}
	credit := Entry{
		ID:          uuid.New().String(),
		OrderID:     orderID,
		AccountCode: AccountSalesRevenue,
		Side:        Credit,
		Amount:      amount,
		Memo:        "order payment",
		PostedAt:    now,
	}
	if err := p.repo.PostPair(ctx, debit, credit); err != nil {
		return errors.Wrap(err, "post sale pair")
	}
	return nil
}

// PostReversal writes the mirror pair for a canceled, receipted order: equal
// in magnitude and opposite in sign to the original posting. It refuses to
// reverse an order that was never posted, and will not reverse twice.
func (p *Poster) PostReversal(ctx context.Context, orderID string) error {
	entries, err := p.repo.EntriesForOrder(ctx, orderID)
	if err != nil {
		return errors.Wrap(err, "load entries")
	}
	if len(entries) == 0 {
		return ErrNotPosted
	}

	var debit, credit *Entry
	for i := range entries {
		e := &entries[i]
		if e.Reversal {
			return ErrAlreadyPosted
		}
		switch e.Side {
		case Debit:
			debit = e
		case Credit:
			credit = e
		}
	}
	if debit == nil || credit == nil {
		return errors.Errorf("unbalanced ledger state for order %s", orderID)
	}

	now := p.now()
	revDebit := Entry{
		ID:          uuid.New().String(),
		OrderID:     orderID,
		AccountCode: credit.AccountCode,
		Side:        Debit,
		Amount:      credit.Amount,
		Reversal:    true,
		Memo:        "order cancellation reversal",
		PostedAt:    now,
	}
	revCredit := Entry{
		ID:          uuid.New().String(),
		OrderID:     orderID,
		AccountCode: debit.AccountCode,
		Side:        Credit,
		Amount:      debit.Amount,
		Reversal:    true,
		Memo:        "order cancellation reversal",
		PostedAt:    now,
	}
	if err := p.repo.PostPair(ctx, revDebit, revCredit); err != nil {
		return errors.Wrap(err, "post reversal pair")
	}
	return nil
}
