// Package discount implements the discount rule catalog and the pure
// resolution engine that computes per-line and order-level discounts.
package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type selects which products a rule targets.
type Type string

const (
	AllProducts        Type = "ALL_PRODUCTS"
	SelectedProducts   Type = "SELECTED_PRODUCTS"
	SelectedCategories Type = "SELECTED_CATEGORIES"
)

// ValueType selects how the rule's value is interpreted.
type ValueType string

const (
	Percentage  ValueType = "PERCENTAGE"
	FixedAmount ValueType = "FIXED_AMOUNT"
)

// Scope selects whether the rule discounts individual lines or the order total.
type Scope string

const (
	PerProduct Scope = "PER_PRODUCT"
	OrderTotal Scope = "ORDER_TOTAL"
)

var (
	// ErrInvalidPercentage is returned when a percentage rule exceeds 100.
	ErrInvalidPercentage = errors.New("percentage value must not exceed 100")
	// ErrInvalidWindow is returned when a rule's end date precedes its start date.
	ErrInvalidWindow = errors.New("end date must not precede start date")
)

// Rule is a time-boxed, optionally voucher-gated discount. ProductIDs and
// CategoryIDs are the resolved association sets for SELECTED_* rules.
type Rule struct {
	ID            string
	Name          string
	Type          Type
	ValueType     ValueType
	Value         decimal.Decimal
	Scope         Scope
	StartDate     time.Time
	EndDate       time.Time
	VoucherCode   string // empty = auto-apply
	MaxUsageCount int    // 0 = unlimited
	UsageCount    int
	MinOrderValue decimal.Decimal
	Active        bool
	ProductIDs    []string
	CategoryIDs   []string
}

// Validate checks rule-level invariants enforced at creation time.
func (r *Rule) Validate() error {
	if r.ValueType == Percentage && r.Value.GreaterThan(decimal.NewFromInt(100)) {
		return ErrInvalidPercentage
	}
	if r.EndDate.Before(r.StartDate) {
		return ErrInvalidWindow
	}
	return nil
}

// InWindow reports whether the rule's validity window contains now.
func (r *Rule) InWindow(now time.Time) bool {
	return !now.Before(r.StartDate) && !now.After(r.EndDate)
}

// Exhausted reports whether the rule's usage cap has been reached.
func (r *Rule) Exhausted() bool {
	return r.MaxUsageCount > 0 && r.UsageCount >= r.MaxUsageCount
}

// Repository provides lookup and mutation of discount rules.
type Repository interface {
	// ActiveRules returns active rules whose validity window contains at,
	// with ProductIDs/CategoryIDs association sets resolved.
	ActiveRules(ctx context.Context, at time.Time) ([]Rule, error)
	// IncrementUsage bumps the usage counter of the given rule.
	IncrementUsage(ctx context.Context, id string) error
	Create(ctx context.Context, r *Rule) error
	Get(ctx context.Context, id string) (*Rule, error)
}
