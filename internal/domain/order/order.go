package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Class distinguishes how an order is handed to the customer. Notification
// templates may be restricted to a single class.
type Class string

const (
	ClassDelivery Class = "DELIVERY"
	ClassPickup   Class = "PICKUP"
)

// PaymentMethod selects which cash account a paid order is posted against.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "CASH"
	PaymentCard     PaymentMethod = "CARD"
	PaymentTransfer PaymentMethod = "TRANSFER"
)

// Order is the aggregate root for a customer order. Instances returned from
// Service methods are immutable snapshots; every state transition produces a
// fresh snapshot, never a mutation of a previously returned value.
type Order struct {
	ID            string
	Number        string
	CustomerID    string
	Class         Class
	Items         []Item
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	DeliveryFee   decimal.Decimal
	Total         decimal.Decimal

	FulfillmentStatus FulfillmentStatus
	PaymentStatus     PaymentStatus
	PaymentMethod     PaymentMethod

	VoucherCode   string
	AffiliateID   string
	ReceiptNumber string

	// Per-state timestamps, each set at most once and never cleared.
	PlacedAt     time.Time
	ConfirmedAt  *time.Time
	ProcessingAt *time.Time
	ShippingAt   *time.Time
	DeliveredAt  *time.Time
	CanceledAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is a line item owned by an Order. The unit price is a snapshot taken
// at order time and does not track later catalog changes.
type Item struct {
	ID              string
	ProductID       string
	Quantity        int
	UnitPrice       decimal.Decimal
	DiscountApplied decimal.Decimal
	LineTotal       decimal.Decimal
}

// AppliedDiscount is the write-once audit record of a discount rule applied
// to an order. Kept for reporting, never used for recomputation.
type AppliedDiscount struct {
	DiscountID string
	Amount     decimal.Decimal
}

// Receipted reports whether a receipt number has been issued for the order.
// The receipt gates ledger posting idempotence.
func (o *Order) Receipted() bool {
	return o.ReceiptNumber != ""
}

// Repository defines persistence operations for orders. Mutating methods
// participate in the transaction carried by ctx when one is active.
type Repository interface {
	Create(ctx context.Context, o *Order, applied []AppliedDiscount) error
	Get(ctx context.Context, id string) (*Order, error)
	// GetForUpdate locks the order row for the remainder of the transaction
	// so concurrent transitions serialize against committed state.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	// NextOrderNumber advances and returns the per-year order sequence.
	NextOrderNumber(ctx context.Context, year int) (int64, error)
	// NextReceiptNumber advances and returns the per-year receipt sequence.
	NextReceiptNumber(ctx context.Context, year int) (int64, error)
}
