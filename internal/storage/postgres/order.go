package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/retail-orders/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (
		id, number, customer_id, class, subtotal, discount_total, delivery_fee, total,
		fulfillment_status, payment_status, payment_method, voucher_code, affiliate_id,
		receipt_number, placed_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), $14, $15, $16, $17)`

	insertOrderItemSQL = `INSERT INTO order_items (
		id, order_id, product_id, quantity, unit_price, discount_applied, line_total)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertOrderDiscountSQL = `INSERT INTO order_discounts (order_id, discount_id, amount)
	VALUES ($1, $2, $3)`

	selectOrderSQL = `SELECT id, number, customer_id, class, subtotal, discount_total,
		delivery_fee, total, fulfillment_status, payment_status, payment_method,
		voucher_code, COALESCE(affiliate_id, ''), receipt_number, placed_at,
		confirmed_at, processing_at, shipping_at, delivered_at, canceled_at,
		created_at, updated_at
	FROM orders WHERE id = $1`

	selectOrderItemsSQL = `SELECT id, product_id, quantity, unit_price, discount_applied, line_total
	FROM order_items WHERE order_id = $1 ORDER BY id`

	updateOrderSQL = `UPDATE orders SET
		fulfillment_status = $2, payment_status = $3, payment_method = $4,
		affiliate_id = NULLIF($5, ''), receipt_number = $6,
		confirmed_at = $7, processing_at = $8, shipping_at = $9,
		delivered_at = $10, canceled_at = $11, updated_at = $12
	WHERE id = $1`

	nextSequenceSQL = `INSERT INTO number_sequences (name, year, value) VALUES ($1, $2, 1)
	ON CONFLICT (name, year) DO UPDATE SET value = number_sequences.value + 1
	RETURNING value`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	store *Store
}

// NewOrderRepository returns an OrderRepository over the given store.
func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{store: store}
}

// Create persists the order, its line items, and the applied-discount audit
// rows. Must run inside a transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, applied []order.AppliedDiscount) error {
	db := r.store.db(ctx)

	_, err := db.Exec(ctx, insertOrderSQL,
		o.ID, o.Number, o.CustomerID, string(o.Class), o.Subtotal, o.DiscountTotal,
		o.DeliveryFee, o.Total, string(o.FulfillmentStatus), string(o.PaymentStatus),
		string(o.PaymentMethod), o.VoucherCode, o.AffiliateID, o.ReceiptNumber,
		o.PlacedAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting order %q: %w", o.ID, err)
	}

	for _, item := range o.Items {
		_, err := db.Exec(ctx, insertOrderItemSQL,
			item.ID, o.ID, item.ProductID, item.Quantity, item.UnitPrice,
			item.DiscountApplied, item.LineTotal,
		)
		if err != nil {
			return fmt.Errorf("inserting order item %q: %w", item.ID, err)
		}
	}

	for _, a := range applied {
		_, err := db.Exec(ctx, insertOrderDiscountSQL, o.ID, a.DiscountID, a.Amount)
		if err != nil {
			return fmt.Errorf("inserting order discount %q: %w", a.DiscountID, err)
		}
	}

	return nil
}

// Get loads the order snapshot with its items.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, id, selectOrderSQL)
}

// GetForUpdate loads the order with a row lock held until the transaction
// ends, serializing concurrent transitions.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, id, selectOrderSQL+" FOR UPDATE")
}

func (r *OrderRepository) get(ctx context.Context, id, query string) (*order.Order, error) {
	db := r.store.db(ctx)

	rows, err := db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("querying order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("scanning order %q: %w", id, err)
	}

	itemRows, err := db.Query(ctx, selectOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("querying items of order %q: %w", id, err)
	}
	items, err := pgx.CollectRows(itemRows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("scanning items of order %q: %w", id, err)
	}
	o.Items = items

	return &o, nil
}

// Update persists the mutable transition state of an order. Line items and
// monetary totals are immutable after creation and are not touched.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := r.store.db(ctx).Exec(ctx, updateOrderSQL,
		o.ID, string(o.FulfillmentStatus), string(o.PaymentStatus), string(o.PaymentMethod),
		o.AffiliateID, o.ReceiptNumber,
		o.ConfirmedAt, o.ProcessingAt, o.ShippingAt, o.DeliveredAt, o.CanceledAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// NextOrderNumber advances the per-year order sequence.
func (r *OrderRepository) NextOrderNumber(ctx context.Context, year int) (int64, error) {
	return r.nextSequence(ctx, "order", year)
}

// NextReceiptNumber advances the per-year receipt sequence.
func (r *OrderRepository) NextReceiptNumber(ctx context.Context, year int) (int64, error) {
	return r.nextSequence(ctx, "receipt", year)
}

func (r *OrderRepository) nextSequence(ctx context.Context, name string, year int) (int64, error) {
	var value int64
	err := r.store.db(ctx).QueryRow(ctx, nextSequenceSQL, name, year).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("advancing %s sequence for year %d: %w", name, year, err)
	}
	return value, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	var class, fStatus, pStatus, method, voucher, affiliate, receipt string
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerID, &class, &o.Subtotal, &o.DiscountTotal,
		&o.DeliveryFee, &o.Total, &fStatus, &pStatus, &method,
		&voucher, &affiliate, &receipt, &o.PlacedAt,
		&o.ConfirmedAt, &o.ProcessingAt, &o.ShippingAt, &o.DeliveredAt, &o.CanceledAt,
		&o.CreatedAt, &o.UpdatedAt,
	)
	o.Class = order.Class(class)
	o.FulfillmentStatus = order.FulfillmentStatus(fStatus)
	o.PaymentStatus = order.PaymentStatus(pStatus)
	o.PaymentMethod = order.PaymentMethod(method)
	o.VoucherCode = voucher
	o.AffiliateID = affiliate
	o.ReceiptNumber = receipt
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var item order.Item
	err := row.Scan(
		&item.ID, &item.ProductID, &item.Quantity, &item.UnitPrice,
		&item.DiscountApplied, &item.LineTotal,
	)
	return item, err
}
