package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/retail-orders/internal/domain/customer"
	"github.com/xenking/retail-orders/internal/domain/discount"
	"github.com/xenking/retail-orders/internal/domain/ledger"
	"github.com/xenking/retail-orders/internal/domain/product"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems = errors.New("items required")
	ErrNotFound   = errors.New("order not found")
)

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// TxRunner executes fn inside one database transaction. Repositories resolve
// the transaction from ctx.
//
// InSavepoint runs fn inside a savepoint on the enclosing transaction, so a
// failing best-effort step can be rolled back and swallowed without aborting
// the whole transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	InSavepoint(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier schedules customer notifications for order events. Implementations
// write outbox rows inside the transaction carried by ctx; actual delivery
// happens after commit, in the outbox worker.
type Notifier interface {
	OrderPlaced(ctx context.Context, o *Order) error
	StatusChanged(ctx context.Context, o *Order, oldF, newF FulfillmentStatus, oldP, newP PaymentStatus) error
}

// LedgerPoster posts the balanced accounting pairs for paid and canceled
// orders. Satisfied by *ledger.Poster.
type LedgerPoster interface {
	PostSale(ctx context.Context, orderID string, paymentMethod string, amount decimal.Decimal) error
	PostReversal(ctx context.Context, orderID string) error
}

// CommissionAccruer records affiliate commissions for voucher-linked orders.
// Satisfied by *affiliate.Accruer.
type CommissionAccruer interface {
	Accrue(ctx context.Context, orderID, voucherCode string, preDiscountTotal decimal.Decimal) (string, error)
}

// CreateItem is one requested line in a CreateRequest.
type CreateItem struct {
	ProductID string
	Quantity  int
}

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	CustomerID    string
	Class         Class
	Items         []CreateItem
	VoucherCode   string
	DeliveryFee   decimal.Decimal
	PaymentMethod PaymentMethod
}

// Service owns the order lifecycle: creation with discount resolution, the
// fulfillment/payment state machine, and the side effects each transition
// triggers. Every mutating method runs in a single database transaction and
// returns the committed order snapshot.
type Service struct {
	tx          TxRunner
	orders      Repository
	products    product.Repository
	customers   customer.Repository
	discounts   discount.Repository
	ledger      LedgerPoster
	commissions CommissionAccruer
	notifier    Notifier
	lg          *zap.Logger
	now         func() time.Time
}

// NewService creates an order Service with the required collaborators.
func NewService(
	tx TxRunner,
	orders Repository,
	products product.Repository,
	customers customer.Repository,
	discounts discount.Repository,
	poster LedgerPoster,
	commissions CommissionAccruer,
	notifier Notifier,
	lg *zap.Logger,
) *Service {
	return &Service{
		tx:          tx,
		orders:      orders,
		products:    products,
		customers:   customers,
		discounts:   discounts,
		ledger:      poster,
		commissions: commissions,
		notifier:    notifier,
		lg:          lg,
		now:         time.Now,
	}
}

// Create validates the request, resolves products and discounts, persists the
// order with its audit rows, accrues any affiliate commission on the
// pre-discount value, and schedules ORDER_PLACED notifications, all in one
// transaction.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
	}
	class := req.Class
	if class == "" {
		class = ClassDelivery
	}

	var created *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		cust, err := s.customers.Get(ctx, req.CustomerID)
		if err != nil {
			return errors.Wrap(err, "resolve customer")
		}

		products, err := s.resolveProducts(ctx, req.Items)
		if err != nil {
			return err
		}

		now := s.now()

		// Price snapshot + discount resolution.
		lines := make([]discount.LineItem, len(req.Items))
		for i, item := range req.Items {
			p := products[item.ProductID]
			lines[i] = discount.LineItem{
				ProductID:     p.ID,
				SubcategoryID: p.SubcategoryID,
				CategoryID:    p.CategoryID,
				Quantity:      item.Quantity,
				UnitPrice:     p.Price,
			}
		}
		rules, err := s.discounts.ActiveRules(ctx, now)
		if err != nil {
			return errors.Wrap(err, "load discount rules")
		}
		result := discount.Calculate(lines, req.VoucherCode, rules, now)

		number, err := s.allocateOrderNumber(ctx, now)
		if err != nil {
			return err
		}

		o := buildOrder(req, class, cust.ID, number, lines, result, now)

		// Commission accrues on the pre-discount order value.
		affiliateID, err := s.commissions.Accrue(ctx, o.ID, req.VoucherCode, result.SubtotalBeforeDiscount)
		if err != nil {
			return errors.Wrap(err, "accrue commission")
		}
		o.AffiliateID = affiliateID

		applied := make([]AppliedDiscount, len(result.AppliedDiscounts))
		for i, a := range result.AppliedDiscounts {
			applied[i] = AppliedDiscount{DiscountID: a.Rule.ID, Amount: a.Amount}
		}
		if err := s.orders.Create(ctx, o, applied); err != nil {
			return errors.Wrap(err, "create order")
		}

		// Usage counters bump with the creation transaction. Concurrent
		// checkouts against a capped rule can still over-redeem: the cap was
		// checked against the counter read at rule load time.
		for _, a := range result.AppliedDiscounts {
			if err := s.discounts.IncrementUsage(ctx, a.Rule.ID); err != nil {
				return errors.Wrapf(err, "increment usage of discount %s", a.Rule.ID)
			}
		}

		s.notify(ctx, o, func(ctx context.Context) error { return s.notifier.OrderPlaced(ctx, o) })

		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateFulfillment applies one fulfillment transition. Illegal transitions
// fail with IllegalTransitionError and perform no writes.
func (s *Service) UpdateFulfillment(ctx context.Context, id string, next FulfillmentStatus) (*Order, error) {
	if !ValidFulfillmentStatus(next) {
		return nil, &IllegalTransitionError{To: next}
	}

	var updated *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(o.FulfillmentStatus, next) {
			return &IllegalTransitionError{From: o.FulfillmentStatus, To: next}
		}

		oldF := o.FulfillmentStatus
		now := s.now()
		stampFulfillment(o, next, now)

		if next == StatusDelivered {
			s.bumpSalesCounters(ctx, o)
		}

		if err := s.orders.Update(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}

		s.notify(ctx, o, func(ctx context.Context) error {
			return s.notifier.StatusChanged(ctx, o, oldF, next, o.PaymentStatus, o.PaymentStatus)
		})

		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdatePayment applies one payment transition. Completing payment while the
// order is still PLACED auto-advances fulfillment to CONFIRMED in the same
// update, allocates the receipt number exactly once, and posts the ledger
// pair idempotently.
func (s *Service) UpdatePayment(ctx context.Context, id string, next PaymentStatus, method PaymentMethod) (*Order, error) {
	if !ValidPaymentStatus(next) {
		return nil, &IllegalPaymentTransitionError{To: next}
	}

	var updated *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if Terminal(o.FulfillmentStatus) {
			// A late gateway callback on a canceled or delivered order must
			// not issue a receipt or post revenue.
			return &IllegalPaymentTransitionError{From: o.PaymentStatus, To: next, Closed: o.FulfillmentStatus}
		}
		if !CanTransitionPayment(o.PaymentStatus, next) {
			return &IllegalPaymentTransitionError{From: o.PaymentStatus, To: next}
		}

		oldF := o.FulfillmentStatus
		oldP := o.PaymentStatus
		now := s.now()

		o.PaymentStatus = next
		if method != "" {
			o.PaymentMethod = method
		}
		o.UpdatedAt = now

		if next == PaymentPaid {
			// Payment completion implies confirmation.
			if o.FulfillmentStatus == StatusPlaced {
				stampFulfillment(o, StatusConfirmed, now)
			}
			if err := s.issueReceiptAndPost(ctx, o, now); err != nil {
				return err
			}
		}

		if err := s.orders.Update(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}

		s.notify(ctx, o, func(ctx context.Context) error {
			return s.notifier.StatusChanged(ctx, o, oldF, o.FulfillmentStatus, oldP, next)
		})

		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Cancel moves the order to CANCELED from any non-terminal state. A paid
// order flips to payment FAILED; a receipted order additionally gets the
// mirror accounting reversal.
func (s *Service) Cancel(ctx context.Context, id string) (*Order, error) {
	var updated *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(o.FulfillmentStatus, StatusCanceled) {
			return &IllegalTransitionError{From: o.FulfillmentStatus, To: StatusCanceled}
		}

		oldF := o.FulfillmentStatus
		oldP := o.PaymentStatus
		now := s.now()
		stampFulfillment(o, StatusCanceled, now)

		if o.PaymentStatus == PaymentPaid {
			o.PaymentStatus = PaymentFailed
		}
		if o.Receipted() {
			if err := s.ledger.PostReversal(ctx, o.ID); err != nil && !errors.Is(err, ledger.ErrAlreadyPosted) {
				return errors.Wrap(err, "post reversal")
			}
		}

		if err := s.orders.Update(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}

		s.notify(ctx, o, func(ctx context.Context) error {
			return s.notifier.StatusChanged(ctx, o, oldF, StatusCanceled, oldP, o.PaymentStatus)
		})

		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkDelivered is a convenience wrapper for the SHIPPING -> DELIVERED
// transition.
func (s *Service) MarkDelivered(ctx context.Context, id string) (*Order, error) {
	return s.UpdateFulfillment(ctx, id, StatusDelivered)
}

// Get returns the order snapshot by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// PreviewDiscounts runs the discount engine for a would-be order without any
// writes. Exposed for pre-checkout price preview.
func (s *Service) PreviewDiscounts(ctx context.Context, items []CreateItem, voucherCode string) (*discount.Result, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
	}

	products, err := s.resolveProducts(ctx, items)
	if err != nil {
		return nil, err
	}

	now := s.now()
	lines := make([]discount.LineItem, len(items))
	for i, item := range items {
		p := products[item.ProductID]
		lines[i] = discount.LineItem{
			ProductID:     p.ID,
			SubcategoryID: p.SubcategoryID,
			CategoryID:    p.CategoryID,
			Quantity:      item.Quantity,
			UnitPrice:     p.Price,
		}
	}
	rules, err := s.discounts.ActiveRules(ctx, now)
	if err != nil {
		return nil, errors.Wrap(err, "load discount rules")
	}

	result := discount.Calculate(lines, voucherCode, rules, now)
	return &result, nil
}

// resolveProducts batch-fetches the requested products and verifies every id
// was found.
func (s *Service) resolveProducts(ctx context.Context, items []CreateItem) (map[string]product.Product, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}
	for _, item := range items {
		if _, ok := productMap[item.ProductID]; !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
	}
	return productMap, nil
}

// allocateOrderNumber draws the next per-year sequence value and formats the
// human-readable order number.
func (s *Service) allocateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.orders.NextOrderNumber(ctx, now.Year())
	if err != nil {
		return "", errors.Wrap(err, "next order number")
	}
	return fmt.Sprintf("ORD-%d-%05d", now.Year(), seq), nil
}

// issueReceiptAndPost allocates the receipt number on first payment and posts
// the balanced ledger pair. The receipt gates the posting: an already
// receipted order skips both, and a concurrent duplicate posting surfaces as
// ledger.ErrAlreadyPosted which callers treat as success.
func (s *Service) issueReceiptAndPost(ctx context.Context, o *Order, now time.Time) error {
	if o.Receipted() {
		return nil
	}

	seq, err := s.orders.NextReceiptNumber(ctx, now.Year())
	if err != nil {
		return errors.Wrap(err, "next receipt number")
	}
	o.ReceiptNumber = fmt.Sprintf("RCP-%d-%05d", now.Year(), seq)

	err = s.ledger.PostSale(ctx, o.ID, string(o.PaymentMethod), o.Total)
	if err != nil && !errors.Is(err, ledger.ErrAlreadyPosted) {
		return errors.Wrap(err, "post sale")
	}
	return nil
}

// bumpSalesCounters increments each product's cumulative sales counter by its
// line quantity. Best-effort: failures are logged and never fail the
// delivery transition. Each increment runs in its own savepoint, otherwise a
// failed statement would abort the enclosing Postgres transaction and roll
// back the status change with it.
func (s *Service) bumpSalesCounters(ctx context.Context, o *Order) {
	for _, item := range o.Items {
		err := s.tx.InSavepoint(ctx, func(ctx context.Context) error {
			return s.products.IncrementSales(ctx, item.ProductID, item.Quantity)
		})
		if err != nil {
			s.lg.Warn("sales counter increment failed",
				zap.String("order_id", o.ID),
				zap.String("product_id", item.ProductID),
				zap.Error(err),
			)
		}
	}
}

// notify runs a notification scheduling step. Scheduling must never fail the
// order transaction: the step runs in a savepoint and errors are logged and
// swallowed, leaving the enclosing transaction usable.
func (s *Service) notify(ctx context.Context, o *Order, fn func(ctx context.Context) error) {
	if err := s.tx.InSavepoint(ctx, fn); err != nil {
		s.lg.Error("notification scheduling failed",
			zap.String("order_id", o.ID),
			zap.String("order_number", o.Number),
			zap.Error(err),
		)
	}
}

// buildOrder assembles the order aggregate from the validated request and the
// discount result.
func buildOrder(
	req CreateRequest,
	class Class,
	customerID, number string,
	lines []discount.LineItem,
	result discount.Result,
	now time.Time,
) *Order {
	items := make([]Item, len(lines))
	for i, line := range lines {
		lineSubtotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		items[i] = Item{
			ID:              uuid.New().String(),
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			DiscountApplied: result.LineDiscounts[i],
			LineTotal:       lineSubtotal.Sub(result.LineDiscounts[i]),
		}
	}

	discountTotal := result.SubtotalBeforeDiscount.Sub(result.FinalTotal)

	return &Order{
		ID:            uuid.New().String(),
		Number:        number,
		CustomerID:    customerID,
		Class:         class,
		Items:         items,
		Subtotal:      result.SubtotalBeforeDiscount,
		DiscountTotal: discountTotal,
		DeliveryFee:   req.DeliveryFee,
		Total:         result.FinalTotal.Add(req.DeliveryFee),

		FulfillmentStatus: StatusPlaced,
		PaymentStatus:     PaymentPending,
		PaymentMethod:     req.PaymentMethod,
		VoucherCode:       req.VoucherCode,

		PlacedAt:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// stampFulfillment sets the new status and its first-time-only timestamp.
func stampFulfillment(o *Order, to FulfillmentStatus, now time.Time) {
	o.FulfillmentStatus = to
	o.UpdatedAt = now

	switch to {
	case StatusConfirmed:
		if o.ConfirmedAt == nil {
			o.ConfirmedAt = &now
		}
	case StatusProcessing:
		if o.ProcessingAt == nil {
			o.ProcessingAt = &now
		}
	case StatusShipping:
		if o.ShippingAt == nil {
			o.ShippingAt = &now
		}
	case StatusDelivered:
		if o.DeliveredAt == nil {
			o.DeliveredAt = &now
		}
	case StatusCanceled:
		if o.CanceledAt == nil {
			o.CanceledAt = &now
		}
	}
}
