// Package notification maps order transitions to customer messages: it
// resolves trigger events, renders templates, and schedules outbox rows
// inside the originating transaction.
package notification

import "github.com/xenking/retail-orders/internal/domain/order"

// Event is a logical notification trigger. At most one event fires per
// transition.
type Event string

const (
	EventOrderPlaced           Event = "ORDER_PLACED"
	EventPlacedToConfirmed     Event = "PLACED_TO_CONFIRMED"
	EventPaymentFailed         Event = "PAYMENT_FAILED"
	EventConfirmedToProcessing Event = "CONFIRMED_TO_PROCESSING"
	EventProcessingToShipping  Event = "PROCESSING_TO_SHIPPING"
	EventShippingToDelivered   Event = "SHIPPING_TO_DELIVERED"
	EventOrderCanceled         Event = "ORDER_CANCELED"
)

// ResolveTrigger maps a before/after status pair to at most one event.
// Payment-driven events are checked before fulfillment-driven ones so that a
// combined payment+fulfillment change (payment completion auto-confirming a
// placed order) reports the payment event, not two events.
//
// ORDER_PLACED is fired explicitly at creation and never resolved here.
func ResolveTrigger(
	oldF, newF order.FulfillmentStatus,
	oldP, newP order.PaymentStatus,
) (Event, bool) {
	// Payment transitions first.
	if oldP == order.PaymentPending && newP == order.PaymentPaid {
		return EventPlacedToConfirmed, true
	}
	if oldP == order.PaymentPaid && newP == order.PaymentFailed {
		return EventPaymentFailed, true
	}

	// Cancellation wins over any other fulfillment change.
	if newF == order.StatusCanceled && oldF != order.StatusCanceled {
		return EventOrderCanceled, true
	}

	switch {
	case oldF == order.StatusConfirmed && newF == order.StatusProcessing:
		return EventConfirmedToProcessing, true
	case oldF == order.StatusProcessing && newF == order.StatusShipping:
		return EventProcessingToShipping, true
	case oldF == order.StatusShipping && newF == order.StatusDelivered:
		return EventShippingToDelivered, true
	}

	return "", false
}
