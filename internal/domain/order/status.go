package order

import "fmt"

// FulfillmentStatus tracks the physical-world progress of an order.
type FulfillmentStatus string

const (
	StatusPlaced     FulfillmentStatus = "PLACED"
	StatusConfirmed  FulfillmentStatus = "CONFIRMED"
	StatusProcessing FulfillmentStatus = "PROCESSING"
	StatusShipping   FulfillmentStatus = "SHIPPING"
	StatusDelivered  FulfillmentStatus = "DELIVERED"
	StatusCanceled   FulfillmentStatus = "CANCELED"
)

// PaymentStatus tracks whether the order has been paid for.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

// IllegalTransitionError indicates a fulfillment transition not present in
// the adjacency table. No writes are performed when it is returned.
type IllegalTransitionError struct {
	From FulfillmentStatus
	To   FulfillmentStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal fulfillment transition %s -> %s", e.From, e.To)
}

// IllegalPaymentTransitionError indicates a payment status change outside
// PENDING->PAID or PAID->FAILED, or one attempted on a closed order.
type IllegalPaymentTransitionError struct {
	From PaymentStatus
	To   PaymentStatus
	// Closed is set when the order's terminal fulfillment state forbids any
	// payment change regardless of the payment adjacency.
	Closed FulfillmentStatus
}

func (e *IllegalPaymentTransitionError) Error() string {
	if e.Closed != "" {
		return fmt.Sprintf("payment transition %s -> %s rejected: order is %s", e.From, e.To, e.Closed)
	}
	return fmt.Sprintf("illegal payment transition %s -> %s", e.From, e.To)
}

// fulfillmentTransitions is the explicit adjacency table. DELIVERED and
// CANCELED are terminal: they have no outgoing edges.
var fulfillmentTransitions = map[FulfillmentStatus][]FulfillmentStatus{
	StatusPlaced:     {StatusConfirmed, StatusCanceled},
	StatusConfirmed:  {StatusProcessing, StatusCanceled},
	StatusProcessing: {StatusShipping, StatusCanceled},
	StatusShipping:   {StatusDelivered, StatusCanceled},
	StatusDelivered:  {},
	StatusCanceled:   {},
}

// paymentTransitions allows PENDING->PAID and the explicit failure path
// PAID->FAILED. FAILED is terminal; a failed payment is never re-paid.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentFailed},
	PaymentPaid:    {PaymentFailed},
	PaymentFailed:  {},
}

// ValidFulfillmentStatus reports whether s is a known fulfillment status.
func ValidFulfillmentStatus(s FulfillmentStatus) bool {
	_, ok := fulfillmentTransitions[s]
	return ok
}

// ValidPaymentStatus reports whether s is a known payment status.
func ValidPaymentStatus(s PaymentStatus) bool {
	_, ok := paymentTransitions[s]
	return ok
}

// CanTransition reports whether from -> to is a legal fulfillment transition.
func CanTransition(from, to FulfillmentStatus) bool {
	for _, next := range fulfillmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionPayment reports whether from -> to is a legal payment transition.
func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s has no outgoing fulfillment transitions.
func Terminal(s FulfillmentStatus) bool {
	return len(fulfillmentTransitions[s]) == 0
}
