package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from    FulfillmentStatus
		to      FulfillmentStatus
		allowed bool
	}{
		{StatusPlaced, StatusConfirmed, true},
		{StatusPlaced, StatusCanceled, true},
		{StatusPlaced, StatusProcessing, false},
		{StatusPlaced, StatusShipping, false},
		{StatusPlaced, StatusDelivered, false},
		{StatusConfirmed, StatusProcessing, true},
		{StatusConfirmed, StatusCanceled, true},
		{StatusConfirmed, StatusPlaced, false},
		{StatusConfirmed, StatusShipping, false},
		{StatusProcessing, StatusShipping, true},
		{StatusProcessing, StatusCanceled, true},
		{StatusProcessing, StatusDelivered, false},
		{StatusShipping, StatusDelivered, true},
		{StatusShipping, StatusCanceled, true},
		{StatusShipping, StatusProcessing, false},
		{StatusDelivered, StatusCanceled, false},
		{StatusDelivered, StatusShipping, false},
		{StatusCanceled, StatusPlaced, false},
		{StatusCanceled, StatusConfirmed, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestCanTransitionPayment(t *testing.T) {
	tests := []struct {
		from    PaymentStatus
		to      PaymentStatus
		allowed bool
	}{
		{PaymentPending, PaymentPaid, true},
		{PaymentPending, PaymentFailed, true},
		{PaymentPaid, PaymentFailed, true},
		{PaymentPaid, PaymentPending, false},
		{PaymentFailed, PaymentPaid, false},
		{PaymentFailed, PaymentPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, CanTransitionPayment(tt.from, tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, Terminal(StatusDelivered))
	assert.True(t, Terminal(StatusCanceled))
	assert.False(t, Terminal(StatusPlaced))
	assert.False(t, Terminal(StatusShipping))
}

func TestValidStatuses(t *testing.T) {
	assert.True(t, ValidFulfillmentStatus(StatusProcessing))
	assert.False(t, ValidFulfillmentStatus("SHIPPED"))
	assert.True(t, ValidPaymentStatus(PaymentPaid))
	assert.False(t, ValidPaymentStatus("REFUNDED"))
}
