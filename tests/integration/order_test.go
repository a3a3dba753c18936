//go:build integration

package integration

import (
	"net/http"
	"strings"
	"testing"
)

func createOrder(t *testing.T, req createOrderRequest) orderResponse {
	t.Helper()

	resp := doPost(t, "/api/orders", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create order: expected 201, got %d", resp.StatusCode)
	}

	return decodeJSON[orderResponse](t, resp)
}

func TestCreateOrder_AutoDiscount(t *testing.T) {
	o := createOrder(t, createOrderRequest{
		CustomerID: "cust-1",
		Items:      []orderItemRequest{{ProductID: "phone-basic", Quantity: 2}},
	})

	if !strings.HasPrefix(o.Number, "ORD-") {
		t.Errorf("order number: got %q, want ORD- prefix", o.Number)
	}
	if o.Subtotal != 200 {
		t.Errorf("subtotal: got %v, want 200", o.Subtotal)
	}
	// The seeded spring sale applies 5% automatically.
	if o.DiscountTotal != 10 {
		t.Errorf("discount: got %v, want 10", o.DiscountTotal)
	}
	if o.Total != 190 {
		t.Errorf("total: got %v, want 190", o.Total)
	}
	if o.FulfillmentStatus != "PLACED" {
		t.Errorf("fulfillment: got %q, want PLACED", o.FulfillmentStatus)
	}
	if o.PaymentStatus != "PENDING" {
		t.Errorf("payment: got %q, want PENDING", o.PaymentStatus)
	}
	if o.Class != "DELIVERY" {
		t.Errorf("class: got %q, want DELIVERY default", o.Class)
	}
	if o.ReceiptNumber != "" {
		t.Errorf("receipt issued before payment: %q", o.ReceiptNumber)
	}
}

func TestCreateOrder_VoucherReplacesAutoRules(t *testing.T) {
	o := createOrder(t, createOrderRequest{
		CustomerID:  "cust-1",
		Items:       []orderItemRequest{{ProductID: "phone-basic", Quantity: 2}},
		VoucherCode: "summer20",
	})

	// The voucher gates rule selection: only SUMMER20 (20%) applies, the
	// automatic spring sale does not stack on top.
	if o.DiscountTotal != 40 {
		t.Errorf("discount: got %v, want 40", o.DiscountTotal)
	}
	if o.Total != 160 {
		t.Errorf("total: got %v, want 160", o.Total)
	}
	if o.VoucherCode != "summer20" {
		t.Errorf("voucher code: got %q", o.VoucherCode)
	}
}

func TestCreateOrder_DeliveryFee(t *testing.T) {
	o := createOrder(t, createOrderRequest{
		CustomerID:  "cust-2",
		Class:       "PICKUP",
		Items:       []orderItemRequest{{ProductID: "cola-can", Quantity: 2}},
		DeliveryFee: 5,
	})

	if o.Subtotal != 3 {
		t.Errorf("subtotal: got %v, want 3", o.Subtotal)
	}
	if o.DeliveryFee != 5 {
		t.Errorf("delivery fee: got %v, want 5", o.DeliveryFee)
	}
	// 5% off 3.00 is 0.15; total = 2.85 + 5.00 fee.
	if o.Total != 7.85 {
		t.Errorf("total: got %v, want 7.85", o.Total)
	}
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	resp := doPost(t, "/api/orders", createOrderRequest{
		CustomerID: "cust-1",
		Items:      []orderItemRequest{{ProductID: "no-such-product", Quantity: 1}},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestCreateOrder_UnknownCustomer(t *testing.T) {
	resp := doPost(t, "/api/orders", createOrderRequest{
		CustomerID: "no-such-customer",
		Items:      []orderItemRequest{{ProductID: "phone-basic", Quantity: 1}},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCreateOrder_EmptyItems(t *testing.T) {
	resp := doPost(t, "/api/orders", createOrderRequest{CustomerID: "cust-1"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	body := decodeJSON[errorResponse](t, resp)
	if body.Message == "" {
		t.Error("expected error message")
	}
}

func TestGetOrder(t *testing.T) {
	created := createOrder(t, createOrderRequest{
		CustomerID: "cust-1",
		Items:      []orderItemRequest{{ProductID: "chips-bag", Quantity: 1}},
	})

	resp := doGet(t, "/api/orders/"+created.ID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	got := decodeJSON[orderResponse](t, resp)
	if got.ID != created.ID || got.Number != created.Number {
		t.Errorf("got order %s/%s, want %s/%s", got.ID, got.Number, created.ID, created.Number)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	resp := doGet(t, "/api/orders/does-not-exist")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestOrderLifecycle_PaymentThroughDelivery(t *testing.T) {
	o := createOrder(t, createOrderRequest{
		CustomerID: "cust-1",
		Items:      []orderItemRequest{{ProductID: "laptop-air", Quantity: 1}},
	})

	// Successful payment auto-confirms the order and issues a receipt.
	resp := doPatch(t, "/api/orders/"+o.ID+"/payment", map[string]string{
		"status": "PAID",
		"method": "CARD",
	})
	paid := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()

	if paid.PaymentStatus != "PAID" {
		t.Fatalf("payment: got %q, want PAID", paid.PaymentStatus)
	}
	if paid.FulfillmentStatus != "CONFIRMED" {
		t.Fatalf("fulfillment: got %q, want CONFIRMED", paid.FulfillmentStatus)
	}
	if !strings.HasPrefix(paid.ReceiptNumber, "RCP-") {
		t.Fatalf("receipt: got %q, want RCP- prefix", paid.ReceiptNumber)
	}
	if paid.ConfirmedAt == nil {
		t.Fatal("confirmedAt not set")
	}

	for _, status := range []string{"PROCESSING", "SHIPPING"} {
		resp = doPatch(t, "/api/orders/"+o.ID+"/fulfillment", map[string]string{"status": status})
		got := decodeJSON[orderResponse](t, resp)
		resp.Body.Close()

		if got.FulfillmentStatus != status {
			t.Fatalf("fulfillment: got %q, want %q", got.FulfillmentStatus, status)
		}
	}

	resp = doPost(t, "/api/orders/"+o.ID+"/delivered", nil)
	delivered := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()

	if delivered.FulfillmentStatus != "DELIVERED" {
		t.Fatalf("fulfillment: got %q, want DELIVERED", delivered.FulfillmentStatus)
	}
	if delivered.DeliveredAt == nil {
		t.Fatal("deliveredAt not set")
	}
}

func TestUpdateFulfillment_IllegalSkip(t *testing.T) {
	o := createOrder(t, createOrderRequest{
		CustomerID: "cust-1",
		Items:      []orderItemRequest{{ProductID: "cola-can", Quantity: 1}},
	})

	// PLACED cannot jump straight to SHIPPING.
	resp := doPatch(t, "/api/orders/"+o.ID+"/fulfillment", map[string]string{"status": "SHIPPING"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestCancelOrder(t *testing.T) {
	o := createOrder(t, createOrderRequest{
		CustomerID: "cust-2",
		Items:      []orderItemRequest{{ProductID: "phone-pro", Quantity: 1}},
	})

	resp := doPost(t, "/api/orders/"+o.ID+"/cancel", nil)
	canceled := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()

	if canceled.FulfillmentStatus != "CANCELED" {
		t.Fatalf("fulfillment: got %q, want CANCELED", canceled.FulfillmentStatus)
	}
	if canceled.CanceledAt == nil {
		t.Fatal("canceledAt not set")
	}

	// Terminal: no further transitions allowed.
	resp = doPatch(t, "/api/orders/"+o.ID+"/fulfillment", map[string]string{"status": "CONFIRMED"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 after cancel, got %d", resp.StatusCode)
	}
}

func TestPreviewDiscounts(t *testing.T) {
	resp := doPost(t, "/api/discounts/preview", previewRequest{
		Items:       []orderItemRequest{{ProductID: "phone-basic", Quantity: 1}},
		VoucherCode: "JORDAN15",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	preview := decodeJSON[previewResponse](t, resp)
	if preview.SubtotalBeforeDiscount != 100 {
		t.Errorf("subtotal: got %v, want 100", preview.SubtotalBeforeDiscount)
	}
	// JORDAN15 is a per-product 15% rule on the electronics category.
	if preview.FinalTotal != 85 {
		t.Errorf("final total: got %v, want 85", preview.FinalTotal)
	}

	found := false
	for _, d := range preview.AppliedDiscounts {
		if d.DiscountID == "disc-jordan15" {
			found = true
		}
	}
	if !found {
		t.Errorf("disc-jordan15 not in applied discounts: %+v", preview.AppliedDiscounts)
	}
}

func TestListFailedOutbox(t *testing.T) {
	resp := doGet(t, "/api/outbox/failed")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// With the dry-run SMS sender nothing fails terminally; the endpoint
	// must still answer with a valid (possibly empty) list.
	entries := decodeJSON[[]failedEntryResponse](t, resp)
	for _, e := range entries {
		if e.ID == "" || e.EventType == "" {
			t.Errorf("malformed failed entry: %+v", e)
		}
	}
}
