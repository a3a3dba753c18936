package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/retail-orders/internal/domain/customer"
	"github.com/xenking/retail-orders/internal/domain/discount"
	"github.com/xenking/retail-orders/internal/domain/order"
	"github.com/xenking/retail-orders/internal/domain/product"
	"github.com/xenking/retail-orders/internal/outbox"
)

// --- Mock implementations ---

type mockTx struct{}

func (mockTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (mockTx) InSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockOrderRepo struct {
	orders   map[string]*order.Order
	seq      int64
	receipts int64
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order, _ []order.AppliedDiscount) error {
	m.orders[o.ID] = o
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return m.Get(ctx, id)
}

func (m *mockOrderRepo) Update(_ context.Context, o *order.Order) error {
	m.orders[o.ID] = o
	return nil
}

func (m *mockOrderRepo) NextOrderNumber(_ context.Context, _ int) (int64, error) {
	m.seq++
	return m.seq, nil
}

func (m *mockOrderRepo) NextReceiptNumber(_ context.Context, _ int) (int64, error) {
	m.receipts++
	return m.receipts, nil
}

type mockProductRepo struct {
	byID map[string]*product.Product
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) IncrementSales(_ context.Context, _ string, _ int) error { return nil }

type mockCustomerRepo struct{}

func (mockCustomerRepo) Get(_ context.Context, id string) (*customer.Customer, error) {
	if id != "cust-1" {
		return nil, customer.ErrNotFound
	}
	return &customer.Customer{ID: id, Name: "Alice", Phone: "+15550000001"}, nil
}

type mockDiscountRepo struct{}

func (mockDiscountRepo) ActiveRules(_ context.Context, _ time.Time) ([]discount.Rule, error) {
	return nil, nil
}
func (mockDiscountRepo) IncrementUsage(_ context.Context, _ string) error        { return nil }
func (mockDiscountRepo) Create(_ context.Context, _ *discount.Rule) error        { return nil }
func (mockDiscountRepo) Get(_ context.Context, _ string) (*discount.Rule, error) { return nil, nil }

type mockPoster struct{}

func (mockPoster) PostSale(_ context.Context, _ string, _ string, _ decimal.Decimal) error {
	return nil
}
func (mockPoster) PostReversal(_ context.Context, _ string) error { return nil }

type mockAccruer struct{}

func (mockAccruer) Accrue(_ context.Context, _, _ string, _ decimal.Decimal) (string, error) {
	return "", nil
}

type mockNotifier struct{}

func (mockNotifier) OrderPlaced(_ context.Context, _ *order.Order) error { return nil }
func (mockNotifier) StatusChanged(_ context.Context, _ *order.Order, _, _ order.FulfillmentStatus, _, _ order.PaymentStatus) error {
	return nil
}

type mockOutboxRepo struct {
	failed []outbox.Entry
}

func (m *mockOutboxRepo) Insert(_ context.Context, _ *outbox.Entry) error { return nil }
func (m *mockOutboxRepo) ClaimDue(_ context.Context, _ int, _ time.Time) ([]outbox.Entry, error) {
	return nil, nil
}
func (m *mockOutboxRepo) MarkCompleted(_ context.Context, _ string, _ time.Time) error { return nil }
func (m *mockOutboxRepo) Reschedule(_ context.Context, _ string, _ int, _ time.Time, _ string) error {
	return nil
}
func (m *mockOutboxRepo) MarkFailed(_ context.Context, _ string, _ string, _ time.Time) error {
	return nil
}
func (m *mockOutboxRepo) ListFailed(_ context.Context, _ int) ([]outbox.Entry, error) {
	return m.failed, nil
}

// --- Helpers ---

func newTestMux(t *testing.T, orders ...*order.Order) (*http.ServeMux, *mockOrderRepo, *mockOutboxRepo) {
	t.Helper()

	orderRepo := &mockOrderRepo{orders: make(map[string]*order.Order)}
	for _, o := range orders {
		orderRepo.orders[o.ID] = o
	}
	products := &mockProductRepo{byID: map[string]*product.Product{
		"p1": {ID: "p1", Name: "Widget", Price: decimal.NewFromInt(100)},
	}}

	svc := order.NewService(mockTx{}, orderRepo, products, mockCustomerRepo{},
		mockDiscountRepo{}, mockPoster{}, mockAccruer{}, mockNotifier{}, zap.NewNop())

	failed := &mockOutboxRepo{}
	mux := http.NewServeMux()
	NewHandler(svc, failed).Register(mux)
	return mux, orderRepo, failed
}

func doRequest(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func placedOrder(id string) *order.Order {
	return &order.Order{
		ID:                id,
		Number:            "ORD-2025-00001",
		CustomerID:        "cust-1",
		Class:             order.ClassDelivery,
		Items:             []order.Item{{ID: "i1", ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(100), LineTotal: decimal.NewFromInt(100)}},
		Subtotal:          decimal.NewFromInt(100),
		Total:             decimal.NewFromInt(100),
		FulfillmentStatus: order.StatusPlaced,
		PaymentStatus:     order.PaymentPending,
	}
}

// --- Tests ---

func TestCreateOrder(t *testing.T) {
	mux, _, _ := newTestMux(t)

	rec := doRequest(mux, http.MethodPost, "/api/orders",
		`{"customerId":"cust-1","items":[{"productId":"p1","quantity":2}],"paymentMethod":"CARD"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.Number, "ORD-"), "number %q", resp.Number)
	assert.True(t, strings.HasSuffix(resp.Number, "-00001"), "number %q", resp.Number)
	assert.Equal(t, "PLACED", resp.FulfillmentStatus)
	assert.Equal(t, "PENDING", resp.PaymentStatus)
	assert.InDelta(t, 200.0, resp.Total, 0.001)
}

func TestCreateOrder_MalformedJSON(t *testing.T) {
	mux, _, _ := newTestMux(t)

	rec := doRequest(mux, http.MethodPost, "/api/orders", `{"items":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrder_EmptyItems(t *testing.T) {
	mux, _, _ := newTestMux(t)

	rec := doRequest(mux, http.MethodPost, "/api/orders", `{"customerId":"cust-1","items":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	mux, _, _ := newTestMux(t)

	rec := doRequest(mux, http.MethodPost, "/api/orders",
		`{"customerId":"cust-1","items":[{"productId":"ghost","quantity":1}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateOrder_UnknownCustomer(t *testing.T) {
	mux, _, _ := newTestMux(t)

	rec := doRequest(mux, http.MethodPost, "/api/orders",
		`{"customerId":"ghost","items":[{"productId":"p1","quantity":1}]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrder(t *testing.T) {
	mux, _, _ := newTestMux(t, placedOrder("o1"))

	rec := doRequest(mux, http.MethodGet, "/api/orders/o1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "o1", resp.ID)
}

func TestGetOrder_NotFound(t *testing.T) {
	mux, _, _ := newTestMux(t)

	rec := doRequest(mux, http.MethodGet, "/api/orders/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateFulfillment(t *testing.T) {
	mux, _, _ := newTestMux(t, placedOrder("o1"))

	rec := doRequest(mux, http.MethodPatch, "/api/orders/o1/fulfillment", `{"status":"CONFIRMED"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CONFIRMED", resp.FulfillmentStatus)
	require.NotNil(t, resp.ConfirmedAt)
}

func TestUpdateFulfillment_IllegalTransition(t *testing.T) {
	mux, _, _ := newTestMux(t, placedOrder("o1"))

	rec := doRequest(mux, http.MethodPatch, "/api/orders/o1/fulfillment", `{"status":"DELIVERED"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdatePayment(t *testing.T) {
	mux, _, _ := newTestMux(t, placedOrder("o1"))

	rec := doRequest(mux, http.MethodPatch, "/api/orders/o1/payment", `{"status":"PAID","method":"CARD"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "PAID", resp.PaymentStatus)
	assert.Equal(t, "CONFIRMED", resp.FulfillmentStatus)
	assert.True(t, strings.HasPrefix(resp.ReceiptNumber, "RCP-"), "receipt %q", resp.ReceiptNumber)
}

func TestCancelOrder(t *testing.T) {
	mux, _, _ := newTestMux(t, placedOrder("o1"))

	rec := doRequest(mux, http.MethodPost, "/api/orders/o1/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CANCELED", resp.FulfillmentStatus)
}

func TestMarkDelivered(t *testing.T) {
	shipping := placedOrder("o1")
	shipping.FulfillmentStatus = order.StatusShipping
	mux, _, _ := newTestMux(t, shipping)

	rec := doRequest(mux, http.MethodPost, "/api/orders/o1/delivered", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "DELIVERED", resp.FulfillmentStatus)
}

func TestPreviewDiscounts(t *testing.T) {
	mux, _, _ := newTestMux(t)

	rec := doRequest(mux, http.MethodPost, "/api/discounts/preview",
		`{"items":[{"productId":"p1","quantity":2}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp previewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 200.0, resp.SubtotalBeforeDiscount, 0.001)
	assert.InDelta(t, 200.0, resp.FinalTotal, 0.001)
}

func TestListFailedOutbox(t *testing.T) {
	mux, _, failed := newTestMux(t)
	failed.failed = []outbox.Entry{{
		ID:           "e1",
		EventType:    outbox.EventSendSMS,
		OrderID:      "o1",
		Status:       outbox.StatusFailed,
		RetryCount:   3,
		ErrorMessage: "provider unavailable",
	}}

	rec := doRequest(mux, http.MethodGet, "/api/outbox/failed", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []failedEntryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "e1", resp[0].ID)
	assert.Equal(t, 3, resp[0].RetryCount)
	assert.Equal(t, "provider unavailable", resp[0].ErrorMessage)
}
