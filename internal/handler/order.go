package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/retail-orders/internal/domain/discount"
	"github.com/xenking/retail-orders/internal/domain/order"
)

type orderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	CustomerID    string             `json:"customerId"`
	Class         string             `json:"class,omitempty"`
	Items         []orderItemRequest `json:"items"`
	VoucherCode   string             `json:"voucherCode,omitempty"`
	DeliveryFee   decimal.Decimal    `json:"deliveryFee,omitempty"`
	PaymentMethod string             `json:"paymentMethod,omitempty"`
}

type orderItemResponse struct {
	ProductID       string  `json:"productId"`
	Quantity        int     `json:"quantity"`
	UnitPrice       float64 `json:"unitPrice"`
	DiscountApplied float64 `json:"discountApplied"`
	LineTotal       float64 `json:"lineTotal"`
}

type orderResponse struct {
	ID                string              `json:"id"`
	Number            string              `json:"number"`
	CustomerID        string              `json:"customerId"`
	Class             string              `json:"class"`
	Items             []orderItemResponse `json:"items"`
	Subtotal          float64             `json:"subtotal"`
	DiscountTotal     float64             `json:"discountTotal"`
	DeliveryFee       float64             `json:"deliveryFee"`
	Total             float64             `json:"total"`
	FulfillmentStatus string              `json:"fulfillmentStatus"`
	PaymentStatus     string              `json:"paymentStatus"`
	PaymentMethod     string              `json:"paymentMethod,omitempty"`
	VoucherCode       string              `json:"voucherCode,omitempty"`
	ReceiptNumber     string              `json:"receiptNumber,omitempty"`
	PlacedAt          time.Time           `json:"placedAt"`
	ConfirmedAt       *time.Time          `json:"confirmedAt,omitempty"`
	ProcessingAt      *time.Time          `json:"processingAt,omitempty"`
	ShippingAt        *time.Time          `json:"shippingAt,omitempty"`
	DeliveredAt       *time.Time          `json:"deliveredAt,omitempty"`
	CanceledAt        *time.Time          `json:"canceledAt,omitempty"`
}

// CreateOrder places a new order.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	items := make([]order.CreateItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.CreateItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	o, err := h.orders.Create(r.Context(), order.CreateRequest{
		CustomerID:    req.CustomerID,
		Class:         order.Class(req.Class),
		Items:         items,
		VoucherCode:   req.VoucherCode,
		DeliveryFee:   req.DeliveryFee,
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toOrderResponse(o))
}

// GetOrder returns the order snapshot.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(o))
}

type updateFulfillmentRequest struct {
	Status string `json:"status"`
}

// UpdateFulfillment applies one fulfillment transition.
func (h *Handler) UpdateFulfillment(w http.ResponseWriter, r *http.Request) {
	var req updateFulfillmentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.orders.UpdateFulfillment(r.Context(), r.PathValue("id"), order.FulfillmentStatus(req.Status))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(o))
}

type updatePaymentRequest struct {
	Status string `json:"status"`
	Method string `json:"method,omitempty"`
}

// UpdatePayment applies one payment transition.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req updatePaymentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.orders.UpdatePayment(r.Context(), r.PathValue("id"),
		order.PaymentStatus(req.Status), order.PaymentMethod(req.Method))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(o))
}

// CancelOrder cancels a non-terminal order.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(o))
}

// MarkDelivered completes the SHIPPING -> DELIVERED transition.
func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.MarkDelivered(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(o))
}

type previewRequest struct {
	Items       []orderItemRequest `json:"items"`
	VoucherCode string             `json:"voucherCode,omitempty"`
}

type previewResponse struct {
	SubtotalBeforeDiscount float64           `json:"subtotalBeforeDiscount"`
	SubtotalAfterDiscount  float64           `json:"subtotalAfterDiscount"`
	OrderDiscount          float64           `json:"orderDiscount"`
	LineDiscounts          []float64         `json:"lineDiscounts"`
	AppliedDiscounts       []appliedDiscount `json:"appliedDiscounts"`
	FinalTotal             float64           `json:"finalTotal"`
}

type appliedDiscount struct {
	DiscountID string  `json:"discountId"`
	Name       string  `json:"name"`
	Amount     float64 `json:"amount"`
}

// PreviewDiscounts computes the discount outcome for a would-be order
// without creating anything.
func (h *Handler) PreviewDiscounts(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	items := make([]order.CreateItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.CreateItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	result, err := h.orders.PreviewDiscounts(r.Context(), items, req.VoucherCode)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toPreviewResponse(result))
}

type failedEntryResponse struct {
	ID           string    `json:"id"`
	EventType    string    `json:"eventType"`
	OrderID      string    `json:"orderId"`
	ScheduledFor time.Time `json:"scheduledFor"`
	RetryCount   int       `json:"retryCount"`
	ErrorMessage string    `json:"errorMessage"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ListFailedOutbox surfaces terminally failed outbox entries for manual
// inspection.
func (h *Handler) ListFailedOutbox(w http.ResponseWriter, r *http.Request) {
	entries, err := h.failed.ListFailed(r.Context(), 100)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]failedEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = failedEntryResponse{
			ID:           e.ID,
			EventType:    string(e.EventType),
			OrderID:      e.OrderID,
			ScheduledFor: e.ScheduledFor,
			RetryCount:   e.RetryCount,
			ErrorMessage: e.ErrorMessage,
			UpdatedAt:    e.UpdatedAt,
		}
	}
	writeJSON(w, r, http.StatusOK, out)
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemResponse{
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice.InexactFloat64(),
			DiscountApplied: item.DiscountApplied.InexactFloat64(),
			LineTotal:       item.LineTotal.InexactFloat64(),
		}
	}
	return orderResponse{
		ID:                o.ID,
		Number:            o.Number,
		CustomerID:        o.CustomerID,
		Class:             string(o.Class),
		Items:             items,
		Subtotal:          o.Subtotal.InexactFloat64(),
		DiscountTotal:     o.DiscountTotal.InexactFloat64(),
		DeliveryFee:       o.DeliveryFee.InexactFloat64(),
		Total:             o.Total.InexactFloat64(),
		FulfillmentStatus: string(o.FulfillmentStatus),
		PaymentStatus:     string(o.PaymentStatus),
		PaymentMethod:     string(o.PaymentMethod),
		VoucherCode:       o.VoucherCode,
		ReceiptNumber:     o.ReceiptNumber,
		PlacedAt:          o.PlacedAt,
		ConfirmedAt:       o.ConfirmedAt,
		ProcessingAt:      o.ProcessingAt,
		ShippingAt:        o.ShippingAt,
		DeliveredAt:       o.DeliveredAt,
		CanceledAt:        o.CanceledAt,
	}
}

func toPreviewResponse(res *discount.Result) previewResponse {
	lines := make([]float64, len(res.LineDiscounts))
	for i, d := range res.LineDiscounts {
		lines[i] = d.InexactFloat64()
	}
	applied := make([]appliedDiscount, len(res.AppliedDiscounts))
	for i, a := range res.AppliedDiscounts {
		applied[i] = appliedDiscount{
			DiscountID: a.Rule.ID,
			Name:       a.Rule.Name,
			Amount:     a.Amount.InexactFloat64(),
		}
	}
	return previewResponse{
		SubtotalBeforeDiscount: res.SubtotalBeforeDiscount.InexactFloat64(),
		SubtotalAfterDiscount:  res.SubtotalAfterDiscount.InexactFloat64(),
		OrderDiscount:          res.OrderDiscount.InexactFloat64(),
		LineDiscounts:          lines,
		AppliedDiscounts:       applied,
		FinalTotal:             res.FinalTotal.InexactFloat64(),
	}
}
