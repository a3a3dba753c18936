// Package handler exposes the order operations over a thin JSON HTTP
// surface. Request routing and validation frameworks stay out of the domain:
// handlers decode, delegate, and map typed domain errors to status codes.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/retail-orders/internal/domain/customer"
	"github.com/xenking/retail-orders/internal/domain/notification"
	"github.com/xenking/retail-orders/internal/domain/order"
	"github.com/xenking/retail-orders/internal/outbox"
)

// Handler dispatches HTTP requests to the order service and the outbox
// inspection queries.
type Handler struct {
	orders *order.Service
	failed outbox.Repository
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(orders *order.Service, failed outbox.Repository) *Handler {
	return &Handler{orders: orders, failed: failed}
}

// Register mounts all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("PATCH /api/orders/{id}/fulfillment", h.UpdateFulfillment)
	mux.HandleFunc("PATCH /api/orders/{id}/payment", h.UpdatePayment)
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.CancelOrder)
	mux.HandleFunc("POST /api/orders/{id}/delivered", h.MarkDelivered)
	mux.HandleFunc("POST /api/discounts/preview", h.PreviewDiscounts)
	mux.HandleFunc("GET /api/outbox/failed", h.ListFailedOutbox)
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, errorResponse{Code: status, Message: message})
}

// writeDomainError maps typed domain errors to status codes. Unknown errors
// become 500 and are logged with the request logger.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		illegalF *order.IllegalTransitionError
		illegalP *order.IllegalPaymentTransitionError
		badQty   *order.InvalidQuantityError
		noProd   *order.ProductNotFoundError
		badToken *notification.UnknownTokenError
	)

	switch {
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &badQty), errors.As(err, &noProd), errors.As(err, &badToken):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &illegalF), errors.As(err, &illegalP):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrNotFound), errors.Is(err, customer.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}
