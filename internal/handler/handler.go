// Package handler exposes the checkout engine over HTTP: order placement and
// retrieval, payment session creation, and provider webhooks.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/checkout-engine/internal/domain/order"
	"github.com/xenking/checkout-engine/internal/domain/payment"
)

// Handler wires the HTTP surface to the domain services.
type Handler struct {
	checkout   *order.Checkout
	orders     order.Repository
	payments   *payment.Service
	reconciler *payment.Reconciler
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	checkout *order.Checkout,
	orders order.Repository,
	payments *payment.Service,
	reconciler *payment.Reconciler,
) *Handler {
	return &Handler{
		checkout:   checkout,
		orders:     orders,
		payments:   payments,
		reconciler: reconciler,
	}
}

// Register adds the API routes to mux. The auth middleware guards the order
// routes; webhooks authenticate via provider signatures instead.
func (h *Handler) Register(mux *http.ServeMux, auth func(http.Handler) http.Handler) {
	mux.Handle("POST /api/orders", auth(http.HandlerFunc(h.placeOrder)))
	mux.Handle("GET /api/orders/{number}", auth(http.HandlerFunc(h.getOrder)))
	mux.Handle("POST /api/orders/{number}/pay", auth(http.HandlerFunc(h.payOrder)))
	mux.HandleFunc("POST /webhooks/{provider}", h.webhook)
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

func logError(r *http.Request, msg string, err error) {
	zctx.From(r.Context()).Error(msg, zap.Error(err))
}
