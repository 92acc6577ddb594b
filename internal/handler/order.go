package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/checkout-engine/internal/domain/cart"
	"github.com/xenking/checkout-engine/internal/domain/discount"
	"github.com/xenking/checkout-engine/internal/domain/order"
	"github.com/xenking/checkout-engine/internal/domain/payment"
	"github.com/xenking/checkout-engine/internal/domain/stock"
)

type shippingRequest struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
}

type placeOrderRequest struct {
	Shipping shippingRequest `json:"shipping"`
}

type orderItemResponse struct {
	VariantID   string `json:"variant_id"`
	ProductName string `json:"product_name"`
	VariantName string `json:"variant_name,omitempty"`
	Price       string `json:"price"`
	Quantity    int    `json:"quantity"`
	Subtotal    string `json:"subtotal"`
}

type orderResponse struct {
	Number         string              `json:"order_number"`
	Status         string              `json:"status"`
	Items          []orderItemResponse `json:"items"`
	Subtotal       string              `json:"subtotal"`
	DiscountCode   string              `json:"discount_code,omitempty"`
	DiscountAmount string              `json:"discount_amount"`
	ShippingCost   string              `json:"shipping_cost"`
	Total          string              `json:"total"`
	CreatedAt      time.Time           `json:"created_at"`
	PaidAt         *time.Time          `json:"paid_at,omitempty"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemResponse{
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			Price:       item.Price.StringFixed(2),
			Quantity:    item.Quantity,
			Subtotal:    item.Subtotal().StringFixed(2),
		}
	}
	return orderResponse{
		Number:         o.Number,
		Status:         string(o.Status),
		Items:          items,
		Subtotal:       o.Subtotal.StringFixed(2),
		DiscountCode:   o.DiscountCode,
		DiscountAmount: o.DiscountAmount.StringFixed(2),
		ShippingCost:   o.ShippingCost.StringFixed(2),
		Total:          o.Total.StringFixed(2),
		CreatedAt:      o.CreatedAt,
		PaidAt:         o.PaidAt,
	}
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	o, err := h.checkout.CreateFromCart(r.Context(), userID, order.ShippingInfo{
		Name:       req.Shipping.Name,
		Phone:      req.Shipping.Phone,
		Address:    req.Shipping.Address,
		City:       req.Shipping.City,
		PostalCode: req.Shipping.PostalCode,
	})
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	o, err := h.orders.GetByNumber(r.Context(), r.PathValue("number"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		logError(r, "get order failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// Orders are private to their owner; a foreign number reads as absent.
	if o.UserID != userID {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type paymentResponse struct {
	OrderNumber string     `json:"order_number"`
	Provider    string     `json:"provider"`
	Status      string     `json:"status"`
	Amount      string     `json:"amount"`
	Token       string     `json:"token"`
	RedirectURL string     `json:"redirect_url"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) payOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	o, err := h.orders.GetByNumber(r.Context(), r.PathValue("number"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		logError(r, "get order failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if o.UserID != userID {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	p, err := h.payments.CreatePayment(r.Context(), o)
	if err != nil {
		h.writePaymentError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, paymentResponse{
		OrderNumber: o.Number,
		Provider:    p.Provider,
		Status:      string(p.Status),
		Amount:      p.Amount.StringFixed(2),
		Token:       p.SessionToken,
		RedirectURL: p.RedirectURL,
		ExpiresAt:   p.ExpiredAt,
	})
}

// writeCheckoutError maps checkout domain errors onto HTTP statuses.
func (h *Handler) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve  *order.ValidationError
		ive *order.InactiveVariantError
		oos *stock.OutOfStockError
	)
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, cart.ErrEmpty):
		writeError(w, http.StatusBadRequest, "cart is empty")
	case errors.As(err, &oos):
		writeError(w, http.StatusConflict, oos.Error())
	case errors.As(err, &ive):
		writeError(w, http.StatusUnprocessableEntity, ive.Error())
	case errors.Is(err, discount.ErrInvalidCode),
		errors.Is(err, discount.ErrExpired),
		errors.Is(err, discount.ErrMinOrderNotMet),
		errors.Is(err, discount.ErrUsageLimitReached):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		logError(r, "checkout failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writePaymentError maps payment domain errors onto HTTP statuses.
func (h *Handler) writePaymentError(w http.ResponseWriter, r *http.Request, err error) {
	var gerr *payment.GatewayError
	switch {
	case errors.Is(err, payment.ErrNotPayable):
		writeError(w, http.StatusConflict, "order is not payable")
	case errors.Is(err, payment.ErrAlreadySettled):
		writeError(w, http.StatusConflict, "payment already settled")
	case errors.As(err, &gerr):
		logError(r, "payment gateway failed", err)
		writeError(w, http.StatusBadGateway, "payment provider unavailable")
	default:
		logError(r, "create payment failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
