package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/checkout-engine/internal/domain/order"
	"github.com/xenking/checkout-engine/internal/domain/payment"
)

// maxWebhookBody bounds provider notification payloads.
const maxWebhookBody = 1 << 20

type webhookResponse struct {
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	Applied     bool   `json:"applied"`
}

// webhook receives a provider notification. Non-2xx responses make providers
// redeliver, so only failures we want retried (transient errors) return 5xx;
// authentication failures and unattributable events are final.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	res, err := h.reconciler.HandleNotification(r.Context(), provider, raw)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrUnknownProvider):
			writeError(w, http.StatusNotFound, "unknown provider")
		case errors.Is(err, payment.ErrInvalidSignature):
			zctx.From(r.Context()).Warn("webhook rejected: bad signature",
				zap.String("provider", provider))
			writeError(w, http.StatusUnauthorized, "invalid signature")
		case errors.Is(err, order.ErrNotFound), errors.Is(err, payment.ErrNotFound):
			zctx.From(r.Context()).Warn("webhook for unknown order",
				zap.String("provider", provider), zap.Error(err))
			writeError(w, http.StatusNotFound, "unknown order")
		default:
			logError(r, "webhook processing failed", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{
		OrderNumber: res.OrderNumber,
		Status:      string(res.Status),
		Applied:     res.Applied,
	})
}
