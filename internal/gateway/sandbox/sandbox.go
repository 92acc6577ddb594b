// Package sandbox is an in-process payment provider used for development and
// end-to-end tests. Sessions are deterministic and notifications are signed
// with HMAC-SHA256 over the same fields Midtrans signs, so the reconciler
// path is exercised unchanged.
package sandbox

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/go-faster/errors"

	"github.com/xenking/checkout-engine/internal/domain/payment"
)

// Name is the provider identifier.
const Name = "sandbox"

// Gateway implements payment.Gateway without any network calls.
type Gateway struct {
	secret      []byte
	redirectURL string
}

var _ payment.Gateway = (*Gateway)(nil)

// New creates a sandbox gateway. secret signs notifications; redirectURL is
// where created sessions point (typically a local payment simulator page).
func New(secret, redirectURL string) *Gateway {
	return &Gateway{secret: []byte(secret), redirectURL: redirectURL}
}

// Name implements payment.Gateway.
func (g *Gateway) Name() string { return Name }

// CreateSession issues a deterministic token derived from the order number.
func (g *Gateway) CreateSession(_ context.Context, req payment.SessionRequest) (*payment.Session, error) {
	token := g.sign(req.OrderNumber, "201", req.GrossAmount.StringFixed(2))
	return &payment.Session{
		Token:       token,
		RedirectURL: g.redirectURL + "?session=" + token,
	}, nil
}

type notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	SignatureKey      string `json:"signature_key"`
}

// ParseNotification decodes a sandbox notification body. The wire format
// mirrors Midtrans field names so simulator payloads stay interchangeable.
func (g *Gateway) ParseNotification(raw []byte) (*payment.Notification, error) {
	var n notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, errors.Wrap(err, "decode notification")
	}
	if n.OrderID == "" || n.TransactionStatus == "" {
		return nil, errors.New("notification missing order_id or transaction_status")
	}
	return &payment.Notification{
		OrderNumber:       n.OrderID,
		TransactionID:     n.TransactionID,
		TransactionStatus: n.TransactionStatus,
		StatusCode:        n.StatusCode,
		GrossAmount:       n.GrossAmount,
		SignatureKey:      n.SignatureKey,
		Raw:               raw,
	}, nil
}

// VerifySignature checks the HMAC carried by the notification.
func (g *Gateway) VerifySignature(n *payment.Notification) bool {
	expected := g.sign(n.OrderNumber, n.StatusCode, n.GrossAmount)
	return hmac.Equal([]byte(expected), []byte(n.SignatureKey))
}

// MapStatus translates sandbox statuses, which reuse Midtrans vocabulary.
func (g *Gateway) MapStatus(n *payment.Notification) payment.Status {
	switch n.TransactionStatus {
	case "capture", "settlement":
		return payment.StatusSuccess
	case "pending":
		return payment.StatusProcessing
	case "deny", "cancel":
		return payment.StatusFailed
	case "expire":
		return payment.StatusExpired
	case "refund":
		return payment.StatusRefunded
	default:
		return payment.StatusFailed
	}
}

// Sign computes the notification signature for the given fields. Exposed so
// tests and the payment simulator can produce valid notifications.
func (g *Gateway) Sign(orderID, statusCode, grossAmount string) string {
	return g.sign(orderID, statusCode, grossAmount)
}

func (g *Gateway) sign(orderID, statusCode, grossAmount string) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(orderID + statusCode + grossAmount))
	return hex.EncodeToString(mac.Sum(nil))
}
