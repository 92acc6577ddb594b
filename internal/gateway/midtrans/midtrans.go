// Package midtrans implements the payment.Gateway interface against the
// Midtrans Snap API.
package midtrans

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/checkout-engine/internal/domain/payment"
)

// Name is the provider identifier used in payment records and webhook routes.
const Name = "midtrans"

const defaultTimeout = 10 * time.Second

// Config holds Midtrans credentials and endpoints.
type Config struct {
	// ServerKey authenticates API calls and signs webhook notifications.
	ServerKey string
	// BaseURL is the Snap API root, e.g. https://app.sandbox.midtrans.com/snap/v1.
	BaseURL string
	// Timeout bounds the outbound session-creation call. Defaults to 10s.
	Timeout time.Duration
}

// Gateway is the Midtrans implementation of payment.Gateway.
type Gateway struct {
	httpClient *http.Client
	baseURL    string
	serverKey  string
}

var _ payment.Gateway = (*Gateway)(nil)

// New creates a Midtrans gateway.
func New(cfg Config) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Gateway{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		serverKey:  cfg.ServerKey,
	}
}

// Name implements payment.Gateway.
func (g *Gateway) Name() string { return Name }

type itemDetail struct {
	ID       string `json:"id"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
	Name     string `json:"name"`
}

type snapRequest struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount string `json:"gross_amount"`
	} `json:"transaction_details"`
	ItemDetails []itemDetail `json:"item_details"`
	Expiry      struct {
		Unit     string `json:"unit"`
		Duration int    `json:"duration"`
	} `json:"expiry"`
}

type snapResponse struct {
	Token        string   `json:"token"`
	RedirectURL  string   `json:"redirect_url"`
	ErrorMessage []string `json:"error_messages"`
}

// CreateSession opens a Snap payment session. The item list already includes
// discount and shipping lines, so gross_amount equals the sum of items as
// Midtrans requires.
func (g *Gateway) CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	var body snapRequest
	body.TransactionDetails.OrderID = req.OrderNumber
	body.TransactionDetails.GrossAmount = req.GrossAmount.StringFixed(2)
	body.ItemDetails = make([]itemDetail, len(req.Lines))
	for i, line := range req.Lines {
		body.ItemDetails[i] = itemDetail{
			ID:       line.ID,
			Price:    line.Price.StringFixed(2),
			Quantity: line.Quantity,
			Name:     line.Name,
		}
	}
	body.Expiry.Unit = "minutes"
	body.Expiry.Duration = int(time.Until(req.ExpiresAt).Minutes())

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal snap request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/transactions", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Basic "+
		base64.StdEncoding.EncodeToString([]byte(g.serverKey+":")))

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "call snap api")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read snap response")
	}

	var snap snapResponse
	if err := json.Unmarshal(respBody, &snap); err != nil {
		return nil, errors.Wrapf(err, "decode snap response (status %d)", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("snap api status %d: %v", resp.StatusCode, snap.ErrorMessage)
	}

	return &payment.Session{
		Token:       snap.Token,
		RedirectURL: snap.RedirectURL,
	}, nil
}

type notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	FraudStatus       string `json:"fraud_status"`
	SignatureKey      string `json:"signature_key"`
}

// ParseNotification decodes a Midtrans HTTP notification body.
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
		FraudStatus:       n.FraudStatus,
		SignatureKey:      n.SignatureKey,
		Raw:               raw,
	}, nil
}

// VerifySignature recomputes SHA-512(order_id + status_code + gross_amount +
// server_key) and compares it to signature_key in constant time.
func (g *Gateway) VerifySignature(n *payment.Notification) bool {
	sum := sha512.Sum512([]byte(n.OrderNumber + n.StatusCode + n.GrossAmount + g.serverKey))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(n.SignatureKey)) == 1
}

// MapStatus translates Midtrans transaction statuses to internal ones.
// A capture counts as success only when fraud screening accepted it.
func (g *Gateway) MapStatus(n *payment.Notification) payment.Status {
	switch n.TransactionStatus {
	case "capture":
		switch n.FraudStatus {
		case "", "accept":
			return payment.StatusSuccess
		case "challenge":
			return payment.StatusProcessing
		default:
			return payment.StatusFailed
		}
	case "settlement":
		return payment.StatusSuccess
	case "pending":
		return payment.StatusProcessing
	case "deny", "cancel":
		return payment.StatusFailed
	case "expire":
		return payment.StatusExpired
	case "refund", "partial_refund":
		return payment.StatusRefunded
	default:
		return payment.StatusFailed
	}
}

// Signature computes the notification signature for the given fields. Used
// by tests to forge valid notifications.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}
