package payment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/checkout-engine/internal/domain/order"
)

// ServiceConfig holds non-dependency settings for the payment service.
type ServiceConfig struct {
	// SessionExpiry is how long a created payment session stays payable.
	SessionExpiry time.Duration
}

// Service creates payment sessions for orders. CreatePayment is idempotent
// at the order level: while a payment is pending or processing, repeated
// calls return the existing record instead of opening a second session.
type Service struct {
	payments Repository
	gw       Gateway
	expiry   time.Duration
	now      func() time.Time
}

// NewService creates a payment Service using the given gateway.
func NewService(payments Repository, gw Gateway, cfg ServiceConfig) *Service {
	expiry := cfg.SessionExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &Service{
		payments: payments,
		gw:       gw,
		expiry:   expiry,
		now:      time.Now,
	}
}

// CreatePayment returns the order's payment, creating a provider session
// when needed. A failed or expired previous attempt gets a fresh session on
// the same record, keeping payments one-to-one with orders. On gateway
// failure the payment is marked failed with the error captured and a
// *GatewayError is returned; this layer never retries.
func (s *Service) CreatePayment(ctx context.Context, o *order.Order) (*Payment, error) {
	if o.Status != order.StatusPending {
		return nil, errors.Wrapf(ErrNotPayable, "order %s is %s", o.Number, o.Status)
	}

	p, err := s.payments.GetByOrderID(ctx, o.ID)
	switch {
	case err == nil:
		switch p.Status {
		case StatusPending, StatusProcessing:
			return p, nil
		case StatusSuccess, StatusRefunded:
			return nil, ErrAlreadySettled
		}
		// failed or expired: reuse the record with a fresh session.
		return s.openSession(ctx, o, p, false)
	case errors.Is(err, ErrNotFound):
		now := s.now()
		expiresAt := now.Add(s.expiry)
		p = &Payment{
			ID:        uuid.New().String(),
			OrderID:   o.ID,
			Provider:  s.gw.Name(),
			Amount:    o.Total,
			Status:    StatusPending,
			CreatedAt: now,
			ExpiredAt: &expiresAt,
		}
		return s.openSession(ctx, o, p, true)
	default:
		return nil, errors.Wrap(err, "get payment")
	}
}

func (s *Service) openSession(ctx context.Context, o *order.Order, p *Payment, create bool) (*Payment, error) {
	now := s.now()
	expiresAt := now.Add(s.expiry)
	p.Status = StatusPending
	p.ExpiredAt = &expiresAt

	persist := s.payments.Update
	if create {
		persist = s.payments.Create
	}
	if err := persist(ctx, p); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			// Lost a race with a concurrent attempt; return that one.
			return s.payments.GetByOrderID(ctx, o.ID)
		}
		return nil, errors.Wrap(err, "persist payment")
	}

	session, err := s.gw.CreateSession(ctx, SessionRequest{
		OrderNumber: o.Number,
		GrossAmount: o.Total,
		Lines:       sessionLines(o),
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		p.Status = StatusFailed
		p.RawPayload, _ = json.Marshal(map[string]string{"error": err.Error()})
		if updErr := s.payments.Update(ctx, p); updErr != nil {
			return nil, errors.Wrap(updErr, "mark payment failed")
		}
		return nil, &GatewayError{Provider: s.gw.Name(), Err: err}
	}

	p.SessionToken = session.Token
	p.RedirectURL = session.RedirectURL
	if err := s.payments.Update(ctx, p); err != nil {
		return nil, errors.Wrap(err, "store session")
	}
	return p, nil
}

// sessionLines flattens the order into the provider-neutral line list:
// items, then the discount as a negative line, then shipping, so the sum of
// lines equals the gross amount exactly.
func sessionLines(o *order.Order) []SessionLine {
	lines := make([]SessionLine, 0, len(o.Items)+2)
	for _, item := range o.Items {
		lines = append(lines, SessionLine{
			ID:       item.VariantID,
			Name:     itemName(item),
			Price:    item.Price,
			Quantity: item.Quantity,
		})
	}
	if o.DiscountAmount.IsPositive() {
		lines = append(lines, SessionLine{
			ID:       "DISCOUNT",
			Name:     "Discount " + o.DiscountCode,
			Price:    o.DiscountAmount.Neg(),
			Quantity: 1,
		})
	}
	if o.ShippingCost.IsPositive() {
		lines = append(lines, SessionLine{
			ID:       "SHIPPING",
			Name:     "Shipping",
			Price:    o.ShippingCost,
			Quantity: 1,
		})
	}
	return lines
}

func itemName(i order.OrderItem) string {
	if i.VariantName == "" {
		return i.ProductName
	}
	return i.ProductName + " - " + i.VariantName
}
