package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/checkout-engine/internal/domain/payment"
)

const (
	// createPaymentSQL relies on the UNIQUE constraint on order_id to keep
	// payments one-to-one with orders under concurrent creation.
	createPaymentSQL = `INSERT INTO payments (id, order_id, provider, transaction_id,
		session_token, redirect_url, amount, status, raw_payload, created_at, paid_at, expired_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (order_id) DO NOTHING`

	getPaymentByOrderIDSQL = `SELECT id, order_id, provider, transaction_id,
		session_token, redirect_url, amount, status, raw_payload, created_at, paid_at, expired_at
		FROM payments WHERE order_id = $1`

	updatePaymentSQL = `UPDATE payments SET transaction_id = $2, session_token = $3,
		redirect_url = $4, status = $5, raw_payload = $6, paid_at = $7, expired_at = $8
		WHERE id = $1`

	listExpiredPaymentsSQL = `SELECT p.id, p.order_id, o.order_number
		FROM payments p JOIN orders o ON o.id = p.order_id
		WHERE p.status IN ('pending', 'processing') AND p.expired_at <= $1
		ORDER BY p.expired_at
		LIMIT $2`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	db querier
}

// NewPaymentRepository returns a PaymentRepository that uses the given
// connection or transaction.
func NewPaymentRepository(db querier) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create persists a new payment. Returns payment.ErrAlreadyExists when the
// order already has one.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	tag, err := r.db.Exec(ctx, createPaymentSQL,
		p.ID, p.OrderID, p.Provider, p.TransactionID,
		p.SessionToken, p.RedirectURL, p.Amount, string(p.Status),
		p.RawPayload, p.CreatedAt, p.PaidAt, p.ExpiredAt,
	)
	if err != nil {
		return fmt.Errorf("creating payment for order %q: %w", p.OrderID, err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrAlreadyExists
	}
	return nil
}

// GetByOrderID returns the order's payment, or payment.ErrNotFound.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*payment.Payment, error) {
	rows, err := r.db.Query(ctx, getPaymentByOrderIDSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting payment for order %q: %w", orderID, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("getting payment for order %q: %w", orderID, err)
	}
	return &p, nil
}

// Update persists the payment's mutable fields.
func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	tag, err := r.db.Exec(ctx, updatePaymentSQL,
		p.ID, p.TransactionID, p.SessionToken, p.RedirectURL,
		string(p.Status), p.RawPayload, p.PaidAt, p.ExpiredAt,
	)
	if err != nil {
		return fmt.Errorf("updating payment %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

// ListExpired returns pending or processing payments whose expiry deadline
// passed, oldest first, together with their order keys.
func (r *PaymentRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]payment.ExpiredPayment, error) {
	rows, err := r.db.Query(ctx, listExpiredPaymentsSQL, now, limit)
	if err != nil {
		return nil, fmt.Errorf("listing expired payments: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (payment.ExpiredPayment, error) {
		var c payment.ExpiredPayment
		err := row.Scan(&c.PaymentID, &c.OrderID, &c.OrderNumber)
		return c, err
	})
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var (
		p      payment.Payment
		status string
		amount decimal.Decimal
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &p.Provider, &p.TransactionID,
		&p.SessionToken, &p.RedirectURL, &amount, &status,
		&p.RawPayload, &p.CreatedAt, &p.PaidAt, &p.ExpiredAt,
	)
	p.Status = payment.Status(status)
	p.Amount = amount
	return p, err
}
