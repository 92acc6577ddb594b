// Package repository implements the domain repositories backed by
// PostgreSQL, plus the transactional stores that bind them together.
package repository

import (
	"context"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/checkout-engine/db"
	"github.com/xenking/checkout-engine/internal/domain/order"
	"github.com/xenking/checkout-engine/internal/domain/payment"
)

// querier is the subset of pgx operations the repositories need. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so every repository works standalone
// and inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, db.Schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

var _ order.UnitOfWork = (*CheckoutStore)(nil)

// CheckoutStore implements order.UnitOfWork: one transaction spanning the
// cart, catalog, stock, discount and order repositories.
type CheckoutStore struct {
	pool *pgxpool.Pool
}

// NewCheckoutStore returns a CheckoutStore that uses the given pool.
func NewCheckoutStore(pool *pgxpool.Pool) *CheckoutStore {
	return &CheckoutStore{pool: pool}
}

// WithTx runs fn with repositories bound to a single transaction. An error
// from fn rolls everything back.
func (s *CheckoutStore) WithTx(ctx context.Context, fn func(ctx context.Context, r order.TxRepos) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, order.TxRepos{
			Carts:     NewCartRepository(tx),
			Variants:  NewVariantRepository(tx),
			Stock:     NewVariantRepository(tx),
			Discounts: NewDiscountRepository(tx),
			Orders:    NewOrderRepository(tx),
		})
	})
}

var _ payment.UnitOfWork = (*ReconcileStore)(nil)

// ReconcileStore implements payment.UnitOfWork: one transaction spanning the
// order, payment, stock and webhook-event repositories, used by webhook
// reconciliation and the expiry sweeper.
type ReconcileStore struct {
	pool *pgxpool.Pool
}

// NewReconcileStore returns a ReconcileStore that uses the given pool.
func NewReconcileStore(pool *pgxpool.Pool) *ReconcileStore {
	return &ReconcileStore{pool: pool}
}

// WithTx runs fn with repositories bound to a single transaction.
func (s *ReconcileStore) WithTx(ctx context.Context, fn func(ctx context.Context, r payment.ReconcileRepos) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, payment.ReconcileRepos{
			Orders:   NewOrderRepository(tx),
			Payments: NewPaymentRepository(tx),
			Stock:    NewVariantRepository(tx),
			Events:   NewWebhookEventRepository(tx),
		})
	})
}
