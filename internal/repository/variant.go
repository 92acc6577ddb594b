package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/checkout-engine/internal/domain/catalog"
	"github.com/xenking/checkout-engine/internal/domain/stock"
)

const (
	getVariantByIDSQL = `SELECT id, product_name, variant_name, price, is_active, stock_on_hand, reserved
		FROM product_variants WHERE id = $1`

	getVariantsByIDsSQL = `SELECT id, product_name, variant_name, price, is_active, stock_on_hand, reserved
		FROM product_variants WHERE id = ANY($1)`

	// reserveStockSQL succeeds only while enough unreserved stock remains;
	// the WHERE clause is the oversell guard, not an application check.
	reserveStockSQL = `UPDATE product_variants
		SET reserved = reserved + $2
		WHERE id = $1 AND stock_on_hand - reserved >= $2`

	releaseStockSQL = `UPDATE product_variants
		SET reserved = reserved - $2
		WHERE id = $1 AND reserved >= $2`

	commitStockSQL = `UPDATE product_variants
		SET reserved = reserved - $2, stock_on_hand = stock_on_hand - $2
		WHERE id = $1 AND reserved >= $2`

	getAvailabilitySQL = `SELECT stock_on_hand - reserved FROM product_variants WHERE id = $1`
)

var (
	_ catalog.Repository = (*VariantRepository)(nil)
	_ stock.Ledger       = (*VariantRepository)(nil)
)

// VariantRepository implements catalog.Repository and stock.Ledger backed by
// PostgreSQL. Both live on the same table: the catalog fields are reads, the
// ledger operations are guarded updates of the stock counters.
type VariantRepository struct {
	db querier
}

// NewVariantRepository returns a VariantRepository that uses the given
// connection or transaction.
func NewVariantRepository(db querier) *VariantRepository {
	return &VariantRepository{db: db}
}

// GetByID returns a single variant by its identifier.
func (r *VariantRepository) GetByID(ctx context.Context, id string) (*catalog.Variant, error) {
	rows, err := r.db.Query(ctx, getVariantByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}
	return &v, nil
}

// GetByIDs returns variants matching any of the given IDs.
func (r *VariantRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Variant, error) {
	rows, err := r.db.Query(ctx, getVariantsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting variants by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

// Reserve places a hold of qty units on the variant. The update only matches
// while enough unreserved stock exists; zero rows affected means the request
// cannot be satisfied and is reported as OutOfStockError with the current
// availability.
func (r *VariantRepository) Reserve(ctx context.Context, variantID string, qty int) error {
	tag, err := r.db.Exec(ctx, reserveStockSQL, variantID, qty)
	if err != nil {
		return fmt.Errorf("reserving stock for variant %q: %w", variantID, err)
	}
	if tag.RowsAffected() == 0 {
		available := 0
		if err := r.db.QueryRow(ctx, getAvailabilitySQL, variantID).Scan(&available); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return catalog.ErrNotFound
			}
			return fmt.Errorf("checking availability for variant %q: %w", variantID, err)
		}
		return &stock.OutOfStockError{VariantID: variantID, Requested: qty, Available: available}
	}
	return nil
}

// Release returns a hold of qty units to the available pool.
func (r *VariantRepository) Release(ctx context.Context, variantID string, qty int) error {
	tag, err := r.db.Exec(ctx, releaseStockSQL, variantID, qty)
	if err != nil {
		return fmt.Errorf("releasing stock for variant %q: %w", variantID, err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(stock.ErrDoubleRelease, "variant %q qty %d", variantID, qty)
	}
	return nil
}

// Commit converts a hold of qty units into a permanent decrement.
func (r *VariantRepository) Commit(ctx context.Context, variantID string, qty int) error {
	tag, err := r.db.Exec(ctx, commitStockSQL, variantID, qty)
	if err != nil {
		return fmt.Errorf("committing stock for variant %q: %w", variantID, err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(stock.ErrDoubleRelease, "variant %q qty %d", variantID, qty)
	}
	return nil
}

func scanVariant(row pgx.CollectableRow) (catalog.Variant, error) {
	var (
		v     catalog.Variant
		price decimal.Decimal
	)
	err := row.Scan(
		&v.ID, &v.ProductName, &v.VariantName, &price,
		&v.IsActive, &v.StockOnHand, &v.Reserved,
	)
	v.Price = price
	return v, err
}
