package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/checkout-engine/internal/domain/discount"
)

const (
	getDiscountByCodeSQL = `SELECT code, discount_type, value, min_order_amount, valid_until, usage_limit, usage_count
		FROM discounts WHERE UPPER(code) = UPPER($1) AND active = TRUE`

	// consumeDiscountUseSQL only matches while the usage limit has headroom,
	// so concurrent checkouts cannot push usage_count past the limit.
	consumeDiscountUseSQL = `UPDATE discounts SET usage_count = usage_count + 1
		WHERE UPPER(code) = UPPER($1) AND active = TRUE
		AND (usage_limit = 0 OR usage_count < usage_limit)`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
// Codes are matched case-insensitively.
type DiscountRepository struct {
	db querier
}

// NewDiscountRepository returns a DiscountRepository that uses the given
// connection or transaction.
func NewDiscountRepository(db querier) *DiscountRepository {
	return &DiscountRepository{db: db}
}

// FindByCode looks up an active discount by its code. Returns
// discount.ErrInvalidCode when no matching active discount exists.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Discount, error) {
	rows, err := r.db.Query(ctx, getDiscountByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrInvalidCode
		}
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}
	return &d, nil
}

// ConsumeUse atomically increments the usage counter. When the guarded
// update matches no row, the cause is resolved by re-reading the code:
// a missing or inactive code is ErrInvalidCode, an exhausted one is
// ErrUsageLimitReached.
func (r *DiscountRepository) ConsumeUse(ctx context.Context, code string) error {
	tag, err := r.db.Exec(ctx, consumeDiscountUseSQL, code)
	if err != nil {
		return fmt.Errorf("consuming use for discount %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByCode(ctx, code); err != nil {
			return err
		}
		return discount.ErrUsageLimitReached
	}
	return nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Discount, error) {
	var (
		d            discount.Discount
		discountType string
		value        decimal.Decimal
		minOrder     decimal.Decimal
		validUntil   *time.Time
	)
	err := row.Scan(
		&d.Code, &discountType, &value, &minOrder,
		&validUntil, &d.UsageLimit, &d.UsageCount,
	)
	d.Type = discount.Type(discountType)
	d.Value = value
	d.MinOrderAmount = minOrder
	d.ValidUntil = validUntil
	return d, err
}
