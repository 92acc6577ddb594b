package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/checkout-engine/internal/domain/cart"
)

const (
	getCartSQL = `SELECT COALESCE(discount_code, '') FROM carts WHERE user_id = $1`

	getCartItemsSQL = `SELECT variant_id, quantity FROM cart_items
		WHERE user_id = $1 ORDER BY variant_id`

	clearCartSQL = `DELETE FROM carts WHERE user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	db querier
}

// NewCartRepository returns a CartRepository that uses the given connection
// or transaction.
func NewCartRepository(db querier) *CartRepository {
	return &CartRepository{db: db}
}

// Get returns the user's cart. A user without a cart row gets an empty cart,
// not an error; checkout treats the two identically.
func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	c := &cart.Cart{UserID: userID}

	err := r.db.QueryRow(ctx, getCartSQL, userID).Scan(&c.DiscountCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c, nil
		}
		return nil, fmt.Errorf("getting cart for user %q: %w", userID, err)
	}

	rows, err := r.db.Query(ctx, getCartItemsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("getting cart items for user %q: %w", userID, err)
	}
	c.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		var item cart.Item
		err := row.Scan(&item.VariantID, &item.Quantity)
		return item, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning cart items for user %q: %w", userID, err)
	}
	return c, nil
}

// Clear removes the user's cart and, via cascade, its items.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.db.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart for user %q: %w", userID, err)
	}
	return nil
}
