// Package cart models the pre-checkout shopping cart. A cart is input to
// checkout only; once converted into an order it is cleared.
package cart

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrEmpty is returned when checkout is attempted with no cart items.
var ErrEmpty = errors.New("cart is empty")

// Item is a single cart line: a variant and a requested quantity.
type Item struct {
	VariantID string
	Quantity  int
}

// Cart is the snapshot handed to checkout.
type Cart struct {
	UserID       string
	Items        []Item
	DiscountCode string
}

// Repository defines persistence operations for carts.
type Repository interface {
	// Get returns the user's cart. A user without a cart row gets an empty cart.
	Get(ctx context.Context, userID string) (*Cart, error)

	// Clear removes the cart and all its items.
	Clear(ctx context.Context, userID string) error
}
