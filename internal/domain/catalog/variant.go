// Package catalog exposes the read side of the product catalog that checkout
// depends on. Names and prices read here are snapshotted onto order items and
// never re-derived afterwards.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested variant does not exist.
var ErrNotFound = errors.New("variant not found")

// Variant is a purchasable product variant with its live stock counters.
type Variant struct {
	ID          string
	ProductName string
	VariantName string
	Price       decimal.Decimal
	IsActive    bool
	StockOnHand int
	Reserved    int
}

// Available returns the quantity visible to catalog browsing.
func (v Variant) Available() int {
	return v.StockOnHand - v.Reserved
}

// Repository defines read operations over product variants.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Variant, error)
	GetByIDs(ctx context.Context, ids []string) ([]Variant, error)
}
