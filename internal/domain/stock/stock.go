// Package stock defines the inventory ledger: temporary reservations taken at
// checkout and their resolution into a permanent decrement (commit) or a
// return to available stock (release).
package stock

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// ErrDoubleRelease is returned when a release would drop the reserved count
// below zero. Releasing a reservation twice is a programming error and must
// be surfaced, not swallowed.
var ErrDoubleRelease = errors.New("stock release exceeds reserved quantity")

// OutOfStockError indicates a reservation could not be taken because the
// variant's available quantity (stock_on_hand - reserved) is insufficient.
// It is an expected business outcome, not a fault.
type OutOfStockError struct {
	VariantID string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("variant %s out of stock: requested %d, available %d",
		e.VariantID, e.Requested, e.Available)
}

// Ledger owns per-variant stock accounting. Implementations must make each
// operation atomic with respect to concurrent callers: two reservations for
// the same variant must never both succeed past physical stock.
//
// Invariants maintained by every implementation:
//
//	0 <= reserved <= stock_on_hand
type Ledger interface {
	// Reserve places a temporary hold of qty units on the variant.
	// Returns *OutOfStockError when available stock is insufficient.
	Reserve(ctx context.Context, variantID string, qty int) error

	// Release returns qty reserved units to available stock.
	// Returns ErrDoubleRelease when qty exceeds the reserved count.
	Release(ctx context.Context, variantID string, qty int) error

	// Commit turns a reservation into a permanent decrement: stock_on_hand
	// and reserved both drop by qty in one atomic step.
	Commit(ctx context.Context, variantID string, qty int) error
}
