package discount

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Apply validates the discount against the order subtotal at the given
// instant and returns the discount amount, rounded to 2 decimal places.
// It does not touch the usage counter; callers consume a use separately
// so that validation stays a pure function.
func Apply(d *Discount, subtotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if d.ValidUntil != nil && now.After(*d.ValidUntil) {
		return decimal.Zero, ErrExpired
	}
	if subtotal.LessThan(d.MinOrderAmount) {
		return decimal.Zero, ErrMinOrderNotMet
	}
	if d.UsageLimit > 0 && d.UsageCount >= d.UsageLimit {
		return decimal.Zero, ErrUsageLimitReached
	}

	var amount decimal.Decimal
	switch d.Type {
	case TypePercentage:
		amount = subtotal.Mul(d.Value).Div(hundred)
	case TypeFixed:
		amount = decimal.Min(d.Value, subtotal)
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", d.Type)
	}

	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2), nil
}
