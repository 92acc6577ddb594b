package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/checkout-engine/internal/domain/stock"
)

// SettleRepos bundles the repositories a settlement step needs, bound to one
// transaction by the caller.
type SettleRepos struct {
	Orders Repository
	Stock  stock.Ledger
}

// MarkPaid transitions the order to paid and commits every line's stock
// reservation into a permanent decrement. The caller runs it inside the
// transaction that also updates the payment record.
func MarkPaid(ctx context.Context, r SettleRepos, o *Order, now time.Time) error {
	if err := Transition(o, StatusPaid, now); err != nil {
		return err
	}
	for _, item := range o.Items {
		if err := r.Stock.Commit(ctx, item.VariantID, item.Quantity); err != nil {
			return errors.Wrapf(err, "commit stock for variant %s", item.VariantID)
		}
	}
	if err := r.Orders.UpdateStatus(ctx, o); err != nil {
		return errors.Wrap(err, "update order status")
	}
	return nil
}

// Cancel transitions the order to cancelled, appends the reason to the audit
// note, and releases every line's stock reservation. Stock is released only
// while the reservation is still outstanding (order never paid): after a
// successful payment the reservation was already committed, and a
// reservation is resolved exactly once.
func Cancel(ctx context.Context, r SettleRepos, o *Order, reason string, now time.Time) error {
	wasPaid := o.PaidAt != nil

	if err := Transition(o, StatusCancelled, now); err != nil {
		return err
	}
	if reason != "" {
		if o.Note != "" {
			o.Note += "\n"
		}
		o.Note += "cancelled: " + reason
	}

	if !wasPaid {
		for _, item := range o.Items {
			if err := r.Stock.Release(ctx, item.VariantID, item.Quantity); err != nil {
				return errors.Wrapf(err, "release stock for variant %s", item.VariantID)
			}
		}
	}

	if err := r.Orders.UpdateStatus(ctx, o); err != nil {
		return errors.Wrap(err, "update order status")
	}
	return nil
}
