package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/checkout-engine/internal/domain/order"
	"github.com/xenking/checkout-engine/internal/event"
	"github.com/xenking/checkout-engine/pkg/lock"
)

// Sweeper expires payment sessions whose deadline passed without a provider
// notification. It reuses the same cancellation path as a deny webhook, so
// the final state of a swept order is identical to a denied one.
type Sweeper struct {
	payments Repository
	uow      UnitOfWork
	locker   lock.Locker
	events   event.Publisher
	batch    int
	now      func() time.Time
}

// NewSweeper creates a Sweeper. batch bounds how many payments one sweep
// pass processes.
func NewSweeper(payments Repository, uow UnitOfWork, locker lock.Locker, events event.Publisher, batch int) *Sweeper {
	if batch <= 0 {
		batch = 100
	}
	if events == nil {
		events = event.Nop{}
	}
	return &Sweeper{
		payments: payments,
		uow:      uow,
		locker:   locker,
		events:   events,
		batch:    batch,
		now:      time.Now,
	}
}

// SweepExpired expires one batch of overdue payments and returns how many
// were swept. Each payment is processed under the same per-order lock the
// webhook reconciler uses, and re-checked inside its transaction: a
// settlement racing the sweep wins.
func (s *Sweeper) SweepExpired(ctx context.Context) (int, error) {
	candidates, err := s.payments.ListExpired(ctx, s.now(), s.batch)
	if err != nil {
		return 0, errors.Wrap(err, "list expired payments")
	}

	swept := 0
	for _, c := range candidates {
		var number string
		err := s.locker.WithLock(ctx, "order:"+c.OrderNumber, func(ctx context.Context) error {
			number, err = s.sweepOne(ctx, c.OrderID)
			return err
		})
		if err != nil {
			zctx.From(ctx).Error("sweep payment failed",
				zap.String("payment_id", c.PaymentID), zap.Error(err))
			continue
		}
		if number == "" {
			continue // settled while we were looking at it
		}

		swept++
		if err := s.events.Publish(ctx, event.Event{
			Type:        event.TypeOrderCancelled,
			OrderNumber: number,
			Reason:      "payment session expired",
			OccurredAt:  s.now(),
		}); err != nil {
			zctx.From(ctx).Warn("publish order.cancelled failed",
				zap.String("order_number", number), zap.Error(err))
		}
	}
	return swept, nil
}

// sweepOne expires a single payment, returning the order number when the
// sweep applied, or "" when the payment settled in the meantime.
func (s *Sweeper) sweepOne(ctx context.Context, orderID string) (string, error) {
	var number string
	err := s.uow.WithTx(ctx, func(ctx context.Context, r ReconcileRepos) error {
		p, err := r.Payments.GetByOrderID(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "refetch payment")
		}
		now := s.now()
		if p.Status != StatusPending && p.Status != StatusProcessing {
			return nil
		}
		if p.ExpiredAt == nil || p.ExpiredAt.After(now) {
			return nil
		}

		o, err := r.Orders.GetByID(ctx, p.OrderID)
		if err != nil {
			return errors.Wrap(err, "resolve order")
		}

		p.Status = StatusExpired
		if err := order.Cancel(ctx, order.SettleRepos{Orders: r.Orders, Stock: r.Stock}, o, "payment session expired", now); err != nil {
			return err
		}
		if err := r.Payments.Update(ctx, p); err != nil {
			return errors.Wrap(err, "update payment")
		}
		number = o.Number
		return nil
	})
	return number, err
}
