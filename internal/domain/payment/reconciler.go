package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/checkout-engine/internal/domain/order"
	"github.com/xenking/checkout-engine/internal/domain/stock"
	"github.com/xenking/checkout-engine/internal/event"
	"github.com/xenking/checkout-engine/pkg/lock"
)

// ReconcileRepos bundles the repositories one webhook application touches,
// bound to a single transaction.
type ReconcileRepos struct {
	Orders   order.Repository
	Payments Repository
	Stock    stock.Ledger
	Events   EventLog
}

// UnitOfWork runs fn inside a single transaction over ReconcileRepos.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, r ReconcileRepos) error) error
}

// Result reports what a webhook delivery did.
type Result struct {
	OrderNumber string
	Status      Status
	// Applied is false for duplicate deliveries and for events that were
	// acknowledged without side effects (stale or divergent state).
	Applied bool
}

// Reconciler is the webhook entry point. Deliveries are at-least-once,
// possibly duplicated and out of order; the reconciler must leave order,
// payment and stock state mutually consistent regardless.
type Reconciler struct {
	uow      UnitOfWork
	gateways map[string]Gateway
	locker   lock.Locker
	events   event.Publisher
	now      func() time.Time
}

// NewReconciler creates a Reconciler for the given providers.
func NewReconciler(uow UnitOfWork, gateways []Gateway, locker lock.Locker, events event.Publisher) *Reconciler {
	byName := make(map[string]Gateway, len(gateways))
	for _, gw := range gateways {
		byName[gw.Name()] = gw
	}
	if events == nil {
		events = event.Nop{}
	}
	return &Reconciler{
		uow:      uow,
		gateways: byName,
		locker:   locker,
		events:   events,
		now:      time.Now,
	}
}

// HandleNotification authenticates, deduplicates, and applies a provider
// notification. Signature verification happens before any state is read or
// written. Processing for a single order is serialized via the locker, so
// two notifications for the same order never interleave.
func (rc *Reconciler) HandleNotification(ctx context.Context, provider string, raw []byte) (*Result, error) {
	gw, ok := rc.gateways[provider]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownProvider, "%q", provider)
	}

	n, err := gw.ParseNotification(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parse notification")
	}
	if !gw.VerifySignature(n) {
		return nil, errors.Wrapf(ErrInvalidSignature, "order %s", n.OrderNumber)
	}

	var res *Result
	err = rc.locker.WithLock(ctx, "order:"+n.OrderNumber, func(ctx context.Context) error {
		return rc.uow.WithTx(ctx, func(ctx context.Context, r ReconcileRepos) error {
			res, err = rc.apply(ctx, r, gw, provider, n)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	if res.Applied {
		rc.publish(ctx, res)
	}
	return res, nil
}

func (rc *Reconciler) apply(ctx context.Context, r ReconcileRepos, gw Gateway, provider string, n *Notification) (*Result, error) {
	o, err := r.Orders.GetByNumber(ctx, n.OrderNumber)
	if err != nil {
		// No placeholder state is created for foreign or malformed events.
		return nil, errors.Wrapf(err, "resolve order %s", n.OrderNumber)
	}

	p, err := r.Payments.GetByOrderID(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve payment for order %s", n.OrderNumber)
	}

	// Audit first: the raw payload is persisted whatever the outcome, and
	// the insert doubles as the idempotency check.
	first, err := r.Events.Record(ctx, provider, n.TransactionID, n.TransactionStatus, n.Raw)
	if err != nil {
		return nil, errors.Wrap(err, "record webhook event")
	}

	target := gw.MapStatus(n)
	res := &Result{OrderNumber: o.Number, Status: target}

	if !first || p.Status == target {
		// Duplicate delivery, or state already reflects this outcome:
		// acknowledge without re-applying side effects.
		return res, nil
	}
	if p.Status.Terminal() || (p.Status == StatusSuccess && target != StatusRefunded) {
		zctx.From(ctx).Info("stale webhook event ignored",
			zap.String("order_number", o.Number),
			zap.String("payment_status", string(p.Status)),
			zap.String("event_status", string(target)))
		return res, nil
	}

	now := rc.now()
	p.TransactionID = n.TransactionID
	p.RawPayload = n.Raw

	switch target {
	case StatusSuccess:
		p.Status = StatusSuccess
		p.PaidAt = &now
		err = rc.driveOrder(ctx, o, func() error {
			return order.MarkPaid(ctx, order.SettleRepos{Orders: r.Orders, Stock: r.Stock}, o, now)
		})
	case StatusFailed, StatusExpired:
		p.Status = target
		err = rc.driveOrder(ctx, o, func() error {
			reason := "payment " + string(target)
			return order.Cancel(ctx, order.SettleRepos{Orders: r.Orders, Stock: r.Stock}, o, reason, now)
		})
	case StatusProcessing:
		p.Status = StatusProcessing
	case StatusRefunded:
		// The order keeps its status; refund accounting is provider-side.
		p.Status = StatusRefunded
	default:
		return nil, errors.Errorf("unmapped payment status %q", target)
	}
	if err != nil {
		return nil, err
	}

	if err := r.Payments.Update(ctx, p); err != nil {
		return nil, errors.Wrap(err, "update payment")
	}

	res.Applied = true
	return res, nil
}

// driveOrder applies an order transition. An InvalidTransitionError here
// means the provider's view diverged from ours (for example a settlement
// after a sweep already cancelled the order); that is a recoverable
// inconsistency — logged, acknowledged, and the payment record still
// updated for audit.
func (rc *Reconciler) driveOrder(ctx context.Context, o *order.Order, fn func() error) error {
	err := fn()
	var ite *order.InvalidTransitionError
	if errors.As(err, &ite) {
		zctx.From(ctx).Warn("webhook transition diverged from order state",
			zap.String("order_number", o.Number),
			zap.String("from", string(ite.From)),
			zap.String("to", string(ite.To)))
		return nil
	}
	return err
}

func (rc *Reconciler) publish(ctx context.Context, res *Result) {
	var typ string
	switch res.Status {
	case StatusSuccess:
		typ = event.TypeOrderPaid
	case StatusFailed, StatusExpired:
		typ = event.TypeOrderCancelled
	default:
		return
	}
	if err := rc.events.Publish(ctx, event.Event{
		Type:        typ,
		OrderNumber: res.OrderNumber,
		Reason:      "payment " + string(res.Status),
		OccurredAt:  rc.now(),
	}); err != nil {
		zctx.From(ctx).Warn("publish order event failed",
			zap.String("order_number", res.OrderNumber), zap.Error(err))
	}
}
