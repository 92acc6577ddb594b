package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/checkout-engine/internal/domain/order"
	"github.com/xenking/checkout-engine/internal/event"
	"github.com/xenking/checkout-engine/pkg/lock"
)

func newSweeper(f *reconcilerFixture, batch int) *Sweeper {
	uow := &fakeUOW{repos: ReconcileRepos{
		Orders:   f.orders,
		Payments: f.payments,
		Stock:    f.stock,
		Events:   f.log,
	}}
	return NewSweeper(f.payments, uow, lock.NewMemory(), f.publisher, batch)
}

func TestSweepExpiredCancelsOverduePayment(t *testing.T) {
	f := newReconcilerFixture(t)
	past := time.Now().Add(-time.Minute)
	f.payments.byOrderID["ord-1"].ExpiredAt = &past

	swept, err := newSweeper(f, 0).SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	assert.Equal(t, StatusExpired, f.payments.byOrderID["ord-1"].Status)

	o := f.orders.byNumber["ORD-20260828-ABC123"]
	assert.Equal(t, order.StatusCancelled, o.Status)
	assert.Contains(t, o.Note, "payment session expired")

	// Reservation returned to the pool.
	assert.Equal(t, 5, f.stock.onHand["v1"])
	assert.Equal(t, 0, f.stock.reserved["v1"])

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, event.TypeOrderCancelled, f.publisher.events[0].Type)
	assert.Equal(t, "payment session expired", f.publisher.events[0].Reason)
}

func TestSweepExpiredSkipsCurrentSessions(t *testing.T) {
	f := newReconcilerFixture(t)
	// Fixture payment expires a day from now.

	swept, err := newSweeper(f, 0).SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
	assert.Equal(t, StatusPending, f.payments.byOrderID["ord-1"].Status)
	assert.Equal(t, order.StatusPending, f.orders.byNumber["ORD-20260828-ABC123"].Status)
}

func TestSweepExpiredSettlementRaceWins(t *testing.T) {
	f := newReconcilerFixture(t)
	past := time.Now().Add(-time.Minute)
	f.payments.byOrderID["ord-1"].ExpiredAt = &past

	s := newSweeper(f, 0)
	// A settlement webhook lands between the candidate listing and the
	// per-payment transaction; the stale candidate is still handed to the
	// sweeper, which must re-check inside the transaction.
	f.payments.stale = []ExpiredPayment{{PaymentID: "pay-1", OrderID: "ord-1", OrderNumber: "ORD-20260828-ABC123"}}
	now := time.Now()
	f.payments.byOrderID["ord-1"].Status = StatusSuccess
	f.payments.byOrderID["ord-1"].PaidAt = &now

	swept, err := s.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
	assert.Equal(t, StatusSuccess, f.payments.byOrderID["ord-1"].Status)
	assert.Empty(t, f.publisher.events)
}

func TestSweepExpiredIdempotent(t *testing.T) {
	f := newReconcilerFixture(t)
	past := time.Now().Add(-time.Minute)
	f.payments.byOrderID["ord-1"].ExpiredAt = &past
	s := newSweeper(f, 0)

	swept, err := s.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	// A second pass finds no candidates and releases nothing twice.
	swept, err = s.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
	assert.Equal(t, 5, f.stock.onHand["v1"])
	assert.Equal(t, 0, f.stock.reserved["v1"])
	assert.Len(t, f.publisher.events, 1)
}
