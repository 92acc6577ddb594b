package order

import (
	"fmt"
	"time"
)

// InvalidTransitionError indicates a requested status change has no legal
// edge from the order's current status. The order is left unmodified.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition: %s -> %s", e.From, e.To)
}

// transitions enumerates every legal status edge. pending is the initial
// status; completed and cancelled are terminal.
var transitions = map[Status][]Status{
	StatusPending:    {StatusPaid, StatusCancelled},
	StatusPaid:       {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {StatusCompleted},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether an edge from -> to exists.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanCancel reports whether the order may still be cancelled.
func CanCancel(o *Order) bool {
	return CanTransition(o.Status, StatusCancelled)
}

// Transition moves the order to the given status, stamping the matching
// lifecycle timestamp. Each timestamp is set at most once. On an illegal
// edge it returns *InvalidTransitionError and leaves the order untouched.
func Transition(o *Order, to Status, now time.Time) error {
	if !CanTransition(o.Status, to) {
		return &InvalidTransitionError{From: o.Status, To: to}
	}

	o.Status = to
	switch to {
	case StatusPaid:
		if o.PaidAt == nil {
			o.PaidAt = &now
		}
	case StatusShipped:
		if o.ShippedAt == nil {
			o.ShippedAt = &now
		}
	case StatusCompleted:
		if o.CompletedAt == nil {
			o.CompletedAt = &now
		}
	case StatusCancelled:
		if o.CancelledAt == nil {
			o.CancelledAt = &now
		}
	}
	return nil
}
