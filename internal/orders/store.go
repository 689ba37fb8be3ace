package orders

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound covers both a missing order and one the requester may not see.
	ErrNotFound = errors.New("orders: not found")

	// ErrAttemptsExhausted is returned by IncrementAttempts when the
	// conditional update finds no budget left.
	ErrAttemptsExhausted = errors.New("orders: call attempts exhausted")
)

// Store is the order-side surface the call flow depends on.
//
// IncrementAttempts must be an atomic increment-if-below-max; it is the
// second gate (after the per-order lock) that keeps concurrent initiations
// from overspending the attempt budget.
type Store interface {
	// GetForConfirmation loads the eligibility fields. Non-admin requesters
	// only see their own orders.
	GetForConfirmation(ctx context.Context, orderID, requesterID string, admin bool) (Order, error)

	IncrementAttempts(ctx context.Context, orderID string, at time.Time) error

	// SetConfirmed flips the order to confirmed. Idempotent: replays keep the
	// original confirmed_at.
	SetConfirmed(ctx context.Context, orderID string, at time.Time) error
}
