package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voiceconfirm/internal/orders"
	"voiceconfirm/internal/telephony"
	"voiceconfirm/pkg/logger"
)

// confirmationThreshold is the shortest call, in seconds, treated as the
// customer having heard the script through and confirmed. Shorter completed
// calls count as no-answer (voicemail pickups, instant hangups).
const confirmationThreshold = 10

// statusFromProvider maps raw provider call statuses onto the record state
// machine. Unknown statuses land on failed rather than being dropped.
var statusFromProvider = map[string]Status{
	"completed": StatusCompleted,
	"busy":      StatusFailed,
	"no-answer": StatusFailed,
	"failed":    StatusFailed,
	"canceled":  StatusCancelled,
}

// Reconciler folds provider delivery events into call records and, when a
// call confirms the order, into the order itself.
type Reconciler struct {
	store      Store
	orderStore orders.Store
	locks      Locker

	lockTTL time.Duration
	clock   func() time.Time
}

func NewReconciler(store Store, orderStore orders.Store, locks Locker) *Reconciler {
	return &Reconciler{
		store:      store,
		orderStore: orderStore,
		locks:      locks,
		lockTTL:    15 * time.Second,
		clock:      time.Now,
	}
}

func reconcileLockKey(externalID string) string { return "lock:reconcile:" + externalID }

// Reconcile applies one delivery event. matched=false means the external call
// id is unknown to us; the caller still acks the event so the provider does
// not retry.
//
// Terminal records are immutable: a late or duplicate event against one is
// logged and acked without changing anything.
func (r *Reconciler) Reconcile(ctx context.Context, externalCallID string, ev telephony.DeliveryEvent) (bool, error) {
	log := logger.From(ctx)

	if externalCallID == "" {
		return false, fmt.Errorf("calls: reconcile: %w: empty external call id", ErrInvalidArgument)
	}

	// Serializes concurrent events for the same call; the provider may send
	// duplicates in quick succession.
	release, ok, err := r.locks.Acquire(ctx, reconcileLockKey(externalCallID), r.lockTTL)
	if err != nil {
		return false, fmt.Errorf("calls: acquire reconcile lock: %w", err)
	}
	if !ok {
		return false, ErrCallInFlight
	}
	defer release(ctx)

	rec, err := r.store.FindByExternalCallID(ctx, externalCallID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			log.Warn("delivery event for unknown call", "external_call_id", externalCallID, "provider_status", ev.Status)
			return false, nil
		}
		return false, err
	}

	next, known := statusFromProvider[ev.Status]
	if !known {
		log.Warn("unknown provider status, treating as failed",
			"external_call_id", externalCallID, "provider_status", ev.Status)
		next = StatusFailed
	}

	if rec.Status == next || rec.Status.IsTerminal() || !CanTransition(rec.Status, next) {
		log.Info("ignoring delivery event",
			"call_id", rec.ID,
			"current_status", rec.Status,
			"event_status", next,
			"provider_status", ev.Status,
		)
		return true, nil
	}

	outcome := outcomeFor(next, ev.Duration)
	now := r.clock().UTC()
	patch := Patch{
		Status:    &next,
		Outcome:   &outcome,
		Duration:  &ev.Duration,
		UpdatedAt: now,
	}
	if next.IsTerminal() {
		patch.EndedAt = &now
	}
	if len(ev.Raw) > 0 {
		meta := make(map[string]any, len(ev.Raw))
		for k, v := range ev.Raw {
			meta[k] = v
		}
		patch.Metadata = meta
	}

	updated, err := r.store.UpdateByID(ctx, rec.ID, patch)
	if err != nil {
		return false, fmt.Errorf("calls: apply delivery event: %w", err)
	}

	if outcome == OutcomeCompleted {
		if err := r.orderStore.SetConfirmed(ctx, updated.OrderID, now); err != nil {
			// The call record already reflects the outcome; surface the order
			// write failure so the provider retries the event.
			return false, fmt.Errorf("calls: confirm order %s: %w", updated.OrderID, err)
		}
	}

	log.Info("delivery event applied",
		"call_id", updated.ID,
		"order_id", updated.OrderID,
		"status", updated.Status,
		"outcome", updated.Outcome,
		"duration", updated.DurationSeconds,
	)
	return true, nil
}

func outcomeFor(next Status, duration int) Outcome {
	switch next {
	case StatusCompleted:
		if duration > confirmationThreshold {
			return OutcomeCompleted
		}
		return OutcomeNoAnswer
	case StatusCancelled:
		return OutcomeNoAnswer
	default:
		// Everything mapped to failed (busy, no-answer, failed, unknown)
		// carries the failed outcome.
		return OutcomeFailed
	}
}
