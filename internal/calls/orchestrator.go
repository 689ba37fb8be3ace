package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voiceconfirm/internal/orders"
	"voiceconfirm/internal/telephony"
	"voiceconfirm/internal/voice"
	"voiceconfirm/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrInvalidArgument = errors.New("calls: invalid argument")

	// ErrAlreadyConfirmed and ErrAttemptsExhausted are business-rule
	// rejections; callers must not retry them.
	ErrAlreadyConfirmed  = errors.New("calls: order already confirmed")
	ErrAttemptsExhausted = errors.New("calls: maximum call attempts reached")

	// ErrAudioGeneration marks a synthesis failure. The order's attempt
	// budget is untouched on this path.
	ErrAudioGeneration = errors.New("calls: audio generation failed")

	// ErrCallInFlight is returned when the order already has a live call or
	// another initiation holds the per-order lock.
	ErrCallInFlight = errors.New("calls: confirmation call already in flight")
)

const defaultLanguage = "en"

// Orchestrator drives the confirmation-call flow: eligibility, record
// creation, synthesis, dispatch, attempt accounting.
type Orchestrator struct {
	orderStore orders.Store
	store      Store
	voice      voice.Provider
	dialer     telephony.Dispatcher
	locks      Locker

	defaultVoiceID  string
	providerTimeout time.Duration
	lockTTL         time.Duration

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

type OrchestratorConfig struct {
	DefaultVoiceID  string
	ProviderTimeout time.Duration
	LockTTL         time.Duration
}

func NewOrchestrator(orderStore orders.Store, store Store, vp voice.Provider, dialer telephony.Dispatcher, locks Locker, cfg OrchestratorConfig) *Orchestrator {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 30 * time.Second
	}
	if cfg.LockTTL <= 0 {
		// Must outlive both provider round trips.
		cfg.LockTTL = 2*cfg.ProviderTimeout + 30*time.Second
	}
	return &Orchestrator{
		orderStore:      orderStore,
		store:           store,
		voice:           vp,
		dialer:          dialer,
		locks:           locks,
		defaultVoiceID:  cfg.DefaultVoiceID,
		providerTimeout: cfg.ProviderTimeout,
		lockTTL:         cfg.LockTTL,
		clock:           time.Now,
	}
}

type InitiateRequest struct {
	OrderID     string
	RequesterID string
	Admin       bool

	Language string
	VoiceID  string // optional; falls back to the configured default voice
}

func orderLockKey(orderID string) string { return "lock:order:" + orderID }

// InitiateConfirmationCall places one confirmation call attempt for an order.
//
// Attempt accounting: the budget is consumed once synthesis succeeds,
// regardless of whether the provider then accepts the dispatch. A synthesis
// failure must not consume it. A provider rejection is returned as a failed
// record, not as an error.
func (o *Orchestrator) InitiateConfirmationCall(ctx context.Context, req InitiateRequest) (CallRecord, error) {
	log := logger.From(ctx)

	if req.OrderID == "" || req.RequesterID == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	language := req.Language
	if language == "" {
		language = defaultLanguage
	}
	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = o.defaultVoiceID
	}

	// Eligibility check and record creation must act as one atomic unit per
	// order; the lock closes the read-then-write race between concurrent
	// initiations.
	release, ok, err := o.locks.Acquire(ctx, orderLockKey(req.OrderID), o.lockTTL)
	if err != nil {
		return CallRecord{}, fmt.Errorf("calls: acquire order lock: %w", err)
	}
	if !ok {
		return CallRecord{}, ErrCallInFlight
	}
	defer release(ctx)

	order, err := o.orderStore.GetForConfirmation(ctx, req.OrderID, req.RequesterID, req.Admin)
	if err != nil {
		return CallRecord{}, err
	}
	if order.ConfirmationStatus == orders.ConfirmationConfirmed {
		return CallRecord{}, ErrAlreadyConfirmed
	}
	if order.CallAttempts >= order.MaxCallAttempts {
		return CallRecord{}, ErrAttemptsExhausted
	}
	if _, active, err := o.store.FindActiveByOrderID(ctx, order.ID); err != nil {
		return CallRecord{}, err
	} else if active {
		return CallRecord{}, ErrCallInFlight
	}

	now := o.clock().UTC()
	rec := CallRecord{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		UserID:      order.UserID,
		Status:      StatusInitiated,
		Language:    language,
		VoiceID:     voiceID,
		ScheduledAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.store.Insert(ctx, rec); err != nil {
		return CallRecord{}, fmt.Errorf("calls: insert record: %w", err)
	}

	script, synthErr := o.generate(ctx, order, language, voiceID)
	if synthErr != nil {
		log.Error("audio generation failed", "order_id", order.ID, "call_id", rec.ID, "err", synthErr)
		failed := o.markSynthesisFailed(ctx, rec.ID)
		return failed, fmt.Errorf("%w: %v", ErrAudioGeneration, synthErr)
	}

	res, dispatchErr := o.dispatch(ctx, order, rec.ID, script.Audio)

	endedAt := o.clock().UTC()
	status := StatusInProgress
	patch := Patch{
		Status:     &status,
		Transcript: &script.Text,
		StartedAt:  &endedAt,
		RetryCount: intPtr(1),
		UpdatedAt:  endedAt,
	}
	switch {
	case dispatchErr != nil:
		// Timeouts and connectivity failures are indistinguishable from an
		// explicit rejection at this point.
		log.Error("dispatch failed", "order_id", order.ID, "call_id", rec.ID, "err", dispatchErr)
		status = StatusFailed
		patch.EndedAt = &endedAt
		patch.Metadata = map[string]any{"error": dispatchErr.Error()}
	case !res.Accepted:
		log.Warn("dispatch rejected", "order_id", order.ID, "call_id", rec.ID)
		status = StatusFailed
		patch.EndedAt = &endedAt
		patch.Metadata = res.Raw
	default:
		patch.ExternalCallID = &res.ExternalCallID
		patch.Metadata = res.Raw
	}

	updated, err := o.store.UpdateByID(ctx, rec.ID, patch)
	if err != nil {
		return CallRecord{}, fmt.Errorf("calls: update record: %w", err)
	}

	// Synthesis succeeded, so the attempt is consumed even when the provider
	// said no: the attempt reached the customer's line.
	if err := o.orderStore.IncrementAttempts(ctx, order.ID, endedAt); err != nil {
		log.Error("attempt increment failed", "order_id", order.ID, "call_id", rec.ID, "err", err)
	}

	log.Info("confirmation call initiated",
		"order_id", order.ID,
		"call_id", updated.ID,
		"status", updated.Status,
		"external_call_id", updated.ExternalCallID,
	)
	return updated, nil
}

func (o *Orchestrator) generate(ctx context.Context, order orders.Order, language, voiceID string) (voice.Script, error) {
	items := make([]voice.ScriptItem, 0, len(order.Details.Items))
	for _, it := range order.Details.Items {
		items = append(items, voice.ScriptItem{Name: it.Name, Quantity: it.Quantity})
	}

	vctx, cancel := context.WithTimeout(ctx, o.providerTimeout)
	defer cancel()
	return o.voice.GenerateScriptAndAudio(vctx, voice.ScriptRequest{
		CustomerName: order.Customer.Name,
		OrderID:      order.ExternalOrderID,
		TotalMinor:   order.Details.TotalMinor,
		Currency:     order.Details.Currency,
		Items:        items,
		Language:     language,
	}, voiceID)
}

func (o *Orchestrator) dispatch(ctx context.Context, order orders.Order, recID string, audio []byte) (telephony.DispatchResult, error) {
	dctx, cancel := context.WithTimeout(ctx, o.providerTimeout)
	defer cancel()
	return o.dialer.Dispatch(dctx, telephony.DispatchRequest{
		PhoneNumber:   order.Customer.Phone,
		Audio:         audio,
		CorrelationID: recID,
	})
}

func (o *Orchestrator) markSynthesisFailed(ctx context.Context, recID string) CallRecord {
	now := o.clock().UTC()
	status := StatusFailed
	outcome := OutcomeAudioGenerationFailed
	updated, err := o.store.UpdateByID(ctx, recID, Patch{
		Status:    &status,
		Outcome:   &outcome,
		EndedAt:   &now,
		UpdatedAt: now,
	})
	if err != nil {
		logger.From(ctx).Error("mark synthesis failure failed", "call_id", recID, "err", err)
		return CallRecord{ID: recID, Status: StatusFailed, Outcome: OutcomeAudioGenerationFailed}
	}
	return updated
}

func intPtr(n int) *int { return &n }
