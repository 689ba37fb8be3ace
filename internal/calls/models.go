package calls

import "time"

// CallRecord is one attempt to confirm an order by phone.
//
// Ownership invariant: rows are written only by the orchestrator, the
// reconciler and the sweeper. Order mutations go through orders.Store, never
// through this table.
type CallRecord struct {
	ID string `json:"id" db:"id"`

	// ExternalCallID is assigned by the telephony provider after a successful
	// dispatch. Unique; delivery events are reconciled through it.
	ExternalCallID string `json:"external_call_id,omitempty" db:"external_call_id"`

	OrderID string `json:"order_id" db:"order_id"`
	UserID  string `json:"user_id" db:"user_id"`

	Status  Status  `json:"status" db:"status"`
	Outcome Outcome `json:"outcome,omitempty" db:"outcome"`

	Language string `json:"language" db:"language"`
	VoiceID  string `json:"voice_id" db:"voice_id"`

	// Transcript is the script text actually synthesized for this call.
	Transcript string `json:"transcript,omitempty" db:"transcript"`

	DurationSeconds int `json:"duration" db:"duration"`

	// RetryCount counts dispatch attempts for this record, distinct from the
	// order-level call_attempts budget.
	RetryCount int `json:"retry_count" db:"retry_count"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty" db:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	// Metadata holds raw provider payloads (dispatch response, delivery
	// event), retained for audit/debug.
	Metadata map[string]any `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

type Outcome string

const (
	OutcomeCompleted             Outcome = "completed"
	OutcomeConfirmed             Outcome = "confirmed"
	OutcomeRejected              Outcome = "rejected"
	OutcomeNoAnswer              Outcome = "no_answer"
	OutcomeCallbackRequested     Outcome = "callback_requested"
	OutcomeInvalidNumber         Outcome = "invalid_number"
	OutcomeFailed                Outcome = "failed"
	OutcomeAudioGenerationFailed Outcome = "audio_generation_failed"
)

// transitions is the exhaustive state machine. Terminal states have no
// outgoing edges; anything not listed here is rejected, never overwritten.
var transitions = map[Status]map[Status]struct{}{
	StatusInitiated: {
		StatusInProgress: {},
		StatusFailed:     {},
	},
	StatusInProgress: {
		StatusCompleted: {},
		StatusFailed:    {},
		StatusCancelled: {},
	},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether the state machine allows from -> to.
// Self-transitions are not in the table; callers treat an identical replay as
// an idempotent no-op instead.
func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}
