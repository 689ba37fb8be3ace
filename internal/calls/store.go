package calls

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound is returned by point lookups that match nothing.
var ErrRecordNotFound = errors.New("calls: record not found")

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Status         *Status
	Outcome        *Outcome
	ExternalCallID *string
	Transcript     *string
	Duration       *int
	RetryCount     *int
	StartedAt      *time.Time
	EndedAt        *time.Time
	Metadata       map[string]any

	UpdatedAt time.Time
}

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	UserID   string
	OrderID  string
	Status   Status
	Outcome  Outcome
	Language string
	From     time.Time
	To       time.Time

	Limit  int
	Offset int
}

// Store is durable storage for call records.
type Store interface {
	Insert(ctx context.Context, rec CallRecord) error
	UpdateByID(ctx context.Context, id string, p Patch) (CallRecord, error)
	FindByID(ctx context.Context, id string) (CallRecord, error)
	FindByExternalCallID(ctx context.Context, externalID string) (CallRecord, error)

	// FindActiveByOrderID returns the order's non-terminal record, if any.
	// The orchestrator uses it to keep at most one live call per order.
	FindActiveByOrderID(ctx context.Context, orderID string) (CallRecord, bool, error)

	List(ctx context.Context, f Filter) ([]CallRecord, error)

	// ListStale returns non-terminal records untouched since the cutoff;
	// input for the sweeper.
	ListStale(ctx context.Context, cutoff time.Time) ([]CallRecord, error)
}
