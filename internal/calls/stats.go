package calls

import (
	"context"
	"math"
)

// Stats aggregates a user's (or, for admins, everyone's) call history.
type Stats struct {
	TotalCalls      int     `json:"total_calls"`
	SuccessfulCalls int     `json:"successful_calls"`
	FailedCalls     int     `json:"failed_calls"`
	SuccessRate     float64 `json:"success_rate"`

	// AverageDuration is computed over calls that have a recorded duration;
	// never-answered calls would drag it to zero otherwise.
	AverageDuration float64 `json:"average_duration"`
	TotalDuration   int     `json:"total_duration"`

	CallsByOutcome  map[Outcome]int `json:"calls_by_outcome"`
	CallsByLanguage map[string]int  `json:"calls_by_language"`
}

// Reader is the query side of the call surface: point lookups, listings and
// aggregates, all scoped to the requesting user unless they are an admin.
type Reader struct {
	store Store
}

func NewReader(store Store) *Reader {
	return &Reader{store: store}
}

func (r *Reader) GetCall(ctx context.Context, callID, requesterID string, admin bool) (CallRecord, error) {
	rec, err := r.store.FindByID(ctx, callID)
	if err != nil {
		return CallRecord{}, err
	}
	if !admin && rec.UserID != requesterID {
		// Hide existence from non-owners.
		return CallRecord{}, ErrRecordNotFound
	}
	return rec, nil
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func (r *Reader) ListCalls(ctx context.Context, f Filter, requesterID string, admin bool) ([]CallRecord, error) {
	if !admin {
		f.UserID = requesterID
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return r.store.List(ctx, f)
}

func (r *Reader) Stats(ctx context.Context, requesterID string, admin bool) (Stats, error) {
	f := Filter{}
	if !admin {
		f.UserID = requesterID
	}
	recs, err := r.store.List(ctx, f)
	if err != nil {
		return Stats{}, err
	}

	s := Stats{
		CallsByOutcome:  map[Outcome]int{},
		CallsByLanguage: map[string]int{},
	}
	withDuration := 0
	for _, rec := range recs {
		s.TotalCalls++
		// Success and failure are counted by call status: a completed call
		// counts as successful even when it did not confirm the order.
		switch rec.Status {
		case StatusCompleted:
			s.SuccessfulCalls++
		case StatusFailed:
			s.FailedCalls++
		}
		if rec.Outcome != "" {
			s.CallsByOutcome[rec.Outcome]++
		}
		if rec.Language != "" {
			s.CallsByLanguage[rec.Language]++
		}
		if rec.DurationSeconds > 0 {
			withDuration++
			s.TotalDuration += rec.DurationSeconds
		}
	}
	if s.TotalCalls > 0 {
		s.SuccessRate = round2(float64(s.SuccessfulCalls) / float64(s.TotalCalls) * 100)
	}
	if withDuration > 0 {
		s.AverageDuration = round2(float64(s.TotalDuration) / float64(withDuration))
	}
	return s, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
