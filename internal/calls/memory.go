package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-memory Store used by tests. It mirrors the
// PostgresStore semantics, including patch application order.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]CallRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: map[string]CallRecord{}}
}

func (s *MemoryStore) Insert(ctx context.Context, rec CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *MemoryStore) UpdateByID(ctx context.Context, id string, p Patch) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return CallRecord{}, ErrRecordNotFound
	}
	applyPatch(&rec, p)
	s.recs[id] = cloneRecord(rec)
	return cloneRecord(rec), nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return CallRecord{}, ErrRecordNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) FindByExternalCallID(ctx context.Context, externalID string) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.recs {
		if rec.ExternalCallID != "" && rec.ExternalCallID == externalID {
			return cloneRecord(rec), nil
		}
	}
	return CallRecord{}, ErrRecordNotFound
}

func (s *MemoryStore) FindActiveByOrderID(ctx context.Context, orderID string) (CallRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.recs {
		if rec.OrderID == orderID && !rec.Status.IsTerminal() {
			return cloneRecord(rec), true, nil
		}
	}
	return CallRecord{}, false, nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []CallRecord
	for _, rec := range s.recs {
		if f.UserID != "" && rec.UserID != f.UserID {
			continue
		}
		if f.OrderID != "" && rec.OrderID != f.OrderID {
			continue
		}
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if f.Outcome != "" && rec.Outcome != f.Outcome {
			continue
		}
		if f.Language != "" && rec.Language != f.Language {
			continue
		}
		if !f.From.IsZero() && rec.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && rec.CreatedAt.After(f.To) {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) ListStale(ctx context.Context, cutoff time.Time) ([]CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CallRecord
	for _, rec := range s.recs {
		if !rec.Status.IsTerminal() && rec.UpdatedAt.Before(cutoff) {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func applyPatch(rec *CallRecord, p Patch) {
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.Outcome != nil {
		rec.Outcome = *p.Outcome
	}
	if p.ExternalCallID != nil {
		rec.ExternalCallID = *p.ExternalCallID
	}
	if p.Transcript != nil {
		rec.Transcript = *p.Transcript
	}
	if p.Duration != nil {
		rec.DurationSeconds = *p.Duration
	}
	if p.RetryCount != nil {
		rec.RetryCount = *p.RetryCount
	}
	if p.StartedAt != nil {
		rec.StartedAt = p.StartedAt
	}
	if p.EndedAt != nil {
		rec.EndedAt = p.EndedAt
	}
	if p.Metadata != nil {
		if rec.Metadata == nil {
			rec.Metadata = map[string]any{}
		}
		for k, v := range p.Metadata {
			rec.Metadata[k] = v
		}
	}
	if !p.UpdatedAt.IsZero() {
		rec.UpdatedAt = p.UpdatedAt
	}
}

func cloneRecord(rec CallRecord) CallRecord {
	out := rec
	if rec.Metadata != nil {
		out.Metadata = make(map[string]any, len(rec.Metadata))
		for k, v := range rec.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
