package calls

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedRecord(t *testing.T, s *MemoryStore, rec CallRecord) CallRecord {
	t.Helper()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	if err := s.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return rec
}

func TestMemoryStore_UpdateByID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedRecord(t, s, CallRecord{ID: "c1", OrderID: "o1", UserID: "u1", Status: StatusInitiated})

	status := StatusInProgress
	ext := "CA1"
	now := time.Now().UTC()
	got, err := s.UpdateByID(ctx, "c1", Patch{
		Status:         &status,
		ExternalCallID: &ext,
		Metadata:       map[string]any{"sid": "CA1"},
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("UpdateByID: %v", err)
	}
	if got.Status != StatusInProgress || got.ExternalCallID != "CA1" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Metadata["sid"] != "CA1" {
		t.Fatalf("expected metadata merge, got %+v", got.Metadata)
	}

	// Metadata merges across patches instead of replacing.
	if _, err := s.UpdateByID(ctx, "c1", Patch{Metadata: map[string]any{"reason": "x"}, UpdatedAt: now}); err != nil {
		t.Fatalf("UpdateByID: %v", err)
	}
	got, _ = s.FindByID(ctx, "c1")
	if got.Metadata["sid"] != "CA1" || got.Metadata["reason"] != "x" {
		t.Fatalf("expected merged metadata, got %+v", got.Metadata)
	}

	if _, err := s.UpdateByID(ctx, "missing", Patch{UpdatedAt: now}); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestMemoryStore_FindByExternalCallID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedRecord(t, s, CallRecord{ID: "c1", ExternalCallID: "CA1", Status: StatusInProgress})
	seedRecord(t, s, CallRecord{ID: "c2", Status: StatusInitiated})

	got, err := s.FindByExternalCallID(ctx, "CA1")
	if err != nil || got.ID != "c1" {
		t.Fatalf("FindByExternalCallID: %v %+v", err, got)
	}
	// An empty external id must never match records that have none yet.
	if _, err := s.FindByExternalCallID(ctx, ""); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestMemoryStore_FindActiveByOrderID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedRecord(t, s, CallRecord{ID: "c1", OrderID: "o1", Status: StatusCompleted})
	seedRecord(t, s, CallRecord{ID: "c2", OrderID: "o1", Status: StatusInProgress})

	rec, active, err := s.FindActiveByOrderID(ctx, "o1")
	if err != nil || !active || rec.ID != "c2" {
		t.Fatalf("unexpected: %v %v %+v", err, active, rec)
	}

	if _, active, _ := s.FindActiveByOrderID(ctx, "o2"); active {
		t.Fatalf("expected no active call for o2")
	}
}

func TestMemoryStore_ListFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedRecord(t, s, CallRecord{ID: "c1", UserID: "u1", OrderID: "o1", Status: StatusCompleted, Outcome: OutcomeCompleted, Language: "en", CreatedAt: base})
	seedRecord(t, s, CallRecord{ID: "c2", UserID: "u1", OrderID: "o2", Status: StatusFailed, Outcome: OutcomeNoAnswer, Language: "es", CreatedAt: base.Add(time.Hour)})
	seedRecord(t, s, CallRecord{ID: "c3", UserID: "u2", OrderID: "o3", Status: StatusFailed, Outcome: OutcomeFailed, Language: "en", CreatedAt: base.Add(2 * time.Hour)})

	got, err := s.List(ctx, Filter{UserID: "u1"})
	if err != nil || len(got) != 2 {
		t.Fatalf("List by user: %v %d", err, len(got))
	}
	// Newest first.
	if got[0].ID != "c2" || got[1].ID != "c1" {
		t.Fatalf("expected newest-first order, got %s %s", got[0].ID, got[1].ID)
	}

	got, _ = s.List(ctx, Filter{Status: StatusFailed, Language: "en"})
	if len(got) != 1 || got[0].ID != "c3" {
		t.Fatalf("combined filter: %+v", got)
	}

	got, _ = s.List(ctx, Filter{From: base.Add(30 * time.Minute), To: base.Add(90 * time.Minute)})
	if len(got) != 1 || got[0].ID != "c2" {
		t.Fatalf("time window filter: %+v", got)
	}

	got, _ = s.List(ctx, Filter{Limit: 1, Offset: 1})
	if len(got) != 1 || got[0].ID != "c2" {
		t.Fatalf("limit/offset: %+v", got)
	}
	got, _ = s.List(ctx, Filter{Offset: 10})
	if len(got) != 0 {
		t.Fatalf("offset past end: %+v", got)
	}
}

func TestMemoryStore_ListStale(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	cutoff := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedRecord(t, s, CallRecord{ID: "old-live", Status: StatusInProgress, CreatedAt: cutoff.Add(-time.Hour), UpdatedAt: cutoff.Add(-time.Hour)})
	seedRecord(t, s, CallRecord{ID: "old-done", Status: StatusCompleted, CreatedAt: cutoff.Add(-time.Hour), UpdatedAt: cutoff.Add(-time.Hour)})
	seedRecord(t, s, CallRecord{ID: "fresh", Status: StatusInProgress, CreatedAt: cutoff, UpdatedAt: cutoff.Add(time.Minute)})

	got, err := s.ListStale(ctx, cutoff)
	if err != nil {
		t.Fatalf("ListStale: %v", err)
	}
	if len(got) != 1 || got[0].ID != "old-live" {
		t.Fatalf("expected only the stale live record, got %+v", got)
	}
}
