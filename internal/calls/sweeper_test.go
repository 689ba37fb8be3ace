package calls

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestSweep_FailsStaleCalls(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedRecord(t, s, CallRecord{ID: "stale", OrderID: "o1", Status: StatusInProgress, UpdatedAt: now.Add(-time.Hour), CreatedAt: now.Add(-time.Hour)})
	seedRecord(t, s, CallRecord{ID: "fresh", OrderID: "o2", Status: StatusInProgress, UpdatedAt: now.Add(-time.Minute), CreatedAt: now.Add(-time.Minute)})
	seedRecord(t, s, CallRecord{ID: "done", OrderID: "o3", Status: StatusCompleted, UpdatedAt: now.Add(-time.Hour), CreatedAt: now.Add(-time.Hour)})

	sw := NewSweeper(s, 30*time.Minute, time.Minute, slog.Default())
	sw.clock = func() time.Time { return now }

	if n := sw.Sweep(context.Background()); n != 1 {
		t.Fatalf("expected 1 swept record, got %d", n)
	}

	rec, _ := s.FindByID(context.Background(), "stale")
	if rec.Status != StatusFailed || rec.Outcome != OutcomeFailed {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.EndedAt == nil || rec.Metadata["reason"] != "timeout" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	for _, id := range []string{"fresh", "done"} {
		rec, _ := s.FindByID(context.Background(), id)
		if id == "fresh" && rec.Status != StatusInProgress {
			t.Fatalf("fresh record must survive: %+v", rec)
		}
		if id == "done" && rec.Status != StatusCompleted {
			t.Fatalf("terminal record must survive: %+v", rec)
		}
	}
}

func TestSweep_Idempotent(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedRecord(t, s, CallRecord{ID: "stale", OrderID: "o1", Status: StatusInProgress, UpdatedAt: now.Add(-time.Hour), CreatedAt: now.Add(-time.Hour)})

	sw := NewSweeper(s, 30*time.Minute, time.Minute, slog.Default())
	sw.clock = func() time.Time { return now }

	if n := sw.Sweep(context.Background()); n != 1 {
		t.Fatalf("first sweep: %d", n)
	}
	if n := sw.Sweep(context.Background()); n != 0 {
		t.Fatalf("second sweep must be a no-op, got %d", n)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	sw := NewSweeper(NewMemoryStore(), 30*time.Minute, 10*time.Millisecond, slog.Default())
	sw.Start()
	time.Sleep(30 * time.Millisecond)
	sw.Stop() // must not hang or panic
}
