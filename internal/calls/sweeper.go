package calls

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper fails call records that never received a delivery event. Providers
// occasionally drop status callbacks; without the sweeper those records would
// hold their order's in-flight slot forever.
type Sweeper struct {
	store Store

	maxAge   time.Duration
	interval time.Duration

	log   *slog.Logger
	clock func() time.Time

	stop chan struct{}
	done chan struct{}
}

func NewSweeper(store Store, maxAge, interval time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		maxAge:   maxAge,
		interval: interval,
		log:      log,
		clock:    time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Call Stop to shut it down.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background())
			case <-s.stop:
				return
			}
		}
	}()
	s.log.Info("sweeper started", "interval", s.interval, "max_age", s.maxAge)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
	s.log.Info("sweeper stopped")
}

// Sweep fails every non-terminal record untouched for longer than maxAge.
// It returns the number of records it closed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	now := s.clock().UTC()
	stale, err := s.store.ListStale(ctx, now.Add(-s.maxAge))
	if err != nil {
		s.log.Error("stale call listing failed", "err", err)
		return 0
	}

	swept := 0
	for _, rec := range stale {
		status := StatusFailed
		outcome := OutcomeFailed
		_, err := s.store.UpdateByID(ctx, rec.ID, Patch{
			Status:    &status,
			Outcome:   &outcome,
			EndedAt:   &now,
			Metadata:  map[string]any{"reason": "timeout"},
			UpdatedAt: now,
		})
		if err != nil {
			s.log.Error("stale call update failed", "call_id", rec.ID, "err", err)
			continue
		}
		swept++
		s.log.Warn("stale call failed by sweeper",
			"call_id", rec.ID,
			"order_id", rec.OrderID,
			"age", now.Sub(rec.UpdatedAt).String(),
		)
	}
	return swept
}
