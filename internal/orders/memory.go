package orders

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and early development.
// It mirrors the Postgres semantics, including the conditional increment.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]*Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: map[string]*Order{}}
}

// Seed inserts or replaces an order.
func (s *MemoryStore) Seed(o Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := o
	s.orders[o.ID] = &cp
}

// Get returns a copy of the order without visibility checks.
func (s *MemoryStore) Get(id string) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

func (s *MemoryStore) GetForConfirmation(ctx context.Context, orderID, requesterID string, admin bool) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	if !admin && o.UserID != requesterID {
		return Order{}, ErrNotFound
	}
	return *o, nil
}

func (s *MemoryStore) IncrementAttempts(ctx context.Context, orderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if o.CallAttempts >= o.MaxCallAttempts {
		return ErrAttemptsExhausted
	}
	o.CallAttempts++
	t := at
	o.LastCallDate = &t
	o.UpdatedAt = at
	return nil
}

func (s *MemoryStore) SetConfirmed(ctx context.Context, orderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.ConfirmationStatus = ConfirmationConfirmed
	if o.ConfirmedAt == nil {
		t := at
		o.ConfirmedAt = &t
	}
	o.UpdatedAt = at
	return nil
}
