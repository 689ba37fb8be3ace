package calls

import (
	"context"
	"sync"
	"time"

	"voiceconfirm/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker is the mutual-exclusion primitive serializing work per entity:
// one key per order during initiation, one key per external call id during
// reconciliation.
type Locker interface {
	// Acquire returns ok=false when another holder owns the key. On success
	// the returned release func must be called when done.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), ok bool, err error)
}

// RedisLocker is the production Locker; it works across processes.
type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context), bool, error) {
	token := uuid.NewString()
	ok, err := utils.AcquireLock(ctx, l.rdb, key, token, ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	release := func(ctx context.Context) {
		_ = utils.ReleaseLock(ctx, l.rdb, key, token)
	}
	return release, true, nil
}

// MemoryLocker is a single-process Locker for tests.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]struct{}{}}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, false, nil
	}
	l.held[key] = struct{}{}
	release := func(context.Context) {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}
	return release, true, nil
}
