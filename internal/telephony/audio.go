package telephony

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrAudioNotFound is returned when staged audio has expired or never existed.
var ErrAudioNotFound = errors.New("telephony: audio not found")

// AudioStore stages synthesized audio in Redis so the provider can fetch it
// over HTTP while the call is being placed. Entries expire on their own; a
// call that has not been picked up within the TTL is long dead anyway.
type AudioStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewAudioStore(rdb *redis.Client, ttl time.Duration) *AudioStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AudioStore{rdb: rdb, ttl: ttl}
}

func audioKey(callID string) string {
	return "audio:call:" + callID
}

func (s *AudioStore) Put(ctx context.Context, callID string, audio []byte) error {
	if s.rdb == nil {
		return fmt.Errorf("telephony: redis client is nil")
	}
	if callID == "" || len(audio) == 0 {
		return fmt.Errorf("telephony: call id and audio are required")
	}
	return s.rdb.Set(ctx, audioKey(callID), audio, s.ttl).Err()
}

func (s *AudioStore) Get(ctx context.Context, callID string) ([]byte, error) {
	if s.rdb == nil {
		return nil, fmt.Errorf("telephony: redis client is nil")
	}
	b, err := s.rdb.Get(ctx, audioKey(callID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrAudioNotFound
		}
		return nil, err
	}
	return b, nil
}
