package telephony

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newAudioStore(t *testing.T) (*AudioStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewAudioStore(rdb, time.Hour), mr
}

func TestAudioStore_PutGet(t *testing.T) {
	store, _ := newAudioStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "call-1", []byte("mp3")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	b, err := store.Get(ctx, "call-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(b) != "mp3" {
		t.Fatalf("unexpected audio %q", b)
	}
}

func TestAudioStore_MissingIsNotFound(t *testing.T) {
	store, _ := newAudioStore(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrAudioNotFound) {
		t.Fatalf("expected ErrAudioNotFound, got %v", err)
	}
}

func TestAudioStore_EntriesExpire(t *testing.T) {
	store, mr := newAudioStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "call-1", []byte("mp3")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mr.FastForward(2 * time.Hour)

	if _, err := store.Get(ctx, "call-1"); !errors.Is(err, ErrAudioNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestAudioStore_ValidatesArgs(t *testing.T) {
	store, _ := newAudioStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "", []byte("x")); err == nil {
		t.Fatalf("expected error for empty call id")
	}
	if err := store.Put(ctx, "c", nil); err == nil {
		t.Fatalf("expected error for empty audio")
	}
}
