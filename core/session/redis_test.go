package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisStore(NewRedisPool("redis://"+mr.Addr(), ""), 30*24*time.Hour, "test:session:")
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	got, err := store.Get(ctx, 99)
	if err != nil {
		t.Fatalf("Get absent: %v", err)
	}
	if !got.IsDefault() || got.UserID != 99 {
		t.Fatalf("expected default session, got %+v", got)
	}

	want := Session{UserID: 99, Scene: "manual_verify", ChangingSpreadsheet: true}
	if err := store.Set(ctx, want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := mr.TTL("test:session:99"); ttl != 30*24*time.Hour {
		t.Fatalf("unexpected ttl %s", ttl)
	}
	got, err = store.Get(ctx, 99)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Scene != want.Scene || !got.ChangingSpreadsheet {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	if err := store.Delete(ctx, 99); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if mr.Exists("test:session:99") {
		t.Fatalf("key should be gone after Delete")
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	if err := store.Set(ctx, Session{UserID: 5, Scene: "auto_verify"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(31 * 24 * time.Hour)
	got, err := store.Get(ctx, 5)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.IsDefault() {
		t.Fatalf("expected expired session to be default, got %+v", got)
	}
}

func TestRedisStoreSubSecondTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := NewRedisStore(NewRedisPool("redis://"+mr.Addr(), ""), 500*time.Millisecond, "test:session:")
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Set(ctx, Session{UserID: 8, Scene: "setup_spreadsheet"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := mr.TTL("test:session:8"); ttl != 500*time.Millisecond {
		t.Fatalf("ttl = %s, want 500ms", ttl)
	}
	mr.FastForward(time.Second)
	if mr.Exists("test:session:8") {
		t.Fatalf("key should expire after its ttl")
	}
}

func TestRedisStoreBackendError(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	mr.SetError("LOADING redis is loading the dataset")

	if _, err := store.Get(ctx, 1); !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
	if err := store.Set(ctx, Session{UserID: 1}); !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend on Set, got %v", err)
	}
	if err := store.Ping(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}

	mr.SetError("")
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping after recovery: %v", err)
	}
}

func TestRedisStoreCorruptPayload(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	if err := mr.Set("test:session:3", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := store.Get(ctx, 3)
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend for corrupt payload, got %v", err)
	}
	if !got.IsDefault() {
		t.Fatalf("expected default alongside the error, got %+v", got)
	}
}
