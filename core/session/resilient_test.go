package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, int64) (Session, error) {
	return Session{}, f.err
}
func (f failingStore) Set(context.Context, Session) error  { return f.err }
func (f failingStore) Delete(context.Context, int64) error { return f.err }
func (f failingStore) Ping(context.Context) error          { return f.err }

func TestResilientDegradesToDefault(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var ops []string
	store := Resilient(failingStore{err: backendErr("redis get", errors.New("dial tcp: refused"))}, time.Second,
		func(op string, err error) {
			mu.Lock()
			ops = append(ops, op)
			mu.Unlock()
			if !errors.Is(err, ErrBackend) {
				t.Errorf("degrade callback got %v", err)
			}
		})

	got, err := store.Get(ctx, 77)
	if err != nil {
		t.Fatalf("Get must not fail: %v", err)
	}
	if got != Default(77) {
		t.Fatalf("expected default, got %+v", got)
	}
	if err := store.Set(ctx, Session{UserID: 77, Scene: "x"}); err != nil {
		t.Fatalf("Set must not fail: %v", err)
	}
	if err := store.Delete(ctx, 77); err != nil {
		t.Fatalf("Delete must not fail: %v", err)
	}
	if err := store.Ping(ctx); err == nil {
		t.Fatalf("Ping must surface backend failure")
	}

	want := []string{"get", "set", "delete"}
	if len(ops) != len(want) {
		t.Fatalf("degraded ops = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("degraded ops = %v, want %v", ops, want)
		}
	}
}

func TestResilientPassesThrough(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore(time.Hour)
	store := Resilient(mem, 0, nil)
	if err := store.Set(ctx, Session{UserID: 1, ChangingSpreadsheet: true}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, _ := store.Get(ctx, 1)
	if !got.ChangingSpreadsheet {
		t.Fatalf("expected stored flag, got %+v", got)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("memory backend is always healthy: %v", err)
	}
}
