package session

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreAbsentIsDefault(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	got, err := store.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != Default(42) {
		t.Fatalf("expected default session, got %+v", got)
	}
	if !got.IsDefault() {
		t.Fatalf("default session must report IsDefault")
	}
}

func TestMemoryStoreRoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)
	want := Session{UserID: 7, Scene: "setup-spreadsheet", ChangingSpreadsheet: true}
	if err := store.Set(ctx, want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := store.Get(ctx, 7)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	if err := store.Delete(ctx, 7); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, _ = store.Get(ctx, 7)
	if !got.IsDefault() {
		t.Fatalf("expected default after delete, got %+v", got)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(30 * 24 * time.Hour)
	store.now = func() time.Time { return now }

	_ = store.Set(ctx, Session{UserID: 1, Scene: "auto_verify"})
	_ = store.Set(ctx, Session{UserID: 2, Scene: "auto_verify"})

	now = now.Add(29 * 24 * time.Hour)
	if got, _ := store.Get(ctx, 1); got.Scene != "auto_verify" {
		t.Fatalf("session expired too early: %+v", got)
	}

	now = now.Add(48 * time.Hour)
	if got, _ := store.Get(ctx, 1); !got.IsDefault() {
		t.Fatalf("expected expired session to read as default, got %+v", got)
	}
	if n := store.Sweep(); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d entries", store.Len())
	}
}
