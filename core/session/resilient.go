package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/sheetbot/core/logger"
)

// DegradeFunc is notified whenever a backend call is swallowed.
type DegradeFunc func(op string, err error)

// ResilientStore wraps a backend so its failures never abort an update:
// a failed Get yields Default and failed writes are only reported.
type ResilientStore struct {
	next      Store
	timeout   time.Duration
	onDegrade DegradeFunc
}

// Resilient wraps next. timeout bounds every backend call when positive.
func Resilient(next Store, timeout time.Duration, onDegrade DegradeFunc) *ResilientStore {
	return &ResilientStore{next: next, timeout: timeout, onDegrade: onDegrade}
}

func (r *ResilientStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *ResilientStore) degrade(ctx context.Context, op string, userID int64, err error) {
	logger.Warn(ctx, logger.CompSession, "session.degraded",
		slog.String("status", "fail"),
		slog.String("op", op),
		slog.Int64("user_id", userID),
		logger.Err(err),
	)
	if r.onDegrade != nil {
		r.onDegrade(op, err)
	}
}

// Get never fails; on backend errors it returns Default.
func (r *ResilientStore) Get(ctx context.Context, userID int64) (Session, error) {
	bctx, cancel := r.bound(ctx)
	defer cancel()
	s, err := r.next.Get(bctx, userID)
	if err != nil {
		r.degrade(ctx, "get", userID, err)
		return Default(userID), nil
	}
	return s, nil
}

// Set reports failures but never returns them.
func (r *ResilientStore) Set(ctx context.Context, s Session) error {
	bctx, cancel := r.bound(ctx)
	defer cancel()
	if err := r.next.Set(bctx, s); err != nil {
		r.degrade(ctx, "set", s.UserID, err)
	}
	return nil
}

// Delete reports failures but never returns them.
func (r *ResilientStore) Delete(ctx context.Context, userID int64) error {
	bctx, cancel := r.bound(ctx)
	defer cancel()
	if err := r.next.Delete(bctx, userID); err != nil {
		r.degrade(ctx, "delete", userID, err)
	}
	return nil
}

// Ping forwards to the wrapped backend; backends without Pinger are always healthy.
func (r *ResilientStore) Ping(ctx context.Context) error {
	p, ok := r.next.(Pinger)
	if !ok {
		return nil
	}
	bctx, cancel := r.bound(ctx)
	defer cancel()
	return p.Ping(bctx)
}
