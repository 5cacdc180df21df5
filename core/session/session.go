// Package session keeps the small per-user conversation record that survives
// between updates: the active scene and the "changing spreadsheet" flag.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrBackend marks failures of the storage backend itself, as opposed to an absent session.
var ErrBackend = errors.New("session backend failure")

// Session is the per-user record. The zero Scene means no scene is active.
type Session struct {
	UserID              int64     `json:"user_id"`
	Scene               string    `json:"scene,omitempty"`
	ChangingSpreadsheet bool      `json:"changing_spreadsheet,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Default returns the session used when nothing is stored for userID.
func Default(userID int64) Session {
	return Session{UserID: userID}
}

// IsDefault reports whether s carries no state worth storing.
func (s Session) IsDefault() bool {
	return s.Scene == "" && !s.ChangingSpreadsheet
}

// Store persists sessions keyed by user id.
//
// Get returns Default for an absent key with a nil error; backend failures are
// returned wrapped in ErrBackend. Set replaces the stored record and applies the
// store's retention window. Delete removes the record immediately.
type Store interface {
	Get(ctx context.Context, userID int64) (Session, error)
	Set(ctx context.Context, s Session) error
	Delete(ctx context.Context, userID int64) error
}

// Pinger is implemented by networked backends for health reporting.
type Pinger interface {
	Ping(ctx context.Context) error
}

func backendErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrBackend, op, err)
}

func encode(s Session) ([]byte, error) {
	return json.Marshal(s)
}

func decode(userID int64, data []byte) (Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Default(userID), backendErr("decode", err)
	}
	s.UserID = userID
	return s, nil
}
