package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	pgSelect = `SELECT data FROM bot_sessions WHERE user_id = $1 AND expires_at > $2`
	pgUpsert = `INSERT INTO bot_sessions (user_id, data, expires_at) VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at`
	pgDelete = `DELETE FROM bot_sessions WHERE user_id = $1`
	pgPurge  = `DELETE FROM bot_sessions WHERE expires_at <= $1`
)

// PostgresStore keeps sessions in the bot_sessions table.
type PostgresStore struct {
	db  *sqlx.DB
	ttl time.Duration
	now func() time.Time
}

// NewPostgresStore uses db, which must already be migrated.
func NewPostgresStore(db *sqlx.DB, ttl time.Duration) *PostgresStore {
	return &PostgresStore{db: db, ttl: ttl, now: time.Now}
}

// Get returns the stored session; expired rows count as absent.
func (p *PostgresStore) Get(ctx context.Context, userID int64) (Session, error) {
	var data []byte
	if err := p.db.GetContext(ctx, &data, pgSelect, userID, p.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Default(userID), nil
		}
		return Default(userID), backendErr("postgres select", err)
	}
	return decode(userID, data)
}

// Set upserts the session and pushes its expiry forward.
func (p *PostgresStore) Set(ctx context.Context, s Session) error {
	data, err := encode(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ttl := p.ttl
	if ttl <= 0 {
		ttl = 100 * 365 * 24 * time.Hour
	}
	if _, err := p.db.ExecContext(ctx, pgUpsert, s.UserID, data, p.now().UTC().Add(ttl)); err != nil {
		return backendErr("postgres upsert", err)
	}
	return nil
}

// Delete removes the row for userID.
func (p *PostgresStore) Delete(ctx context.Context, userID int64) error {
	if _, err := p.db.ExecContext(ctx, pgDelete, userID); err != nil {
		return backendErr("postgres delete", err)
	}
	return nil
}

// PurgeExpired removes expired rows and returns how many were deleted.
func (p *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx, pgPurge, p.now().UTC())
	if err != nil {
		return 0, backendErr("postgres purge", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Ping checks connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return backendErr("postgres ping", err)
	}
	return nil
}
