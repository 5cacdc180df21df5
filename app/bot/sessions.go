package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/sheetbot/core/config"
	"github.com/m3rciful/sheetbot/core/logger"
	"github.com/m3rciful/sheetbot/core/session"
)

const janitorInterval = 10 * time.Minute

// sessionBackend is the raw store picked by configuration plus its upkeep hooks.
type sessionBackend struct {
	store session.Store
	// purge drops expired records; nil when the backend expires them itself.
	purge func(ctx context.Context) (int64, error)
	close func() error
}

func openSessionBackend(cfg coreconfig.SessionConfig, db *sqlx.DB) (sessionBackend, error) {
	switch cfg.Backend {
	case coreconfig.SessionMemory, "":
		st := session.NewMemoryStore(cfg.TTL)
		return sessionBackend{
			store: st,
			purge: func(context.Context) (int64, error) { return int64(st.Sweep()), nil },
		}, nil
	case coreconfig.SessionRedis:
		pool := session.NewRedisPool(cfg.Redis.URL, cfg.Redis.Password)
		return sessionBackend{
			store: session.NewRedisStore(pool, cfg.TTL, cfg.KeyPrefix),
			close: pool.Close,
		}, nil
	case coreconfig.SessionPostgres:
		if db == nil {
			return sessionBackend{}, errors.New("postgres session backend needs a database connection")
		}
		st := session.NewPostgresStore(db, cfg.TTL)
		return sessionBackend{store: st, purge: st.PurgeExpired, close: db.Close}, nil
	default:
		return sessionBackend{}, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// runJanitor purges expired sessions every interval until ctx is done.
func runJanitor(ctx context.Context, interval time.Duration, purge func(context.Context) (int64, error)) {
	if purge == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purge(ctx)
			if err != nil {
				logger.Warn(ctx, logger.CompSession, "session.purge", slog.String("status", "fail"), logger.Err(err))
				continue
			}
			if n > 0 {
				logger.Debug(ctx, logger.CompSession, "session.purge", slog.String("status", "ok"), slog.Int64("removed", n))
			}
		}
	}
}
