package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gomodule/redigo/redis"
)

// RedisStore keeps sessions as JSON strings with a native Redis expiry.
type RedisStore struct {
	pool   *redis.Pool
	ttl    time.Duration
	prefix string
}

// NewRedisPool builds a connection pool for a redis:// URL.
func NewRedisPool(url, password string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     3,
		IdleTimeout: 240 * time.Second,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			opts := []redis.DialOption{redis.DialConnectTimeout(5 * time.Second)}
			if password != "" {
				opts = append(opts, redis.DialPassword(password))
			}
			return redis.DialURLContext(ctx, url, opts...)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// NewRedisStore wraps pool; keys are prefix+userID.
func NewRedisStore(pool *redis.Pool, ttl time.Duration, prefix string) *RedisStore {
	return &RedisStore{pool: pool, ttl: ttl, prefix: prefix}
}

func (r *RedisStore) key(userID int64) string {
	return r.prefix + strconv.FormatInt(userID, 10)
}

func (r *RedisStore) conn(ctx context.Context) (redis.Conn, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, backendErr("redis connect", err)
	}
	return conn, nil
}

// Get loads the session; a missing key yields Default.
func (r *RedisStore) Get(ctx context.Context, userID int64) (Session, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return Default(userID), err
	}
	defer conn.Close()

	data, err := redis.Bytes(redis.DoContext(conn, ctx, "GET", r.key(userID)))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return Default(userID), nil
		}
		return Default(userID), backendErr("redis get", err)
	}
	return decode(userID, data)
}

// Set writes the session with the configured expiry.
func (r *RedisStore) Set(ctx context.Context, s Session) error {
	data, err := encode(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	args := []any{r.key(s.UserID), data}
	if r.ttl > 0 {
		args = append(args, "PX", max(r.ttl.Milliseconds(), 1))
	}
	if _, err := redis.DoContext(conn, ctx, "SET", args...); err != nil {
		return backendErr("redis set", err)
	}
	return nil
}

// Delete removes the key.
func (r *RedisStore) Delete(ctx context.Context, userID int64) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := redis.DoContext(conn, ctx, "DEL", r.key(userID)); err != nil {
		return backendErr("redis del", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := redis.DoContext(conn, ctx, "PING"); err != nil {
		return backendErr("redis ping", err)
	}
	return nil
}

// Close releases pooled connections.
func (r *RedisStore) Close() error {
	return r.pool.Close()
}
