// Package distlock provides the single-runner lock for scheduled jobs, so
// only one worker replica runs an export for a given period.
package distlock

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned by Do when another holder owns the lock.
var ErrNotAcquired = errors.New("lock held elsewhere")

// Lock is a non-blocking distributed lock.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// New picks Redis when a client is given, otherwise a Postgres advisory
// lock.
func New(client redis.Cmdable, db *sql.DB, key string, ttl time.Duration) Lock {
	if client != nil {
		return NewRedisLock(client, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// Do runs fn while holding l. It returns ErrNotAcquired without running fn
// when the lock is taken.
func Do(ctx context.Context, l Lock, fn func(context.Context) error) error {
	ok, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAcquired
	}
	defer l.Release(context.WithoutCancel(ctx))
	return fn(ctx)
}

// PGAdvisoryLock uses session-scoped pg_try_advisory_lock. The lock
// belongs to one server session, so the connection that took it is pinned
// until Release unlocks on that same session. A dropped connection
// releases it.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64

	mu   sync.Mutex
	conn *sql.Conn
}

// NewPGAdvisoryLock derives the advisory lock id from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return false, errors.New("distlock: advisory lock already held by this instance")
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("distlock: pin connection: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("distlock: try lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks on the pinned session. If the unlock fails the session is
// discarded instead of going back to the pool with the lock still held.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID); err != nil {
		conn.Raw(func(any) error { return driver.ErrBadConn })
		conn.Close()
		return fmt.Errorf("distlock: unlock: %w", err)
	}
	return conn.Close()
}
