package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLock_ExclusiveAndOwnerRelease(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	a := NewRedisLock(client, "export:2026-03-01", time.Minute)
	b := NewRedisLock(client, "export:2026-03-01", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Release(ctx))
	assert.True(t, mr.Exists("lock:export:2026-03-01"), "non-owner release is a no-op")

	require.NoError(t, a.Release(ctx))
	assert.False(t, mr.Exists("lock:export:2026-03-01"))
}

func TestDo(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	holder := New(client, nil, "job", time.Minute)
	ok, err := holder.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ran := false
	err = Do(ctx, New(client, nil, "job", time.Minute), func(context.Context) error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.False(t, ran)

	require.NoError(t, holder.Release(ctx))
	err = Do(ctx, New(client, nil, "job", time.Minute), func(context.Context) error { ran = true; return nil })
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:job"), "released after fn")
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := New(nil, db, "job", time.Minute)
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("SELECT pg_advisory_unlock").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Do(context.Background(), l, func(context.Context) error { return nil }))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLock_UnlocksOnPinnedSessionAndRetries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)
	ctx := context.Background()

	l := NewPGAdvisoryLock(db, "analytics-export:2026-03-01")
	lockRows := func(ok bool) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(ok)
	}

	// a failed run still unlocks, so a same-day retry can take the lock
	mock.ExpectQuery("SELECT pg_try_advisory_lock").WithArgs(l.lockID).WillReturnRows(lockRows(true))
	mock.ExpectExec("SELECT pg_advisory_unlock").WithArgs(l.lockID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT pg_try_advisory_lock").WithArgs(l.lockID).WillReturnRows(lockRows(true))
	mock.ExpectExec("SELECT pg_advisory_unlock").WithArgs(l.lockID).WillReturnResult(sqlmock.NewResult(0, 0))

	err = Do(ctx, l, func(context.Context) error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, l.conn, "session returned after release")

	require.NoError(t, Do(ctx, l, func(context.Context) error { return nil }))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLock_HeldElsewhereReturnsSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	l := NewPGAdvisoryLock(db, "job")
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, l.conn)

	// with a single-connection pool this would block if the session leaked
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT 1").Scan(&n))
	require.NoError(t, l.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLock_DoubleAcquire(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPGAdvisoryLock(db, "job")
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = l.Acquire(context.Background())
	assert.Error(t, err)
}
