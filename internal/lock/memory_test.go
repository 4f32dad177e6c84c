package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_AcquireAndRelease(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()
	key := Keys.AccountLogin(7)

	acquired, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	// A second acquirer is refused while the lock is held.
	acquired, err = locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, acquired)

	held, err := locker.IsHeld(ctx, key)
	require.NoError(t, err)
	require.True(t, held)

	released, err := locker.Release(ctx, key)
	require.NoError(t, err)
	require.True(t, released)

	acquired, err = locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestMemoryLocker_ExpiredLockIsFree(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()
	key := Keys.AccountLogin(7)

	acquired, err := locker.Acquire(ctx, key, time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)

	time.Sleep(5 * time.Millisecond)

	acquired, err = locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestMemoryLocker_AcquireWithRetryWaitsOutHolder(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()
	key := Keys.AccountLogin(7)

	acquired, err := locker.Acquire(ctx, key, 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = locker.AcquireWithRetry(ctx, key, time.Minute, 5, 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestLock_WrapsLocker(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	sweep := NewLock(locker, Keys.Maintenance())

	acquired, err := sweep.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
	require.True(t, sweep.IsHeld())

	// Another node's wrapper over the same key is refused.
	other := NewLock(locker, Keys.Maintenance())
	acquired, err = other.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.False(t, acquired)

	require.NoError(t, sweep.Release(ctx))
	require.False(t, sweep.IsHeld())

	acquired, err = other.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
}
