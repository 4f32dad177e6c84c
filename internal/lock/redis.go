package lock

import (
	"context"
	"time"

	"github.com/prn-tf/sentinel-identity/internal/repository"
)

// RedisLocker adapts repository.DistributedLock to the Locker interface.
// Multi-node deployments need it: the failed-login counter is only
// single-writer per account when every server contends for the same Redis
// key.
type RedisLocker struct {
	distributedLock repository.DistributedLock
}

// NewRedisLocker wraps a DistributedLock implementation.
func NewRedisLocker(dl repository.DistributedLock) *RedisLocker {
	return &RedisLocker{
		distributedLock: dl,
	}
}

// Acquire attempts to take the lock. Returns false when another node holds
// it.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.distributedLock.Acquire(ctx, key, ttl)
}

// AcquireWithRetry attempts to take the lock, retrying up to maxRetries
// times.
func (l *RedisLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	return l.distributedLock.AcquireWithRetry(ctx, key, ttl, maxRetries, retryDelay)
}

// Release frees the lock.
func (l *RedisLocker) Release(ctx context.Context, key string) (bool, error) {
	return l.distributedLock.Release(ctx, key)
}

// Extend pushes out the TTL of a held lock.
func (l *RedisLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.distributedLock.Extend(ctx, key, ttl)
}

// IsHeld reports whether any node holds the lock.
func (l *RedisLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	return l.distributedLock.IsHeld(ctx, key)
}

var _ Locker = (*RedisLocker)(nil)
