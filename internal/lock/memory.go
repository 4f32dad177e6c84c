package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker implements Locker with an in-process map. It serializes the
// login pipeline within one server, which is all a single-node identity
// deployment needs; nothing survives a restart or spans instances.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]lockEntry
}

type lockEntry struct {
	expiresAt time.Time
}

// NewMemoryLocker creates a new in-memory locker. A background goroutine
// drops expired entries so abandoned login locks do not accumulate.
func NewMemoryLocker() *MemoryLocker {
	ml := &MemoryLocker{
		locks: make(map[string]lockEntry),
	}
	go ml.cleanupLoop()
	return ml
}

func (m *MemoryLocker) cleanupLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.cleanup()
	}
}

func (m *MemoryLocker) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for key, entry := range m.locks {
		if now.After(entry.expiresAt) {
			delete(m.locks, key)
		}
	}
}

// Acquire attempts to take the lock. An expired entry counts as free: a
// crashed login attempt must not wedge its account past the TTL.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if entry, exists := m.locks[key]; exists && now.Before(entry.expiresAt) {
		return false, nil
	}

	m.locks[key] = lockEntry{expiresAt: now.Add(ttl)}
	return true, nil
}

// AcquireWithRetry attempts to take the lock, retrying up to maxRetries
// times. Concurrent logins against the same account land here and wait out
// the holder.
func (m *MemoryLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	for i := 0; i <= maxRetries; i++ {
		acquired, err := m.Acquire(ctx, key, ttl)
		if err != nil {
			return false, err
		}
		if acquired {
			return true, nil
		}

		if i < maxRetries {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return false, nil
}

// Release frees the lock. Returns false when it was not held.
func (m *MemoryLocker) Release(ctx context.Context, key string) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.locks[key]; exists {
		delete(m.locks, key)
		return true, nil
	}
	return false, nil
}

// Extend pushes out the TTL of a held lock.
func (m *MemoryLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(m.locks, key)
		return false, nil
	}

	m.locks[key] = lockEntry{expiresAt: time.Now().Add(ttl)}
	return true, nil
}

// IsHeld reports whether the lock is currently held.
func (m *MemoryLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(m.locks, key)
		return false, nil
	}
	return true, nil
}

var _ Locker = (*MemoryLocker)(nil)
