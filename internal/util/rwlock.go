package util

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrLockTimeout is the panic cause raised by TimedRWMutex when a lock
// cannot be acquired within its timeout.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// writerWeight is the semaphore weight taken by a writer. A reader takes 1,
// so a writer excludes every reader and readers share the semaphore freely.
const writerWeight = 1 << 30

// TimedRWMutex is a reader/writer lock whose acquisition is bounded by a
// timeout. Waiting longer than the timeout means a peer is stuck holding
// the lock, so acquisition panics instead of returning an error.
//
// Waiters are served in FIFO order: a pending writer blocks later readers.
// The zero value is not usable; call NewTimedRWMutex.
type TimedRWMutex struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

// NewTimedRWMutex returns an unlocked mutex. A non-positive timeout waits forever.
func NewTimedRWMutex(timeout time.Duration) *TimedRWMutex {
	return &TimedRWMutex{
		sem:     semaphore.NewWeighted(writerWeight),
		timeout: timeout,
	}
}

// RLock acquires the lock for reading.
func (m *TimedRWMutex) RLock() { m.acquire(1) }

// RUnlock releases a read lock.
func (m *TimedRWMutex) RUnlock() { m.sem.Release(1) }

// Lock acquires the lock for writing.
func (m *TimedRWMutex) Lock() { m.acquire(writerWeight) }

// Unlock releases a write lock.
func (m *TimedRWMutex) Unlock() { m.sem.Release(writerWeight) }

func (m *TimedRWMutex) acquire(n int64) {
	// Uncontended path: no context or timer allocation.
	if m.sem.TryAcquire(n) {
		return
	}
	ctx := context.Background()
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	if err := m.sem.Acquire(ctx, n); err != nil {
		panic(fmt.Errorf("%w after %s", ErrLockTimeout, m.timeout))
	}
}
