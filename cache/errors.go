package cache

import (
	"errors"

	"github.com/IvanBrykalov/ccache/internal/util"
)

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("cache: key not found")

	// ErrNoLoader is returned by Fetch when the fetch function is nil.
	ErrNoLoader = errors.New("cache: no fetch function provided")

	// ErrSyncTimeout is the cause of the panic raised when a bucket lock
	// cannot be acquired within Config.LockTimeout. It is never returned:
	// a timed-out lock means a stuck peer, not a retryable condition.
	ErrSyncTimeout = util.ErrLockTimeout
)
