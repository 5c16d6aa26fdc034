package port

import (
	"context"
	"errors"
	"time"
)

// ErrLockNotObtained is returned by Locker when the lock is held elsewhere
var ErrLockNotObtained = errors.New("lock not obtained")

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ClearIdempotency frees a key whose request failed, so it may be retried
	ClearIdempotency(ctx context.Context, key string) error
}

type Locker interface {
	// Obtain acquires key for at most ttl; the returned func releases it
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}
