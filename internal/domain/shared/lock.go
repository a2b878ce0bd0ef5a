package shared

import (
	"context"
	"time"
)

// Locker provides mutual exclusion keyed by an arbitrary string.
// The returned release func must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
