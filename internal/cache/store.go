package cache

import (
	"context"
	"time"
)

// Store is the shared counter store used by the rate limiter when more than one
// instance serves the reset endpoints.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}
