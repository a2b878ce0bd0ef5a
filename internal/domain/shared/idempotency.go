package shared

import (
	"context"
	"time"
)

// IdempotencyStore records processed event ids so a re-delivered event is
// handled at most once within the TTL
type IdempotencyStore interface {
	// MarkProcessed reports true only for the first caller of key
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, key string) (bool, error)
	Close() error
}

// IdempotencyConfig controls event de-duplication
type IdempotencyConfig struct {
	TTL     time.Duration
	Enabled bool
}

// DefaultIdempotencyConfig keeps keys for a day
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{TTL: 24 * time.Hour, Enabled: true}
}
