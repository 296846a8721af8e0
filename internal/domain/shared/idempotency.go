package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed keys (event ids, webhook resources) for a TTL
type IdempotencyStore interface {
	// MarkProcessed marks the key as processed for ttl.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if the key is currently marked
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Forget removes a mark so that the next delivery is processed again
	Forget(ctx context.Context, key string) error

	// Close releases the store
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a processed key suppresses duplicates
	TTL time.Duration

	// Enabled determines whether idempotency checking is enabled
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
