package cache

import (
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewIdempotencyStore returns a Redis store when a client is available and an
// in-memory store otherwise. The in-memory store does not coalesce across replicas.
func NewIdempotencyStore(client redis.UniversalClient, keyPrefix string, logger *zap.Logger) shared.IdempotencyStore {
	if client != nil {
		logger.Info("Using Redis idempotency store", zap.String("prefix", keyPrefix))
		return NewRedisIdempotencyStore(client, keyPrefix)
	}
	logger.Warn("Redis not configured, using in-memory idempotency store",
		zap.String("prefix", keyPrefix))
	return NewInMemoryIdempotencyStore(0)
}
