package scheduler

import (
	"context"
	"time"

	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/erp/marketsync/internal/infrastructure/lock"
	"go.uber.org/zap"
)

// ExpiringTokenRefresher refreshes connections whose tokens are about to expire
type ExpiringTokenRefresher interface {
	RefreshExpiring(ctx context.Context, threshold time.Duration) (appintegration.RefreshResult, error)
}

// TokenRefresherConfig holds token refresh job configuration
type TokenRefresherConfig struct {
	Interval  time.Duration
	Threshold time.Duration
}

// NewTokenRefresher creates the leader job that keeps marketplace tokens fresh
func NewTokenRefresher(config TokenRefresherConfig, refresher ExpiringTokenRefresher, locker lock.Locker, logger *zap.Logger) (*LeaderJob, error) {
	log := logger.Named("token_refresher")
	return NewLeaderJob("token-refresh", config.Interval, locker, func(ctx context.Context) error {
		result, err := refresher.RefreshExpiring(ctx, config.Threshold)
		if err != nil {
			return err
		}
		if result.Scanned > 0 {
			log.Info("Token refresh pass completed",
				zap.Int("scanned", result.Scanned),
				zap.Int("refreshed", result.Refreshed),
				zap.Int("failed", result.Failed),
			)
		}
		return nil
	}, log)
}
