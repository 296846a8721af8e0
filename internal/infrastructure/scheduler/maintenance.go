package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/marketsync/internal/infrastructure/lock"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// QueueMaintainer performs the sync queue housekeeping
type QueueMaintainer interface {
	ReapStale(ctx context.Context) (int64, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// MaintenanceConfig holds the cron expressions of the queue housekeeping
type MaintenanceConfig struct {
	ReaperCron string
	PurgeCron  string
	// LockTTL bounds a single housekeeping run
	LockTTL time.Duration
}

// Maintenance runs the stale-item reaper and the retention purge on cron
// schedules. Each run is guarded by a leader lock.
type Maintenance struct {
	cron       *cron.Cron
	maintainer QueueMaintainer
	locker     lock.Locker
	lockTTL    time.Duration
	logger     *zap.Logger
	baseCtx    context.Context
	cancel     context.CancelFunc
}

// NewMaintenance parses the schedules and registers both jobs
func NewMaintenance(config MaintenanceConfig, maintainer QueueMaintainer, locker lock.Locker, logger *zap.Logger) (*Maintenance, error) {
	if config.LockTTL <= 0 {
		config.LockTTL = 5 * time.Minute
	}
	log := logger.Named("maintenance")
	cronLog := cronLogger{log.Sugar()}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Maintenance{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		maintainer: maintainer,
		locker:     locker,
		lockTTL:    config.LockTTL,
		logger:     log,
		baseCtx:    ctx,
		cancel:     cancel,
	}

	if _, err := m.cron.AddFunc(config.ReaperCron, m.job("sync-reaper", maintainer.ReapStale)); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: reaper schedule %q: %v", ErrInvalidConfig, config.ReaperCron, err)
	}
	if _, err := m.cron.AddFunc(config.PurgeCron, m.job("sync-purge", maintainer.PurgeExpired)); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: purge schedule %q: %v", ErrInvalidConfig, config.PurgeCron, err)
	}
	return m, nil
}

// Start starts the cron scheduler
func (m *Maintenance) Start(ctx context.Context) error {
	m.cron.Start()
	m.logger.Info("Queue maintenance started", zap.Int("jobs", len(m.cron.Entries())))
	return nil
}

// Stop stops scheduling and waits for running jobs, bounded by ctx
func (m *Maintenance) Stop(ctx context.Context) error {
	m.cancel()
	done := m.cron.Stop()
	select {
	case <-done.Done():
		m.logger.Info("Queue maintenance stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Maintenance) job(name string, fn func(ctx context.Context) (int64, error)) func() {
	return func() {
		var affected int64
		ran, err := lock.RunExclusive(m.baseCtx, m.locker, name, m.lockTTL, func(ctx context.Context) error {
			n, err := fn(ctx)
			affected = n
			return err
		})
		switch {
		case err != nil:
			m.logger.Error("Maintenance job failed", zap.String("job", name), zap.Error(err))
		case ran:
			m.logger.Debug("Maintenance job completed", zap.String("job", name), zap.Int64("affected", affected))
		}
	}
}

// cronLogger adapts zap to the cron.Logger interface
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
