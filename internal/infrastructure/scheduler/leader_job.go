package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/marketsync/internal/infrastructure/lock"
	"go.uber.org/zap"
)

// LeaderJob runs fn on a fixed interval on whichever replica holds the
// job's lock. The first run happens right after Start.
type LeaderJob struct {
	name     string
	interval time.Duration
	lockTTL  time.Duration
	locker   lock.Locker
	fn       func(ctx context.Context) error
	logger   *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
}

// NewLeaderJob creates a periodic job guarded by locker.
// The lock TTL covers one run and defaults to the interval.
func NewLeaderJob(name string, interval time.Duration, locker lock.Locker, fn func(ctx context.Context) error, logger *zap.Logger) (*LeaderJob, error) {
	if name == "" || interval <= 0 || locker == nil || fn == nil {
		return nil, fmt.Errorf("%w: job %q needs a name, positive interval, locker and function", ErrInvalidConfig, name)
	}
	return &LeaderJob{
		name:     name,
		interval: interval,
		lockTTL:  interval,
		locker:   locker,
		fn:       fn,
		logger:   logger.With(zap.String("job", name)),
	}, nil
}

// Start launches the job loop
func (j *LeaderJob) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.isRunning {
		return nil
	}
	j.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.wg.Add(1)
	go j.loop(ctx)

	j.logger.Info("Leader job started", zap.Duration("interval", j.interval))
	return nil
}

// Stop cancels the loop and waits for the current run, bounded by ctx
func (j *LeaderJob) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.isRunning {
		j.mu.Unlock()
		return nil
	}
	j.isRunning = false
	j.cancel()
	j.mu.Unlock()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		j.logger.Info("Leader job stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *LeaderJob) loop(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		j.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce runs the job if this replica obtains the lock. It reports whether fn ran.
func (j *LeaderJob) RunOnce(ctx context.Context) bool {
	start := time.Now()
	ran, err := lock.RunExclusive(ctx, j.locker, j.name, j.lockTTL, j.fn)
	switch {
	case err != nil && ctx.Err() == nil:
		j.logger.Error("Leader job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
	case !ran:
		j.logger.Debug("Leader job skipped, lock held elsewhere")
	}
	return ran
}
