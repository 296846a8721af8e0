package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"go.uber.org/zap"
)

// SyncItemClaimer hands out claimed queue items
type SyncItemClaimer interface {
	ClaimBatch(ctx context.Context, limit int) ([]integration.SyncQueueItem, error)
}

// SyncItemProcessor runs the sync pipeline for one claimed item
type SyncItemProcessor interface {
	Process(ctx context.Context, item *integration.SyncQueueItem) error
}

// ClaimRecorder observes claimed batch sizes
type ClaimRecorder interface {
	RecordClaimBatch(ctx context.Context, size int)
}

// SyncWorkerPoolConfig holds worker pool configuration
type SyncWorkerPoolConfig struct {
	Workers      int
	BatchSize    int
	PollInterval time.Duration
}

// DefaultSyncWorkerPoolConfig returns default worker pool configuration
func DefaultSyncWorkerPoolConfig() SyncWorkerPoolConfig {
	return SyncWorkerPoolConfig{
		Workers:      4,
		BatchSize:    10,
		PollInterval: 2 * time.Second,
	}
}

// Validate checks the configuration
func (c SyncWorkerPoolConfig) Validate() error {
	if c.Workers <= 0 || c.BatchSize <= 0 || c.PollInterval <= 0 {
		return fmt.Errorf("%w: workers, batch size and poll interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// SyncWorkerPool runs N workers that each claim a batch of queue items and
// process it, sleeping for the poll interval whenever the queue is empty.
type SyncWorkerPool struct {
	config    SyncWorkerPoolConfig
	claimer   SyncItemClaimer
	processor SyncItemProcessor
	metrics   ClaimRecorder
	logger    *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
}

// NewSyncWorkerPool creates a new worker pool
func NewSyncWorkerPool(config SyncWorkerPoolConfig, claimer SyncItemClaimer, processor SyncItemProcessor, metrics ClaimRecorder, logger *zap.Logger) (*SyncWorkerPool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &SyncWorkerPool{
		config:    config,
		claimer:   claimer,
		processor: processor,
		metrics:   metrics,
		logger:    logger.Named("sync_worker_pool"),
	}, nil
}

// Start launches the workers
func (p *SyncWorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRunning {
		return nil
	}
	p.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for i := range p.config.Workers {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Info("Sync worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// Stop cancels the workers and waits for in-flight items, bounded by ctx.
// Items still PROCESSING after an aborted wait are recovered by the reaper.
func (p *SyncWorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.cancel()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Sync worker pool stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the pool is running
func (p *SyncWorkerPool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isRunning
}

func (p *SyncWorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker", id))

	for {
		if ctx.Err() != nil {
			return
		}
		n := p.runOnce(ctx, log)
		if n > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.config.PollInterval):
		}
	}
}

// runOnce claims and processes one batch, returning the number of items claimed
func (p *SyncWorkerPool) runOnce(ctx context.Context, log *zap.Logger) int {
	items, err := p.claimer.ClaimBatch(ctx, p.config.BatchSize)
	if err != nil {
		if ctx.Err() == nil {
			log.Error("Failed to claim sync items", zap.Error(err))
		}
		return 0
	}
	if p.metrics != nil && len(items) > 0 {
		p.metrics.RecordClaimBatch(ctx, len(items))
	}

	for i := range items {
		// a claimed batch is always finished, even after cancellation
		itemCtx := context.WithoutCancel(ctx)
		if err := p.processor.Process(itemCtx, &items[i]); err != nil {
			log.Error("Failed to record sync outcome",
				zap.String("queue_item_id", items[i].ID.String()),
				zap.String("tenant_id", items[i].TenantID.String()),
				zap.String("sync_type", string(items[i].SyncType)),
				zap.Error(err),
			)
		}
	}
	return len(items)
}
