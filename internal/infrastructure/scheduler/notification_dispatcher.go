package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/erp/marketsync/internal/domain/shared"
	"go.uber.org/zap"
)

// NotificationHandler imports the order a notification refers to
type NotificationHandler interface {
	HandleNotification(ctx context.Context, req *appintegration.OrderImportRequest) (*appintegration.ImportResult, error)
}

// NotificationRecorder observes webhook notification outcomes
type NotificationRecorder interface {
	RecordNotification(ctx context.Context, marketplace, outcome string)
}

// NotificationDispatcherConfig holds dispatcher configuration
type NotificationDispatcherConfig struct {
	Workers int
	Buffer  int
	// CoalesceTTL bounds how long a queued or in-flight order drops repeated
	// notifications; the key is released as soon as its import finishes
	CoalesceTTL   time.Duration
	HandleTimeout time.Duration
}

// DefaultNotificationDispatcherConfig returns default dispatcher configuration
func DefaultNotificationDispatcherConfig() NotificationDispatcherConfig {
	return NotificationDispatcherConfig{
		Workers:       4,
		Buffer:        256,
		CoalesceTTL:   30 * time.Second,
		HandleTimeout: time.Minute,
	}
}

// NotificationDispatcher imports orders from webhook notifications off the
// request path: Submit enqueues into a bounded buffer and a fixed set of
// workers drains it. Notifications lost to a full buffer or a shutdown are
// picked up by the order poller.
type NotificationDispatcher struct {
	config  NotificationDispatcherConfig
	handler NotificationHandler
	store   shared.IdempotencyStore
	metrics NotificationRecorder
	logger  *zap.Logger

	queue     chan *appintegration.OrderImportRequest
	mu        sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
}

// NewNotificationDispatcher creates a dispatcher. store may be nil to disable coalescing.
func NewNotificationDispatcher(config NotificationDispatcherConfig, handler NotificationHandler, store shared.IdempotencyStore, metrics NotificationRecorder, logger *zap.Logger) (*NotificationDispatcher, error) {
	if config.Workers <= 0 || config.Buffer <= 0 {
		return nil, fmt.Errorf("%w: dispatcher workers and buffer must be positive", ErrInvalidConfig)
	}
	if config.HandleTimeout <= 0 {
		config.HandleTimeout = time.Minute
	}
	return &NotificationDispatcher{
		config:  config,
		handler: handler,
		store:   store,
		metrics: metrics,
		logger:  logger.Named("notification_dispatcher"),
		queue:   make(chan *appintegration.OrderImportRequest, config.Buffer),
	}, nil
}

// Start launches the workers
func (d *NotificationDispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isRunning {
		return nil
	}
	d.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	for range d.config.Workers {
		d.wg.Add(1)
		go d.worker(ctx)
	}

	d.logger.Info("Notification dispatcher started",
		zap.Int("workers", d.config.Workers),
		zap.Int("buffer", d.config.Buffer),
	)
	return nil
}

// Stop stops the workers and waits for in-flight imports, bounded by ctx
func (d *NotificationDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.isRunning = false
	d.cancel()
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Notification dispatcher stopped", zap.Int("dropped", len(d.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues an import without blocking
func (d *NotificationDispatcher) Submit(ctx context.Context, req *appintegration.OrderImportRequest) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.isRunning {
		return ErrSchedulerNotRunning
	}

	marketplace := req.Marketplace.String()
	key := "notification:" + req.Key()
	if d.store != nil && d.config.CoalesceTTL > 0 {
		isNew, err := d.store.MarkProcessed(ctx, key, d.config.CoalesceTTL)
		if err != nil {
			d.logger.Warn("Notification coalescing unavailable", zap.Error(err))
		} else if !isNew {
			d.record(ctx, marketplace, appintegration.OutcomeIgnored)
			return ErrDuplicateNotification
		}
	}

	select {
	case d.queue <- req:
		d.record(ctx, marketplace, appintegration.OutcomeQueued)
		return nil
	default:
		d.forget(ctx, key)
		d.record(ctx, marketplace, appintegration.OutcomeDropped)
		return ErrQueueFull
	}
}

// Pending returns the number of buffered notifications
func (d *NotificationDispatcher) Pending() int {
	return len(d.queue)
}

func (d *NotificationDispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.queue:
			d.handle(ctx, req)
		}
	}
}

func (d *NotificationDispatcher) handle(ctx context.Context, req *appintegration.OrderImportRequest) {
	log := d.logger.With(
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("marketplace", req.Marketplace.String()),
		zap.String("external_order_id", req.ExternalOrderID),
	)
	// later notifications may carry real status changes, so the key only
	// coalesces while this import is queued or running
	defer d.forget(ctx, "notification:"+req.Key())
	defer func() {
		if r := recover(); r != nil {
			log.Error("Order import panicked", zap.Any("panic", r))
		}
	}()

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.config.HandleTimeout)
	defer cancel()

	result, err := d.handler.HandleNotification(callCtx, req)
	if err != nil {
		log.Warn("Order import from notification failed",
			zap.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
			zap.Error(err),
		)
		return
	}
	log.Debug("Order imported from notification",
		zap.Bool("created", result.Created),
		zap.Bool("changed", result.Changed),
	)
}

func (d *NotificationDispatcher) forget(ctx context.Context, key string) {
	if d.store == nil {
		return
	}
	if err := d.store.Forget(context.WithoutCancel(ctx), key); err != nil {
		d.logger.Warn("Failed to release notification key", zap.String("key", key), zap.Error(err))
	}
}

func (d *NotificationDispatcher) record(ctx context.Context, marketplace, outcome string) {
	if d.metrics != nil {
		d.metrics.RecordNotification(ctx, marketplace, outcome)
	}
}
