package integration

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyncQueueConfig tunes retries and retention of the queue
type SyncQueueConfig struct {
	MaxRetries int
	// RetryBaseDelay is the delay before the first retry; zero retries immediately
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// ProcessingTimeout is how long an item may stay PROCESSING before the reaper resets it
	ProcessingTimeout time.Duration
	// Retention is how long SUCCESS and FAILED items are kept
	Retention time.Duration
}

// DefaultSyncQueueConfig returns the default queue configuration
func DefaultSyncQueueConfig() SyncQueueConfig {
	return SyncQueueConfig{
		MaxRetries:        integration.DefaultMaxRetries,
		RetryBaseDelay:    5 * time.Second,
		RetryMaxDelay:     5 * time.Minute,
		ProcessingTimeout: 10 * time.Minute,
		Retention:         30 * 24 * time.Hour,
	}
}

// SyncQueueService is the entry point of all reconciliation work: it enqueues
// deduplicated items and records claimed items' outcomes.
type SyncQueueService struct {
	queue       integration.SyncQueueRepository
	logs        integration.SyncLogRepository
	connections integration.ConnectionRepository
	cfg         SyncQueueConfig
	logger      *zap.Logger
	clock       func() time.Time
}

// NewSyncQueueService creates a new SyncQueueService
func NewSyncQueueService(
	queue integration.SyncQueueRepository,
	logs integration.SyncLogRepository,
	connections integration.ConnectionRepository,
	cfg SyncQueueConfig,
	logger *zap.Logger,
) *SyncQueueService {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = integration.DefaultMaxRetries
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = cfg.RetryBaseDelay
	}
	return &SyncQueueService{
		queue:       queue,
		logs:        logs,
		connections: connections,
		cfg:         cfg,
		logger:      logger,
		clock:       time.Now,
	}
}

// ---------------------------------------------------------------------------
// Enqueue
// ---------------------------------------------------------------------------

// Enqueue adds a reconciliation item unless an active one exists for its key.
// Enqueues for a connection that is not CONNECTED are refused with
// ErrConnectionNotUsable until the tenant reconnects.
func (s *SyncQueueService) Enqueue(ctx context.Context, in EnqueueInput) (*integration.SyncQueueItem, bool, error) {
	if err := s.ensureUsable(ctx, in.TenantID, in.Marketplace); err != nil {
		return nil, false, err
	}
	return s.enqueue(ctx, in)
}

func (s *SyncQueueService) enqueue(ctx context.Context, in EnqueueInput) (*integration.SyncQueueItem, bool, error) {
	item, err := integration.NewSyncQueueItem(integration.SyncKey{
		TenantID:    in.TenantID,
		ProductID:   in.ProductID,
		VariantID:   in.VariantID,
		Marketplace: in.Marketplace,
		SyncType:    in.SyncType,
	}, in.Priority)
	if err != nil {
		return nil, false, err
	}
	item.MaxRetries = s.cfg.MaxRetries

	stored, created, err := s.queue.Enqueue(ctx, item)
	if err != nil {
		return nil, false, err
	}

	s.logger.Debug("sync item enqueued",
		zap.String("tenant_id", in.TenantID.String()),
		zap.String("product_id", in.ProductID.String()),
		zap.String("marketplace", in.Marketplace.String()),
		zap.String("sync_type", in.SyncType.String()),
		zap.String("queue_item_id", stored.ID.String()),
		zap.Bool("created", created),
	)
	return stored, created, nil
}

// EnqueueProducts enqueues one item per product and returns how many were newly created
func (s *SyncQueueService) EnqueueProducts(
	ctx context.Context,
	tenantID uuid.UUID,
	marketplace integration.MarketplaceCode,
	productIDs []uuid.UUID,
	syncType integration.SyncType,
	priority integration.SyncPriority,
) (int, error) {
	if err := s.ensureUsable(ctx, tenantID, marketplace); err != nil {
		return 0, err
	}

	created := 0
	for _, productID := range productIDs {
		_, isNew, err := s.enqueue(ctx, EnqueueInput{
			TenantID:    tenantID,
			ProductID:   productID,
			Marketplace: marketplace,
			SyncType:    syncType,
			Priority:    priority,
		})
		if err != nil {
			return created, fmt.Errorf("enqueue product %s: %w", productID, err)
		}
		if isNew {
			created++
		}
	}
	return created, nil
}

// RequestResync is a manual, high-priority reconciliation request.
// An existing PENDING item for the key is promoted instead of duplicated.
func (s *SyncQueueService) RequestResync(ctx context.Context, tenantID uuid.UUID, req ResyncRequest) (*EnqueueResponse, error) {
	marketplace, err := integration.ParseMarketplaceCode(req.Marketplace)
	if err != nil {
		return nil, err
	}
	item, created, err := s.Enqueue(ctx, EnqueueInput{
		TenantID:    tenantID,
		ProductID:   req.ProductID,
		VariantID:   req.VariantID,
		Marketplace: marketplace,
		SyncType:    integration.SyncType(req.SyncType),
		Priority:    integration.SyncPriorityHigh,
	})
	if err != nil {
		return nil, err
	}
	return &EnqueueResponse{Item: ToSyncQueueItemResponse(item), Created: created}, nil
}

// RetryFailed re-queues a FAILED item as a fresh high-priority item
func (s *SyncQueueService) RetryFailed(ctx context.Context, tenantID, itemID uuid.UUID) (*EnqueueResponse, error) {
	failed, err := s.queue.FindByID(ctx, tenantID, itemID)
	if err != nil {
		return nil, err
	}
	if failed.Status != integration.SyncStatusFailed {
		return nil, integration.ErrQueueItemNotFailed
	}

	item, created, err := s.Enqueue(ctx, EnqueueInput{
		TenantID:    failed.TenantID,
		ProductID:   failed.ProductID,
		VariantID:   failed.VariantID,
		Marketplace: failed.Marketplace,
		SyncType:    failed.SyncType,
		Priority:    integration.SyncPriorityHigh,
	})
	if err != nil {
		return nil, err
	}
	return &EnqueueResponse{Item: ToSyncQueueItemResponse(item), Created: created}, nil
}

// HandleStockChanged enqueues a STOCK item on every marketplace the tenant is connected to
func (s *SyncQueueService) HandleStockChanged(ctx context.Context, tenantID, productID uuid.UUID, variantID *uuid.UUID) (int, error) {
	conns, err := s.connections.FindConnectedByTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	var errs []error
	created := 0
	for _, conn := range conns {
		_, isNew, err := s.enqueue(ctx, EnqueueInput{
			TenantID:    tenantID,
			ProductID:   productID,
			VariantID:   variantID,
			Marketplace: conn.Marketplace,
			SyncType:    integration.SyncTypeStock,
			Priority:    integration.SyncPriorityNormal,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", conn.Marketplace, err))
			continue
		}
		if isNew {
			created++
		}
	}
	return created, errors.Join(errs...)
}

func (s *SyncQueueService) ensureUsable(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) error {
	conn, err := s.connections.FindByTenantAndMarketplace(ctx, tenantID, marketplace)
	if errors.Is(err, integration.ErrConnectionNotFound) {
		return fmt.Errorf("%w: no connection", integration.ErrConnectionNotUsable)
	}
	if err != nil {
		return err
	}
	if !conn.IsUsable() {
		return fmt.Errorf("%w: status %s", integration.ErrConnectionNotUsable, conn.Status)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Claim and outcomes
// ---------------------------------------------------------------------------

// ClaimBatch claims up to limit claimable items for processing
func (s *SyncQueueService) ClaimBatch(ctx context.Context, limit int) ([]integration.SyncQueueItem, error) {
	if limit <= 0 {
		return nil, integration.ErrInvalidClaimBatchCap
	}
	return s.queue.ClaimBatch(ctx, limit, s.clock())
}

// MarkSuccess completes a claimed item
func (s *SyncQueueService) MarkSuccess(ctx context.Context, item *integration.SyncQueueItem) error {
	claimedAt, err := claimOf(item)
	if err != nil {
		return err
	}
	if err := item.MarkSuccess(s.clock()); err != nil {
		return err
	}
	return s.queue.SaveOutcome(ctx, item, claimedAt)
}

// MarkFailure records a failed attempt. Transient failures are retried after
// a jittered backoff until the retry budget is spent; any other failure ends
// the item immediately.
func (s *SyncQueueService) MarkFailure(ctx context.Context, item *integration.SyncQueueItem, cause error) error {
	claimedAt, err := claimOf(item)
	if err != nil {
		return err
	}
	now := s.clock()
	msg := cause.Error()

	if integration.ClassifyError(cause) == integration.ErrorKindTransient {
		err = item.MarkFailure(msg, now, s.RetryDelay(item.RetryCount+1))
	} else {
		err = item.MarkPermanentFailure(msg, now)
	}
	if err != nil {
		return err
	}
	return s.queue.SaveOutcome(ctx, item, claimedAt)
}

// claimOf returns the instant item was claimed; outcomes are only saved under it
func claimOf(item *integration.SyncQueueItem) (time.Time, error) {
	if item.Status != integration.SyncStatusProcessing || item.ClaimedAt == nil {
		return time.Time{}, integration.ErrQueueItemNotClaimed
	}
	return *item.ClaimedAt, nil
}

// RetryDelay returns the backoff before the given attempt (1-based).
// The delay doubles per attempt up to RetryMaxDelay and is jittered into [d/2, d].
func (s *SyncQueueService) RetryDelay(attempt int) time.Duration {
	base := s.cfg.RetryBaseDelay
	if base <= 0 || attempt <= 0 {
		return 0
	}

	d := base
	for i := 1; i < attempt && d < s.cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	if d > s.cfg.RetryMaxDelay {
		d = s.cfg.RetryMaxDelay
	}

	half := d / 2
	return half + rand.N(d-half+1)
}

// AppendLog writes the audit entry of one attempt
func (s *SyncQueueService) AppendLog(ctx context.Context, entry *integration.SyncLogEntry) error {
	return s.logs.Append(ctx, entry)
}

// ---------------------------------------------------------------------------
// Maintenance
// ---------------------------------------------------------------------------

// ReapStale returns items stuck in PROCESSING to PENDING
func (s *SyncQueueService) ReapStale(ctx context.Context) (int64, error) {
	if s.cfg.ProcessingTimeout <= 0 {
		return 0, nil
	}
	n, err := s.queue.ResetStale(ctx, s.clock().Add(-s.cfg.ProcessingTimeout))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("reset stale sync items", zap.Int64("count", n))
	}
	return n, nil
}

// PurgeExpired deletes terminal items older than the retention window
func (s *SyncQueueService) PurgeExpired(ctx context.Context) (int64, error) {
	if s.cfg.Retention <= 0 {
		return 0, nil
	}
	n, err := s.queue.PurgeTerminal(ctx, s.clock().Add(-s.cfg.Retention))
	if err != nil {
		return 0, err
	}
	s.logger.Info("purged terminal sync items", zap.Int64("count", n))
	return n, nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// ListItems returns a page of queue items
func (s *SyncQueueService) ListItems(ctx context.Context, tenantID uuid.UUID, q ListQuery) (*PageResult[SyncQueueItemResponse], error) {
	marketplace, err := parseOptionalMarketplace(q.Marketplace)
	if err != nil {
		return nil, err
	}
	page, pageSize := normalizePage(q.Page, q.PageSize)

	items, total, err := s.queue.List(ctx, integration.SyncQueueFilter{
		TenantID:    tenantID,
		Marketplace: marketplace,
		ProductID:   q.ProductID,
		Status:      integration.SyncStatus(q.Status),
		Page:        page,
		PageSize:    pageSize,
	})
	if err != nil {
		return nil, err
	}

	out := make([]SyncQueueItemResponse, len(items))
	for i := range items {
		out[i] = ToSyncQueueItemResponse(&items[i])
	}
	return newPageResult(out, total, page, pageSize), nil
}

// Stats counts the tenant's queue items per status
func (s *SyncQueueService) Stats(ctx context.Context, tenantID uuid.UUID) (*QueueStatsResponse, error) {
	counts, err := s.queue.CountByStatus(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	stats := &QueueStatsResponse{
		Pending:    counts[integration.SyncStatusPending],
		Processing: counts[integration.SyncStatusProcessing],
		Success:    counts[integration.SyncStatusSuccess],
		Failed:     counts[integration.SyncStatusFailed],
	}
	stats.Total = stats.Pending + stats.Processing + stats.Success + stats.Failed
	return stats, nil
}

// ListLogs returns a page of sync log entries
func (s *SyncQueueService) ListLogs(ctx context.Context, tenantID uuid.UUID, q ListQuery) (*PageResult[SyncLogResponse], error) {
	marketplace, err := parseOptionalMarketplace(q.Marketplace)
	if err != nil {
		return nil, err
	}
	page, pageSize := normalizePage(q.Page, q.PageSize)

	entries, total, err := s.logs.List(ctx, integration.SyncLogFilter{
		TenantID:    tenantID,
		Marketplace: marketplace,
		ProductID:   q.ProductID,
		Status:      integration.SyncStatus(q.Status),
		Page:        page,
		PageSize:    pageSize,
	})
	if err != nil {
		return nil, err
	}

	out := make([]SyncLogResponse, len(entries))
	for i := range entries {
		out[i] = ToSyncLogResponse(&entries[i])
	}
	return newPageResult(out, total, page, pageSize), nil
}
