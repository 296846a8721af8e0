package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// enqueueSQL inserts a PENDING item unless an active item holds the key.
// The conflict target must match the uq_sync_queue_active partial index.
// A PENDING holder is promoted when the incoming priority is higher; in every
// other conflict case no row is returned.
const enqueueSQL = `INSERT INTO sync_queue_items
	(id, tenant_id, product_id, variant_id, marketplace, sync_type, priority, status,
	 retry_count, max_retries, last_error, next_attempt_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, 'PENDING', 0, ?, '', ?, ?, ?)
ON CONFLICT (tenant_id, product_id, COALESCE(variant_id, '00000000-0000-0000-0000-000000000000'::uuid), marketplace, sync_type)
	WHERE status IN ('PENDING', 'PROCESSING')
DO UPDATE SET priority = EXCLUDED.priority, updated_at = EXCLUDED.updated_at
	WHERE sync_queue_items.status = 'PENDING' AND sync_queue_items.priority < EXCLUDED.priority
RETURNING *, (xmax = 0) AS inserted`

// enqueueAttempts bounds the insert/read loop when the active holder
// completes between the conflicting insert and the re-read.
const enqueueAttempts = 3

type enqueueRow struct {
	models.SyncQueueItemModel `gorm:"embedded"`
	Inserted                  bool
}

// GormSyncQueueRepository implements integration.SyncQueueRepository on PostgreSQL
type GormSyncQueueRepository struct {
	db *gorm.DB
}

// NewGormSyncQueueRepository creates a new GormSyncQueueRepository
func NewGormSyncQueueRepository(db *gorm.DB) *GormSyncQueueRepository {
	return &GormSyncQueueRepository{db: db}
}

// Enqueue inserts the item or returns the active item already holding its key
func (r *GormSyncQueueRepository) Enqueue(ctx context.Context, item *integration.SyncQueueItem) (*integration.SyncQueueItem, bool, error) {
	if item.MaxRetries <= 0 {
		item.MaxRetries = integration.DefaultMaxRetries
	}

	for range enqueueAttempts {
		var rows []enqueueRow
		err := r.db.WithContext(ctx).Raw(enqueueSQL,
			item.ID, item.TenantID, item.ProductID, item.VariantID, item.Marketplace, item.SyncType,
			item.Priority, item.MaxRetries, item.NextAttemptAt, item.CreatedAt, item.UpdatedAt,
		).Scan(&rows).Error
		if err != nil {
			return nil, false, fmt.Errorf("enqueue sync item: %w", err)
		}
		if len(rows) == 1 {
			return rows[0].ToDomain(), rows[0].Inserted, nil
		}

		existing, err := r.findActive(ctx, item.Key())
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, integration.ErrQueueItemNotFound) {
			return nil, false, err
		}
	}
	return nil, false, fmt.Errorf("enqueue sync item %s: active item kept changing", item.Key())
}

// ClaimBatch moves up to limit due PENDING items to PROCESSING.
// Rows locked by a concurrent claimer are skipped, so no item is handed out twice.
func (r *GormSyncQueueRepository) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]integration.SyncQueueItem, error) {
	if limit <= 0 {
		return nil, integration.ErrInvalidClaimBatchCap
	}

	// claimed_at is the claim token; keep it at the precision postgres stores
	now = now.Truncate(time.Microsecond)

	var claimed []models.SyncQueueItemModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND next_attempt_at <= ?", integration.SyncStatusPending, now).
			Order("priority DESC, created_at ASC").
			Limit(limit).
			Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(claimed))
		for i := range claimed {
			ids[i] = claimed[i].ID
		}
		return tx.Model(&models.SyncQueueItemModel{}).
			Where("id IN ? AND status = ?", ids, integration.SyncStatusPending).
			Updates(map[string]any{
				"status":     integration.SyncStatusProcessing,
				"claimed_at": now,
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("claim sync batch: %w", err)
	}

	items := make([]integration.SyncQueueItem, len(claimed))
	for i := range claimed {
		item := claimed[i].ToDomain()
		item.Status = integration.SyncStatusProcessing
		item.ClaimedAt = &now
		item.UpdatedAt = now
		items[i] = *item
	}
	return items, nil
}

// SaveOutcome persists the transition of a claimed item.
// It fails with ErrQueueItemNotClaimed if the row is no longer PROCESSING
// under the claim taken at claimedAt.
func (r *GormSyncQueueRepository) SaveOutcome(ctx context.Context, item *integration.SyncQueueItem, claimedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.SyncQueueItemModel{}).
		Where("id = ? AND status = ? AND claimed_at = ?", item.ID, integration.SyncStatusProcessing, claimedAt).
		Updates(map[string]any{
			"status":          item.Status,
			"retry_count":     item.RetryCount,
			"last_error":      item.LastError,
			"next_attempt_at": item.NextAttemptAt,
			"claimed_at":      item.ClaimedAt,
			"processed_at":    item.ProcessedAt,
			"updated_at":      item.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrQueueItemNotClaimed
	}
	return nil
}

// ResetStale returns items PROCESSING since before claimedBefore to PENDING
func (r *GormSyncQueueRepository) ResetStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.SyncQueueItemModel{}).
		Where("status = ? AND claimed_at < ?", integration.SyncStatusProcessing, claimedBefore).
		Updates(map[string]any{
			"status":          integration.SyncStatusPending,
			"claimed_at":      nil,
			"next_attempt_at": now,
			"updated_at":      now,
		})
	return result.RowsAffected, result.Error
}

// PurgeTerminal deletes SUCCESS and FAILED items processed before the cutoff
func (r *GormSyncQueueRepository) PurgeTerminal(ctx context.Context, processedBefore time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND processed_at < ?",
			[]integration.SyncStatus{integration.SyncStatusSuccess, integration.SyncStatusFailed}, processedBefore).
		Delete(&models.SyncQueueItemModel{})
	return result.RowsAffected, result.Error
}

// FindByID finds a queue item within a tenant
func (r *GormSyncQueueRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*integration.SyncQueueItem, error) {
	var model models.SyncQueueItemModel
	if err := r.db.WithContext(ctx).First(&model, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrQueueItemNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns a page of queue items and the total match count
func (r *GormSyncQueueRepository) List(ctx context.Context, filter integration.SyncQueueFilter) ([]integration.SyncQueueItem, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncQueueItemModel{}).Where("tenant_id = ?", filter.TenantID)
	if filter.Marketplace != "" {
		query = query.Where("marketplace = ?", filter.Marketplace)
	}
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.SyncType != "" {
		query = query.Where("sync_type = ?", filter.SyncType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var itemModels []models.SyncQueueItemModel
	if err := paginate(query, filter.Page, filter.PageSize).
		Order("created_at DESC").
		Find(&itemModels).Error; err != nil {
		return nil, 0, err
	}

	items := make([]integration.SyncQueueItem, len(itemModels))
	for i, model := range itemModels {
		items[i] = *model.ToDomain()
	}
	return items, total, nil
}

// CountByStatus returns the number of a tenant's items per status
func (r *GormSyncQueueRepository) CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[integration.SyncStatus]int64, error) {
	var rows []struct {
		Status integration.SyncStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.SyncQueueItemModel{}).
		Select("status, COUNT(*) AS count").
		Where("tenant_id = ?", tenantID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[integration.SyncStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *GormSyncQueueRepository) findActive(ctx context.Context, key integration.SyncKey) (*integration.SyncQueueItem, error) {
	var model models.SyncQueueItemModel
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ? AND marketplace = ? AND sync_type = ? AND status IN ?",
			key.TenantID, key.ProductID, key.Marketplace, key.SyncType, integration.ActiveSyncStatuses())
	if err := whereVariant(query, key.VariantID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrQueueItemNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Ensure GormSyncQueueRepository implements SyncQueueRepository
var _ integration.SyncQueueRepository = (*GormSyncQueueRepository)(nil)
