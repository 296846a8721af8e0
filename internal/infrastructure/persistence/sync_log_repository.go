package persistence

import (
	"context"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSyncLogRepository implements the append-only integration.SyncLogRepository
type GormSyncLogRepository struct {
	db *gorm.DB
}

// NewGormSyncLogRepository creates a new GormSyncLogRepository
func NewGormSyncLogRepository(db *gorm.DB) *GormSyncLogRepository {
	return &GormSyncLogRepository{db: db}
}

// Append stores one attempt record
func (r *GormSyncLogRepository) Append(ctx context.Context, entry *integration.SyncLogEntry) error {
	return r.db.WithContext(ctx).Create(models.SyncLogModelFromDomain(entry)).Error
}

// List returns a page of log entries, newest first, and the total match count
func (r *GormSyncLogRepository) List(ctx context.Context, filter integration.SyncLogFilter) ([]integration.SyncLogEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncLogModel{}).Where("tenant_id = ?", filter.TenantID)
	if filter.Marketplace != "" {
		query = query.Where("marketplace = ?", filter.Marketplace)
	}
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.QueueItemID != nil {
		query = query.Where("queue_item_id = ?", *filter.QueueItemID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Since != nil {
		query = query.Where("synced_at >= ?", *filter.Since)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logModels []models.SyncLogModel
	if err := paginate(query, filter.Page, filter.PageSize).
		Order("synced_at DESC").
		Find(&logModels).Error; err != nil {
		return nil, 0, err
	}

	entries := make([]integration.SyncLogEntry, len(logModels))
	for i, model := range logModels {
		entries[i] = *model.ToDomain()
	}
	return entries, total, nil
}

// Ensure GormSyncLogRepository implements SyncLogRepository
var _ integration.SyncLogRepository = (*GormSyncLogRepository)(nil)
