package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SyncLogEntry is the immutable record of one reconciliation attempt
type SyncLogEntry struct {
	ID           uuid.UUID
	QueueItemID  *uuid.UUID
	TenantID     uuid.UUID
	ProductID    uuid.UUID
	VariantID    *uuid.UUID
	Marketplace  MarketplaceCode
	SyncType     SyncType
	OldValue     string
	NewValue     string
	Status       SyncStatus
	ErrorMessage string
	RetryCount   int
	SyncedAt     time.Time
}

// NewSyncLogEntry records the attempt of a queue item after its outcome is applied
func NewSyncLogEntry(item *SyncQueueItem, status SyncStatus, oldValue, newValue, errMsg string, now time.Time) *SyncLogEntry {
	itemID := item.ID
	return &SyncLogEntry{
		ID:           uuid.New(),
		QueueItemID:  &itemID,
		TenantID:     item.TenantID,
		ProductID:    item.ProductID,
		VariantID:    item.VariantID,
		Marketplace:  item.Marketplace,
		SyncType:     item.SyncType,
		OldValue:     oldValue,
		NewValue:     newValue,
		Status:       status,
		ErrorMessage: truncateError(errMsg),
		RetryCount:   item.RetryCount,
		SyncedAt:     now,
	}
}

// SyncLogFilter filters log queries
type SyncLogFilter struct {
	TenantID    uuid.UUID
	Marketplace MarketplaceCode
	ProductID   *uuid.UUID
	QueueItemID *uuid.UUID
	Status      SyncStatus
	Since       *time.Time
	Page        int
	PageSize    int
}

// SyncLogRepository is the append-only audit trail
type SyncLogRepository interface {
	Append(ctx context.Context, entry *SyncLogEntry) error
	List(ctx context.Context, filter SyncLogFilter) ([]SyncLogEntry, int64, error)
}
