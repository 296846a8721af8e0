package logger

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Field names shared by every component that logs sync work
const (
	FieldTenantID    = "tenant_id"
	FieldMarketplace = "marketplace"
	FieldQueueItemID = "queue_item_id"
	FieldProductID   = "product_id"
	FieldSyncType    = "sync_type"
)

// TenantID returns the tenant_id field
func TenantID(id uuid.UUID) zap.Field {
	return zap.String(FieldTenantID, id.String())
}

// Marketplace returns the marketplace field
func Marketplace(code fmt.Stringer) zap.Field {
	return zap.Stringer(FieldMarketplace, code)
}

// QueueItemID returns the queue_item_id field
func QueueItemID(id uuid.UUID) zap.Field {
	return zap.String(FieldQueueItemID, id.String())
}

// ProductID returns the product_id field
func ProductID(id uuid.UUID) zap.Field {
	return zap.String(FieldProductID, id.String())
}

// SyncType returns the sync_type field
func SyncType(syncType fmt.Stringer) zap.Field {
	return zap.Stringer(FieldSyncType, syncType)
}
