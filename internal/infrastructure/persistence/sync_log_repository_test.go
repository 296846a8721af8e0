package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormSyncLogRepository_AppendAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSyncLogRepository(newSQLiteDB(t))
	tenantID, productID := uuid.New(), uuid.New()

	item, err := integration.NewSyncQueueItem(integration.SyncKey{
		TenantID:    tenantID,
		ProductID:   productID,
		Marketplace: integration.MarketplaceMercadoLibre,
		SyncType:    integration.SyncTypeStock,
	}, integration.SyncPriorityNormal)
	require.NoError(t, err)

	start := time.Now().Add(-time.Hour)
	require.NoError(t, repo.Append(ctx, integration.NewSyncLogEntry(item, integration.SyncStatusError, "5", "", "timeout", start)))
	require.NoError(t, repo.Append(ctx, integration.NewSyncLogEntry(item, integration.SyncStatusSuccess, "5", "3", "", start.Add(30*time.Minute))))

	other := *item
	other.ProductID = uuid.New()
	require.NoError(t, repo.Append(ctx, integration.NewSyncLogEntry(&other, integration.SyncStatusSuccess, "", "1", "", start)))

	entries, total, err := repo.List(ctx, integration.SyncLogFilter{TenantID: tenantID, ProductID: &productID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, entries, 2)
	assert.Equal(t, integration.SyncStatusSuccess, entries[0].Status, "newest first")
	assert.Equal(t, "timeout", entries[1].ErrorMessage)

	itemID := item.ID
	since := start.Add(10 * time.Minute)
	recent, total, err := repo.List(ctx, integration.SyncLogFilter{TenantID: tenantID, QueueItemID: &itemID, Since: &since})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, recent, 1)
	assert.Equal(t, "3", recent[0].NewValue)

	errored, _, err := repo.List(ctx, integration.SyncLogFilter{TenantID: tenantID, Status: integration.SyncStatusError, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, errored, 1)
}
