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

func newConnectedConnection(t *testing.T, tenantID uuid.UUID, sellerID string, expiresIn time.Duration) *integration.Connection {
	t.Helper()
	conn, err := integration.NewPendingConnection(tenantID, integration.MarketplaceMercadoLibre)
	require.NoError(t, err)
	require.NoError(t, conn.MarkConnected(sellerID, "enc-access", "enc-refresh", time.Now().Add(expiresIn)))
	return conn
}

func TestGormConnectionRepository_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewGormConnectionRepository(newSQLiteDB(t))
	tenantID := uuid.New()

	conn := newConnectedConnection(t, tenantID, "1001", time.Hour)
	require.NoError(t, repo.Save(ctx, conn))

	found, err := repo.FindByTenantAndMarketplace(ctx, tenantID, integration.MarketplaceMercadoLibre)
	require.NoError(t, err)
	assert.Equal(t, conn.ID, found.ID)
	assert.Equal(t, integration.ConnectionStatusConnected, found.Status)
	assert.Equal(t, "enc-refresh", found.RefreshToken)

	bySeller, err := repo.FindByExternalUserID(ctx, integration.MarketplaceMercadoLibre, "1001")
	require.NoError(t, err)
	assert.Equal(t, tenantID, bySeller.TenantID)

	// Save again updates in place
	found.MarkError("invalid_grant")
	require.NoError(t, repo.Save(ctx, found))
	reloaded, err := repo.FindByTenantAndMarketplace(ctx, tenantID, integration.MarketplaceMercadoLibre)
	require.NoError(t, err)
	assert.Equal(t, integration.ConnectionStatusError, reloaded.Status)
	assert.Equal(t, "invalid_grant", reloaded.ErrorMessage)

	_, err = repo.FindByTenantAndMarketplace(ctx, uuid.New(), integration.MarketplaceMercadoLibre)
	assert.ErrorIs(t, err, integration.ErrConnectionNotFound)
	_, err = repo.FindByExternalUserID(ctx, integration.MarketplaceMercadoLibre, "404")
	assert.ErrorIs(t, err, integration.ErrConnectionNotFound)
}

func TestGormConnectionRepository_ConnectedQueries(t *testing.T) {
	ctx := context.Background()
	repo := NewGormConnectionRepository(newSQLiteDB(t))

	expiring := newConnectedConnection(t, uuid.New(), "1", 2*time.Minute)
	fresh := newConnectedConnection(t, uuid.New(), "2", 6*time.Hour)
	broken := newConnectedConnection(t, uuid.New(), "3", time.Minute)
	broken.MarkError("revoked")
	for _, c := range []*integration.Connection{expiring, fresh, broken} {
		require.NoError(t, repo.Save(ctx, c))
	}

	due, err := repo.FindExpiring(ctx, time.Now(), 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, expiring.ID, due[0].ID)

	connected, err := repo.FindConnected(ctx)
	require.NoError(t, err)
	assert.Len(t, connected, 2)

	byTenant, err := repo.FindConnectedByTenant(ctx, broken.TenantID)
	require.NoError(t, err)
	assert.Empty(t, byTenant)
}

func TestGormConnectionRepository_TargetedUpdates(t *testing.T) {
	ctx := context.Background()
	repo := NewGormConnectionRepository(newSQLiteDB(t))
	tenantID := uuid.New()

	conn := newConnectedConnection(t, tenantID, "77", time.Hour)
	require.NoError(t, repo.Save(ctx, conn))

	syncedAt := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	require.NoError(t, repo.TouchLastSync(ctx, conn.ID, syncedAt))
	require.NoError(t, repo.SetError(ctx, conn.ID, "401 from marketplace"))

	found, err := repo.FindByTenantAndMarketplace(ctx, tenantID, integration.MarketplaceMercadoLibre)
	require.NoError(t, err)
	require.NotNil(t, found.LastSyncAt)
	assert.True(t, syncedAt.Equal(found.LastSyncAt.UTC()))
	assert.Equal(t, integration.ConnectionStatusError, found.Status)
	assert.Equal(t, "enc-access", found.AccessToken, "tokens are not rewritten")

	t.Run("disconnected connection stays disconnected", func(t *testing.T) {
		found.Disconnect()
		require.NoError(t, repo.Save(ctx, found))
		require.NoError(t, repo.SetError(ctx, found.ID, "late failure"))

		reloaded, err := repo.FindByTenantAndMarketplace(ctx, tenantID, integration.MarketplaceMercadoLibre)
		require.NoError(t, err)
		assert.Equal(t, integration.ConnectionStatusDisconnected, reloaded.Status)
	})

	t.Run("unknown id", func(t *testing.T) {
		assert.ErrorIs(t, repo.SetError(ctx, uuid.New(), "x"), integration.ErrConnectionNotFound)
	})
}

func TestGormConnectionRepository_SaveTokens(t *testing.T) {
	ctx := context.Background()
	repo := NewGormConnectionRepository(newSQLiteDB(t))
	tenantID := uuid.New()

	conn := newConnectedConnection(t, tenantID, "88", time.Minute)
	require.NoError(t, repo.Save(ctx, conn))

	t.Run("stores refreshed tokens", func(t *testing.T) {
		require.NoError(t, conn.UpdateTokens("enc-access-2", "enc-refresh-2", time.Now().Add(6*time.Hour)))
		require.NoError(t, repo.SaveTokens(ctx, conn))

		found, err := repo.FindByTenantAndMarketplace(ctx, tenantID, integration.MarketplaceMercadoLibre)
		require.NoError(t, err)
		assert.Equal(t, "enc-access-2", found.AccessToken)
		assert.Equal(t, "enc-refresh-2", found.RefreshToken)
		assert.False(t, found.IsExpiring(time.Now(), 5*time.Minute))
	})

	t.Run("disconnect while refreshing wins", func(t *testing.T) {
		stale, err := repo.FindByTenantAndMarketplace(ctx, tenantID, integration.MarketplaceMercadoLibre)
		require.NoError(t, err)

		current, err := repo.FindByTenantAndMarketplace(ctx, tenantID, integration.MarketplaceMercadoLibre)
		require.NoError(t, err)
		current.Disconnect()
		require.NoError(t, repo.Save(ctx, current))

		require.NoError(t, stale.UpdateTokens("enc-access-3", "enc-refresh-3", time.Now().Add(6*time.Hour)))
		assert.ErrorIs(t, repo.SaveTokens(ctx, stale), integration.ErrConnectionNotUsable)

		reloaded, err := repo.FindByTenantAndMarketplace(ctx, tenantID, integration.MarketplaceMercadoLibre)
		require.NoError(t, err)
		assert.Equal(t, integration.ConnectionStatusDisconnected, reloaded.Status)
		assert.Empty(t, reloaded.AccessToken)
		assert.Empty(t, reloaded.RefreshToken)
	})
}
