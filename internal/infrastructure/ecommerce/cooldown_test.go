package ecommerce

import (
	"bytes"
	"context"
	"image"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/marketsync/internal/domain/integration"
)

func TestLocalCooldownStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	store := NewLocalCooldownStore()
	store.now = func() time.Time { return now }

	remaining, err := store.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, remaining)

	require.NoError(t, store.Extend(ctx, "k", 10*time.Second))
	remaining, err = store.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, remaining)

	// a shorter window never shortens the current one
	require.NoError(t, store.Extend(ctx, "k", 2*time.Second))
	remaining, _ = store.Remaining(ctx, "k")
	assert.Equal(t, 10*time.Second, remaining)

	now = now.Add(11 * time.Second)
	remaining, _ = store.Remaining(ctx, "k")
	assert.Zero(t, remaining)
}

func TestCooldownKey(t *testing.T) {
	ctx := context.Background()

	t.Run("token digest without an account", func(t *testing.T) {
		key := cooldownKey(ctx, "APP_USR-secret-token")
		assert.Len(t, key, len("tok:")+24)
		assert.NotContains(t, key, "secret")
		assert.Equal(t, key, cooldownKey(ctx, "APP_USR-secret-token"))
		assert.NotEqual(t, key, cooldownKey(ctx, "APP_USR-other-token"))
	})

	t.Run("account key survives token refresh", func(t *testing.T) {
		tenantID := uuid.New()
		scoped := integration.WithAccount(ctx, tenantID, integration.MarketplaceMercadoLibre)
		before := cooldownKey(scoped, "APP_USR-old-token")
		assert.Equal(t, before, cooldownKey(scoped, "APP_USR-refreshed-token"))
		assert.Contains(t, before, tenantID.String())

		other := integration.WithAccount(ctx, uuid.New(), integration.MarketplaceMercadoLibre)
		assert.NotEqual(t, before, cooldownKey(other, "APP_USR-old-token"))
	})
}

func TestNormalizePicture(t *testing.T) {
	t.Run("downscales the longest side", func(t *testing.T) {
		out, err := NormalizePicture(testPNG(t, 100, 400), 80)
		require.NoError(t, err)

		img, err := decodeTestImage(out)
		require.NoError(t, err)
		assert.Equal(t, 20, img.Bounds().Dx())
		assert.Equal(t, 80, img.Bounds().Dy())
	})

	t.Run("keeps small images", func(t *testing.T) {
		out, err := NormalizePicture(testPNG(t, 30, 20), 80)
		require.NoError(t, err)

		img, err := decodeTestImage(out)
		require.NoError(t, err)
		assert.Equal(t, 30, img.Bounds().Dx())
		assert.Equal(t, 20, img.Bounds().Dy())
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := NormalizePicture([]byte{0x00, 0x01}, 80)
		assert.ErrorIs(t, err, ErrInvalidPicture)
	})
}

func TestRegistry(t *testing.T) {
	adapter, err := NewMercadoLibreAdapter(&MercadoLibreConfig{ClientID: "app", ClientSecret: "secret"})
	require.NoError(t, err)

	registry := NewRegistry(adapter)

	got, err := registry.Get(integration.MarketplaceMercadoLibre)
	require.NoError(t, err)
	assert.Same(t, adapter, got)
	assert.Equal(t, []integration.MarketplaceCode{integration.MarketplaceMercadoLibre}, registry.Codes())

	_, err = registry.Get("AMAZON")
	assert.ErrorIs(t, err, integration.ErrAdapterNotFound)
}

func decodeTestImage(data []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(data))
}
