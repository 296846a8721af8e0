package integration

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPendingConnection(t *testing.T) {
	t.Run("Valid connection", func(t *testing.T) {
		tenantID := uuid.New()
		conn, err := NewPendingConnection(tenantID, MarketplaceMercadoLibre)
		require.NoError(t, err)
		assert.Equal(t, tenantID, conn.TenantID)
		assert.Equal(t, ConnectionStatusPending, conn.Status)
		assert.Nil(t, conn.TokenExpiresAt)
		assert.False(t, conn.IsUsable())
	})

	t.Run("Invalid tenant", func(t *testing.T) {
		_, err := NewPendingConnection(uuid.Nil, MarketplaceMercadoLibre)
		assert.ErrorIs(t, err, ErrInvalidTenantID)
	})

	t.Run("Invalid marketplace", func(t *testing.T) {
		_, err := NewPendingConnection(uuid.New(), MarketplaceCode("EBAY"))
		assert.ErrorIs(t, err, ErrInvalidMarketplace)
	})
}

func TestConnection_Lifecycle(t *testing.T) {
	conn, err := NewPendingConnection(uuid.New(), MarketplaceMercadoLibre)
	require.NoError(t, err)

	expires := time.Now().Add(6 * time.Hour)
	require.NoError(t, conn.MarkConnected("12345", "enc-access", "enc-refresh", expires))
	assert.Equal(t, ConnectionStatusConnected, conn.Status)
	assert.Equal(t, "12345", conn.ExternalUserID)
	assert.True(t, conn.IsUsable())

	t.Run("Refresh keeps refresh token when none returned", func(t *testing.T) {
		require.NoError(t, conn.UpdateTokens("enc-access-2", "", expires.Add(time.Hour)))
		assert.Equal(t, "enc-access-2", conn.AccessToken)
		assert.Equal(t, "enc-refresh", conn.RefreshToken)
	})

	t.Run("Error then reauthorize", func(t *testing.T) {
		conn.MarkError("invalid_grant")
		assert.Equal(t, ConnectionStatusError, conn.Status)
		assert.False(t, conn.IsUsable())

		err := conn.UpdateTokens("x", "y", expires)
		assert.ErrorIs(t, err, ErrInvalidConnectionTransition)

		conn.BeginAuthorization()
		assert.Equal(t, ConnectionStatusPending, conn.Status)
		assert.Empty(t, conn.ErrorMessage)
	})

	t.Run("Disconnect clears tokens and sticks", func(t *testing.T) {
		conn.Disconnect()
		assert.Equal(t, ConnectionStatusDisconnected, conn.Status)
		assert.Empty(t, conn.AccessToken)
		assert.Empty(t, conn.RefreshToken)

		conn.MarkError("late refresh failure")
		assert.Equal(t, ConnectionStatusDisconnected, conn.Status)
	})
}

func TestConnection_BeginAuthorizationKeepsConnected(t *testing.T) {
	conn, _ := NewPendingConnection(uuid.New(), MarketplaceMercadoLibre)
	require.NoError(t, conn.MarkConnected("1", "a", "r", time.Now().Add(time.Hour)))

	conn.BeginAuthorization()
	assert.Equal(t, ConnectionStatusConnected, conn.Status)
}

func TestConnection_MarkConnectedRequiresUser(t *testing.T) {
	conn, _ := NewPendingConnection(uuid.New(), MarketplaceMercadoLibre)
	err := conn.MarkConnected("", "a", "r", time.Now())
	assert.ErrorIs(t, err, ErrMissingExternalUserID)
}

func TestConnection_IsExpiring(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresIn *time.Duration
		threshold time.Duration
		expected  bool
	}{
		{"expires in 3m with 5m threshold", durPtr(3 * time.Minute), 5 * time.Minute, true},
		{"expires exactly at threshold", durPtr(5 * time.Minute), 5 * time.Minute, true},
		{"expires in 10m with 5m threshold", durPtr(10 * time.Minute), 5 * time.Minute, false},
		{"already expired", durPtr(-time.Minute), 0, true},
		{"no expiry recorded", nil, 5 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &Connection{Status: ConnectionStatusConnected}
			if tt.expiresIn != nil {
				exp := now.Add(*tt.expiresIn)
				conn.TokenExpiresAt = &exp
			}
			assert.Equal(t, tt.expected, conn.IsExpiring(now, tt.threshold))
		})
	}
}

func TestConnectionStatus_IsValid(t *testing.T) {
	assert.True(t, ConnectionStatusPending.IsValid())
	assert.True(t, ConnectionStatusDisconnected.IsValid())
	assert.False(t, ConnectionStatus("ACTIVE").IsValid())
}

func durPtr(d time.Duration) *time.Duration {
	return &d
}
