package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var ml = integration.MarketplaceMercadoLibre

func newConnectionService(repo *MockConnectionRepository, adapter *MockAdapter, signer *MockStateSigner) *ConnectionService {
	return NewConnectionService(repo, staticRegistry{adapter: adapter}, prefixCipher{}, signer, 5*time.Minute, zap.NewNop())
}

func connectedConn(tenantID uuid.UUID, expiresIn time.Duration) *integration.Connection {
	exp := time.Now().Add(expiresIn)
	return &integration.Connection{
		ID:             uuid.New(),
		TenantID:       tenantID,
		Marketplace:    ml,
		ExternalUserID: "12345",
		AccessToken:    "enc:access-old",
		RefreshToken:   "enc:refresh-old",
		TokenExpiresAt: &exp,
		Status:         integration.ConnectionStatusConnected,
	}
}

func TestConnectionService_BeginAuthorization(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("Creates pending connection", func(t *testing.T) {
		repo := new(MockConnectionRepository)
		adapter := new(MockAdapter)
		signer := new(MockStateSigner)
		svc := newConnectionService(repo, adapter, signer)

		repo.On("FindByTenantAndMarketplace", ctx, tenantID, ml).Return(nil, integration.ErrConnectionNotFound)
		repo.On("Save", ctx, mock.MatchedBy(func(c *integration.Connection) bool {
			return c.Status == integration.ConnectionStatusPending && c.TenantID == tenantID
		})).Return(nil)
		signer.On("Sign", OAuthState{TenantID: tenantID, Marketplace: ml, RedirectURI: "https://app/cb"}).Return("signed-state", nil)
		adapter.On("AuthorizeURL", "signed-state", "https://app/cb").Return("https://auth.example/authorization?state=signed-state")

		url, err := svc.BeginAuthorization(ctx, tenantID, ml, "https://app/cb")
		require.NoError(t, err)
		assert.Contains(t, url, "signed-state")
		repo.AssertExpectations(t)
	})

	t.Run("Keeps connected connection usable", func(t *testing.T) {
		repo := new(MockConnectionRepository)
		adapter := new(MockAdapter)
		signer := new(MockStateSigner)
		svc := newConnectionService(repo, adapter, signer)

		conn := connectedConn(tenantID, time.Hour)
		repo.On("FindByTenantAndMarketplace", ctx, tenantID, ml).Return(conn, nil)
		repo.On("Save", ctx, conn).Return(nil)
		signer.On("Sign", mock.Anything).Return("s", nil)
		adapter.On("AuthorizeURL", "s", "https://app/cb").Return("u")

		_, err := svc.BeginAuthorization(ctx, tenantID, ml, "https://app/cb")
		require.NoError(t, err)
		assert.Equal(t, integration.ConnectionStatusConnected, conn.Status)
	})
}

func TestConnectionService_CompleteAuthorization(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	state := &OAuthState{TenantID: tenantID, Marketplace: ml, RedirectURI: "https://app/cb"}
	tokens := &integration.TokenSet{
		AccessToken:    "access",
		RefreshToken:   "refresh",
		ExpiresAt:      time.Now().Add(6 * time.Hour),
		ExternalUserID: "777",
	}

	t.Run("Stores encrypted tokens", func(t *testing.T) {
		repo := new(MockConnectionRepository)
		adapter := new(MockAdapter)
		signer := new(MockStateSigner)
		svc := newConnectionService(repo, adapter, signer)

		pending, _ := integration.NewPendingConnection(tenantID, ml)
		signer.On("Verify", "state").Return(state, nil)
		adapter.On("ExchangeCode", ctx, "code", "https://app/cb").Return(tokens, nil)
		repo.On("FindByExternalUserID", ctx, ml, "777").Return(nil, integration.ErrConnectionNotFound)
		repo.On("FindByTenantAndMarketplace", ctx, tenantID, ml).Return(pending, nil)
		repo.On("Save", ctx, pending).Return(nil)

		conn, err := svc.CompleteAuthorization(ctx, "state", "code")
		require.NoError(t, err)
		assert.Equal(t, integration.ConnectionStatusConnected, conn.Status)
		assert.Equal(t, "enc:access", conn.AccessToken)
		assert.Equal(t, "enc:refresh", conn.RefreshToken)
		assert.Equal(t, "777", conn.ExternalUserID)
	})

	t.Run("Rejects invalid state", func(t *testing.T) {
		signer := new(MockStateSigner)
		svc := newConnectionService(new(MockConnectionRepository), new(MockAdapter), signer)
		signer.On("Verify", "forged").Return(nil, errors.New("signature is invalid"))

		_, err := svc.CompleteAuthorization(ctx, "forged", "code")
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_STATE", domainErr.Code)
	})

	t.Run("Rejects account owned by another tenant", func(t *testing.T) {
		repo := new(MockConnectionRepository)
		adapter := new(MockAdapter)
		signer := new(MockStateSigner)
		svc := newConnectionService(repo, adapter, signer)

		signer.On("Verify", "state").Return(state, nil)
		adapter.On("ExchangeCode", ctx, "code", "https://app/cb").Return(tokens, nil)
		repo.On("FindByExternalUserID", ctx, ml, "777").Return(connectedConn(uuid.New(), time.Hour), nil)

		_, err := svc.CompleteAuthorization(ctx, "state", "code")
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "ACCOUNT_IN_USE", domainErr.Code)
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

func TestConnectionService_GetValidToken(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("Returns stored token when fresh", func(t *testing.T) {
		repo := new(MockConnectionRepository)
		adapter := new(MockAdapter)
		svc := newConnectionService(repo, adapter, new(MockStateSigner))

		repo.On("FindByTenantAndMarketplace", ctx, tenantID, ml).Return(connectedConn(tenantID, time.Hour), nil)

		token, err := svc.GetValidToken(ctx, tenantID, ml)
		require.NoError(t, err)
		assert.Equal(t, "access-old", token)
		adapter.AssertNotCalled(t, "RefreshToken", mock.Anything, mock.Anything)
	})

	t.Run("Refreshes inside threshold", func(t *testing.T) {
		repo := new(MockConnectionRepository)
		adapter := new(MockAdapter)
		svc := newConnectionService(repo, adapter, new(MockStateSigner))

		conn := connectedConn(tenantID, 2*time.Minute)
		repo.On("FindByTenantAndMarketplace", ctx, tenantID, ml).Return(conn, nil)
		adapter.On("RefreshToken", ctx, "refresh-old").Return(&integration.TokenSet{
			AccessToken:  "access-new",
			RefreshToken: "refresh-new",
			ExpiresAt:    time.Now().Add(6 * time.Hour),
		}, nil).Once()
		repo.On("SaveTokens", ctx, conn).Return(nil)

		token, err := svc.GetValidToken(ctx, tenantID, ml)
		require.NoError(t, err)
		assert.Equal(t, "access-new", token)
		assert.Equal(t, "enc:refresh-new", conn.RefreshToken)
		assert.False(t, conn.IsExpiring(time.Now(), 5*time.Minute))
	})

	t.Run("Not usable when disconnected", func(t *testing.T) {
		repo := new(MockConnectionRepository)
		svc := newConnectionService(repo, new(MockAdapter), new(MockStateSigner))

		conn := connectedConn(tenantID, time.Hour)
		conn.Disconnect()
		repo.On("FindByTenantAndMarketplace", ctx, tenantID, ml).Return(conn, nil)

		_, err := svc.GetValidToken(ctx, tenantID, ml)
		assert.ErrorIs(t, err, integration.ErrConnectionNotUsable)
	})

	t.Run("Rejected refresh moves connection to error", func(t *testing.T) {
		repo := new(MockConnectionRepository)
		adapter := new(MockAdapter)
		svc := newConnectionService(repo, adapter, new(MockStateSigner))

		conn := connectedConn(tenantID, time.Minute)
		repo.On("FindByTenantAndMarketplace", ctx, tenantID, ml).Return(conn, nil)
		adapter.On("RefreshToken", ctx, "refresh-old").
			Return(nil, integration.NewMarketplaceError(http.StatusBadRequest, "invalid_grant", "refresh token revoked"))
		repo.On("SetError", ctx, conn.ID, mock.MatchedBy(func(msg string) bool {
			return strings.Contains(msg, "refresh token revoked")
		})).Return(nil)

		_, err := svc.GetValidToken(ctx, tenantID, ml)
		require.Error(t, err)
		assert.Equal(t, integration.ConnectionStatusError, conn.Status)
		assert.Contains(t, conn.ErrorMessage, "refresh token revoked")
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		repo.AssertExpectations(t)
	})

	t.Run("Transient refresh failure moves connection to error", func(t *testing.T) {
		repo := new(MockConnectionRepository)
		adapter := new(MockAdapter)
		svc := newConnectionService(repo, adapter, new(MockStateSigner))

		conn := connectedConn(tenantID, time.Minute)
		repo.On("FindByTenantAndMarketplace", ctx, tenantID, ml).Return(conn, nil)
		adapter.On("RefreshToken", ctx, "refresh-old").
			Return(nil, integration.NewMarketplaceError(http.StatusServiceUnavailable, "", "unavailable"))
		repo.On("SetError", ctx, conn.ID, mock.AnythingOfType("string")).Return(nil)

		_, err := svc.GetValidToken(ctx, tenantID, ml)
		require.Error(t, err)
		assert.Equal(t, integration.ConnectionStatusError, conn.Status)
		assert.Contains(t, conn.ErrorMessage, "unavailable")
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		repo.AssertExpectations(t)
	})

	t.Run("Disconnect during refresh discards new tokens", func(t *testing.T) {
		repo := new(MockConnectionRepository)
		adapter := new(MockAdapter)
		svc := newConnectionService(repo, adapter, new(MockStateSigner))

		conn := connectedConn(tenantID, time.Minute)
		repo.On("FindByTenantAndMarketplace", ctx, tenantID, ml).Return(conn, nil)
		adapter.On("RefreshToken", ctx, "refresh-old").Return(&integration.TokenSet{
			AccessToken: "access-new",
			ExpiresAt:   time.Now().Add(6 * time.Hour),
		}, nil)
		repo.On("SaveTokens", ctx, conn).Return(fmt.Errorf("%w: disconnected", integration.ErrConnectionNotUsable))

		token, err := svc.GetValidToken(ctx, tenantID, ml)
		assert.ErrorIs(t, err, integration.ErrConnectionNotUsable)
		assert.Empty(t, token)
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "SetError", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestConnectionService_ConcurrentRefreshIsCoalesced(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	repo := new(MockConnectionRepository)
	adapter := new(MockAdapter)
	svc := newConnectionService(repo, adapter, new(MockStateSigner))

	var mu sync.Mutex
	conn := connectedConn(tenantID, time.Minute)
	repo.On("FindByTenantAndMarketplace", ctx, tenantID, ml).Return(func() *integration.Connection {
		mu.Lock()
		defer mu.Unlock()
		cp := *conn
		return &cp
	}, nil)
	repo.On("SaveTokens", ctx, mock.Anything).Run(func(args mock.Arguments) {
		mu.Lock()
		defer mu.Unlock()
		*conn = *args.Get(1).(*integration.Connection)
	}).Return(nil)

	var grants atomic.Int32
	adapter.On("RefreshToken", ctx, "refresh-old").Run(func(mock.Arguments) {
		grants.Add(1)
		time.Sleep(20 * time.Millisecond)
	}).Return(&integration.TokenSet{AccessToken: "access-new", ExpiresAt: time.Now().Add(6 * time.Hour)}, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := svc.GetValidToken(ctx, tenantID, ml)
			assert.NoError(t, err)
			assert.Equal(t, "access-new", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), grants.Load())
}

func TestConnectionService_RefreshExpiring(t *testing.T) {
	ctx := context.Background()
	repo := new(MockConnectionRepository)
	adapter := new(MockAdapter)
	svc := newConnectionService(repo, adapter, new(MockStateSigner))

	ok := connectedConn(uuid.New(), time.Minute)
	ok.RefreshToken = "enc:refresh-ok"
	bad := connectedConn(uuid.New(), time.Minute)
	bad.RefreshToken = "enc:refresh-bad"

	repo.On("FindExpiring", ctx, mock.Anything, 5*time.Minute).Return([]integration.Connection{*ok, *bad}, nil)
	repo.On("FindByTenantAndMarketplace", ctx, ok.TenantID, ml).Return(ok, nil)
	repo.On("FindByTenantAndMarketplace", ctx, bad.TenantID, ml).Return(bad, nil)
	repo.On("SaveTokens", ctx, mock.Anything).Return(nil)
	repo.On("SetError", ctx, bad.ID, mock.AnythingOfType("string")).Return(nil)
	adapter.On("RefreshToken", ctx, "refresh-ok").Return(&integration.TokenSet{AccessToken: "a", ExpiresAt: time.Now().Add(time.Hour)}, nil)
	adapter.On("RefreshToken", ctx, "refresh-bad").Return(nil, integration.NewMarketplaceError(http.StatusUnauthorized, "", "revoked"))

	res, err := svc.RefreshExpiring(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, RefreshResult{Scanned: 2, Refreshed: 1, Failed: 1}, res)
	assert.Equal(t, integration.ConnectionStatusError, bad.Status)
}

func TestConnectionService_MarkAuthFailure(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	repo := new(MockConnectionRepository)
	svc := newConnectionService(repo, new(MockAdapter), new(MockStateSigner))

	conn := connectedConn(tenantID, time.Hour)
	repo.On("FindByTenantAndMarketplace", ctx, tenantID, ml).Return(conn, nil)
	repo.On("SetError", ctx, conn.ID, "401 invalid_token").Return(nil)

	require.NoError(t, svc.MarkAuthFailure(ctx, tenantID, ml, "401 invalid_token"))
	repo.AssertExpectations(t)
}

func TestConnectionService_RefreshConnection(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("Refreshes fresh token on demand", func(t *testing.T) {
		repo := new(MockConnectionRepository)
		adapter := new(MockAdapter)
		svc := newConnectionService(repo, adapter, new(MockStateSigner))

		conn := connectedConn(tenantID, 6*time.Hour)
		repo.On("FindByTenantAndMarketplace", ctx, tenantID, ml).Return(conn, nil)
		adapter.On("RefreshToken", ctx, "refresh-old").Return(&integration.TokenSet{
			AccessToken:  "access-new",
			RefreshToken: "refresh-new",
			ExpiresAt:    time.Now().Add(6 * time.Hour),
		}, nil).Once()
		repo.On("SaveTokens", ctx, conn).Return(nil).Once()

		refreshed, err := svc.RefreshConnection(ctx, tenantID, ml)
		require.NoError(t, err)
		assert.Equal(t, "enc:access-new", refreshed.AccessToken)
		assert.Equal(t, "enc:refresh-new", refreshed.RefreshToken)
		adapter.AssertExpectations(t)
		repo.AssertExpectations(t)
	})

	t.Run("Refuses connection in error", func(t *testing.T) {
		repo := new(MockConnectionRepository)
		adapter := new(MockAdapter)
		svc := newConnectionService(repo, adapter, new(MockStateSigner))

		conn := connectedConn(tenantID, time.Hour)
		conn.MarkError("revoked")
		repo.On("FindByTenantAndMarketplace", ctx, tenantID, ml).Return(conn, nil)

		_, err := svc.RefreshConnection(ctx, tenantID, ml)
		assert.ErrorIs(t, err, integration.ErrConnectionNotUsable)
		adapter.AssertNotCalled(t, "RefreshToken", mock.Anything, mock.Anything)
	})
}
