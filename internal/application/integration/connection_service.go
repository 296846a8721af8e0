package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshThreshold is how long before expiry a token is refreshed
const DefaultRefreshThreshold = 5 * time.Minute

// OAuthState is the payload carried through the marketplace consent redirect
type OAuthState struct {
	TenantID    uuid.UUID
	Marketplace integration.MarketplaceCode
	RedirectURI string
}

// StateSigner issues and verifies tamper-proof OAuth state tokens
type StateSigner interface {
	Sign(state OAuthState) (string, error)
	Verify(token string) (*OAuthState, error)
}

// RefreshResult summarizes one background refresh scan
type RefreshResult struct {
	Scanned   int
	Refreshed int
	Failed    int
}

// ConnectionService owns the OAuth connection lifecycle and is the only
// component that sees plaintext tokens.
type ConnectionService struct {
	repo      integration.ConnectionRepository
	adapters  integration.AdapterRegistry
	cipher    integration.TokenCipher
	states    StateSigner
	threshold time.Duration
	refreshes singleflight.Group
	metrics   MetricsRecorder
	logger    *zap.Logger
	clock     func() time.Time
}

// NewConnectionService creates a new ConnectionService
func NewConnectionService(
	repo integration.ConnectionRepository,
	adapters integration.AdapterRegistry,
	cipher integration.TokenCipher,
	states StateSigner,
	refreshThreshold time.Duration,
	logger *zap.Logger,
) *ConnectionService {
	if refreshThreshold <= 0 {
		refreshThreshold = DefaultRefreshThreshold
	}
	return &ConnectionService{
		repo:      repo,
		adapters:  adapters,
		cipher:    cipher,
		states:    states,
		threshold: refreshThreshold,
		metrics:   noopMetrics{},
		logger:    logger,
		clock:     time.Now,
	}
}

// UseMetrics attaches a metrics recorder
func (s *ConnectionService) UseMetrics(m MetricsRecorder) {
	s.metrics = metricsOrNoop(m)
}

// ---------------------------------------------------------------------------
// Authorization
// ---------------------------------------------------------------------------

// BeginAuthorization records a PENDING connection and returns the consent URL
func (s *ConnectionService) BeginAuthorization(
	ctx context.Context,
	tenantID uuid.UUID,
	marketplace integration.MarketplaceCode,
	redirectURI string,
) (string, error) {
	adapter, err := s.adapters.Get(marketplace)
	if err != nil {
		return "", err
	}

	conn, err := s.repo.FindByTenantAndMarketplace(ctx, tenantID, marketplace)
	switch {
	case errors.Is(err, integration.ErrConnectionNotFound):
		conn, err = integration.NewPendingConnection(tenantID, marketplace)
		if err != nil {
			return "", err
		}
	case err != nil:
		return "", err
	default:
		conn.BeginAuthorization()
	}

	if err := s.repo.Save(ctx, conn); err != nil {
		return "", err
	}

	state, err := s.states.Sign(OAuthState{TenantID: tenantID, Marketplace: marketplace, RedirectURI: redirectURI})
	if err != nil {
		return "", fmt.Errorf("sign oauth state: %w", err)
	}

	s.logger.Info("marketplace authorization started",
		zap.String("tenant_id", tenantID.String()),
		zap.String("marketplace", marketplace.String()),
	)
	return adapter.AuthorizeURL(state, redirectURI), nil
}

// CompleteAuthorization handles the OAuth callback: it exchanges the code and
// stores the encrypted tokens on a CONNECTED connection.
func (s *ConnectionService) CompleteAuthorization(ctx context.Context, stateToken, code string) (*integration.Connection, error) {
	if code == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "authorization code is required")
	}
	state, err := s.states.Verify(stateToken)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_STATE", "authorization state is invalid or expired")
	}

	adapter, err := s.adapters.Get(state.Marketplace)
	if err != nil {
		return nil, err
	}

	tokens, err := adapter.ExchangeCode(ctx, code, state.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	owner, err := s.repo.FindByExternalUserID(ctx, state.Marketplace, tokens.ExternalUserID)
	if err != nil && !errors.Is(err, integration.ErrConnectionNotFound) {
		return nil, err
	}
	if owner != nil && owner.TenantID != state.TenantID && owner.Status != integration.ConnectionStatusDisconnected {
		return nil, shared.NewDomainError("ACCOUNT_IN_USE", "marketplace account is already connected to another tenant")
	}

	conn, err := s.repo.FindByTenantAndMarketplace(ctx, state.TenantID, state.Marketplace)
	if errors.Is(err, integration.ErrConnectionNotFound) {
		conn, err = integration.NewPendingConnection(state.TenantID, state.Marketplace)
	}
	if err != nil {
		return nil, err
	}

	access, refresh, err := s.encryptTokens(tokens)
	if err != nil {
		return nil, err
	}
	if err := conn.MarkConnected(tokens.ExternalUserID, access, refresh, tokens.ExpiresAt); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, conn); err != nil {
		return nil, err
	}

	s.logger.Info("marketplace connected",
		zap.String("tenant_id", conn.TenantID.String()),
		zap.String("marketplace", conn.Marketplace.String()),
		zap.String("external_user_id", conn.ExternalUserID),
		zap.Time("token_expires_at", tokens.ExpiresAt),
	)
	return conn, nil
}

// Disconnect revokes the connection on explicit user request
func (s *ConnectionService) Disconnect(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) error {
	conn, err := s.repo.FindByTenantAndMarketplace(ctx, tenantID, marketplace)
	if err != nil {
		return err
	}
	conn.Disconnect()
	return s.repo.Save(ctx, conn)
}

// GetConnection returns the tenant's connection for a marketplace
func (s *ConnectionService) GetConnection(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) (*integration.Connection, error) {
	return s.repo.FindByTenantAndMarketplace(ctx, tenantID, marketplace)
}

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

// GetValidToken returns a plaintext access token valid beyond the refresh
// threshold, refreshing inline when the stored token is about to expire.
func (s *ConnectionService) GetValidToken(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) (string, error) {
	conn, err := s.repo.FindByTenantAndMarketplace(ctx, tenantID, marketplace)
	if err != nil {
		if errors.Is(err, integration.ErrConnectionNotFound) {
			return "", fmt.Errorf("%w: no connection", integration.ErrConnectionNotUsable)
		}
		return "", err
	}
	if !conn.IsUsable() {
		return "", fmt.Errorf("%w: status %s", integration.ErrConnectionNotUsable, conn.Status)
	}
	if !conn.IsExpiring(s.clock(), s.threshold) {
		return s.cipher.Decrypt(conn.AccessToken)
	}
	return s.refreshCoalesced(ctx, conn)
}

// RefreshConnection runs the refresh-token grant for one connection now,
// regardless of how long its current token is still valid
func (s *ConnectionService) RefreshConnection(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) (*integration.Connection, error) {
	conn, err := s.repo.FindByTenantAndMarketplace(ctx, tenantID, marketplace)
	if err != nil {
		return nil, err
	}
	if !conn.IsUsable() {
		return nil, fmt.Errorf("%w: status %s", integration.ErrConnectionNotUsable, conn.Status)
	}
	if _, err, _ := s.refreshes.Do(conn.ID.String(), func() (any, error) {
		return s.refresh(ctx, conn)
	}); err != nil {
		return nil, err
	}
	return s.repo.FindByTenantAndMarketplace(ctx, tenantID, marketplace)
}

// RefreshExpiring refreshes every CONNECTED connection whose token expires
// within threshold. Failures are counted, not returned.
func (s *ConnectionService) RefreshExpiring(ctx context.Context, threshold time.Duration) (RefreshResult, error) {
	if threshold <= 0 {
		threshold = s.threshold
	}
	conns, err := s.repo.FindExpiring(ctx, s.clock(), threshold)
	if err != nil {
		return RefreshResult{}, err
	}

	result := RefreshResult{Scanned: len(conns)}
	for i := range conns {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if _, err := s.refreshCoalesced(ctx, &conns[i]); err != nil {
			result.Failed++
			continue
		}
		result.Refreshed++
	}
	return result, nil
}

// MarkAuthFailure moves a connection to ERROR after the marketplace rejected its token
func (s *ConnectionService) MarkAuthFailure(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, reason string) error {
	conn, err := s.repo.FindByTenantAndMarketplace(ctx, tenantID, marketplace)
	if err != nil {
		return err
	}
	s.logger.Warn("marketplace rejected connection credentials",
		zap.String("tenant_id", tenantID.String()),
		zap.String("marketplace", marketplace.String()),
		zap.String("reason", reason),
	)
	return s.repo.SetError(ctx, conn.ID, reason)
}

// RecordSync stamps the connection's last successful sync time
func (s *ConnectionService) RecordSync(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) error {
	conn, err := s.repo.FindByTenantAndMarketplace(ctx, tenantID, marketplace)
	if err != nil {
		return err
	}
	return s.repo.TouchLastSync(ctx, conn.ID, s.clock())
}

// refreshCoalesced collapses concurrent refreshes of one connection into a
// single refresh-token grant.
func (s *ConnectionService) refreshCoalesced(ctx context.Context, conn *integration.Connection) (string, error) {
	v, err, _ := s.refreshes.Do(conn.ID.String(), func() (any, error) {
		current, err := s.repo.FindByTenantAndMarketplace(ctx, conn.TenantID, conn.Marketplace)
		if err != nil {
			return "", err
		}
		if !current.IsUsable() {
			return "", fmt.Errorf("%w: status %s", integration.ErrConnectionNotUsable, current.Status)
		}
		if !current.IsExpiring(s.clock(), s.threshold) {
			return s.cipher.Decrypt(current.AccessToken)
		}
		return s.refresh(ctx, current)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// refresh runs the refresh-token grant and persists the new tokens.
// Any failed grant moves the connection to ERROR. A connection disconnected
// while the grant was in flight stays DISCONNECTED.
func (s *ConnectionService) refresh(ctx context.Context, conn *integration.Connection) (string, error) {
	log := s.logger.With(
		zap.String("tenant_id", conn.TenantID.String()),
		zap.String("marketplace", conn.Marketplace.String()),
	)

	fail := func(cause error) (string, error) {
		message := fmt.Sprintf("token refresh failed: %v", cause)
		conn.MarkError(message)
		if err := s.repo.SetError(ctx, conn.ID, message); err != nil {
			log.Error("failed to persist connection error", zap.Error(err))
		}
		log.Warn("token refresh failed", zap.Error(cause))
		s.metrics.RecordTokenRefresh(ctx, conn.Marketplace.String(), false)
		return "", cause
	}

	if conn.RefreshToken == "" {
		return fail(integration.ErrMissingRefreshToken)
	}
	refreshToken, err := s.cipher.Decrypt(conn.RefreshToken)
	if err != nil {
		return fail(fmt.Errorf("decrypt refresh token: %w", err))
	}

	adapter, err := s.adapters.Get(conn.Marketplace)
	if err != nil {
		return fail(err)
	}
	tokens, err := adapter.RefreshToken(ctx, refreshToken)
	if err != nil {
		return fail(err)
	}

	access, refresh, err := s.encryptTokens(tokens)
	if err != nil {
		return "", err
	}
	if err := conn.UpdateTokens(access, refresh, tokens.ExpiresAt); err != nil {
		return "", err
	}
	if err := s.repo.SaveTokens(ctx, conn); err != nil {
		if errors.Is(err, integration.ErrConnectionNotUsable) {
			log.Info("connection disconnected during token refresh, discarding tokens")
		}
		s.metrics.RecordTokenRefresh(ctx, conn.Marketplace.String(), false)
		return "", err
	}

	log.Info("token refreshed", zap.Time("token_expires_at", tokens.ExpiresAt))
	s.metrics.RecordTokenRefresh(ctx, conn.Marketplace.String(), true)
	return tokens.AccessToken, nil
}

func (s *ConnectionService) encryptTokens(tokens *integration.TokenSet) (string, string, error) {
	access, err := s.cipher.Encrypt(tokens.AccessToken)
	if err != nil {
		return "", "", fmt.Errorf("encrypt access token: %w", err)
	}
	var refresh string
	if tokens.RefreshToken != "" {
		refresh, err = s.cipher.Encrypt(tokens.RefreshToken)
		if err != nil {
			return "", "", fmt.Errorf("encrypt refresh token: %w", err)
		}
	}
	return access, refresh, nil
}
