package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Connection Status
// ---------------------------------------------------------------------------

// ConnectionStatus is the lifecycle state of a marketplace connection
type ConnectionStatus string

const (
	ConnectionStatusPending      ConnectionStatus = "PENDING"
	ConnectionStatusConnected    ConnectionStatus = "CONNECTED"
	ConnectionStatusError        ConnectionStatus = "ERROR"
	ConnectionStatusDisconnected ConnectionStatus = "DISCONNECTED"
)

// IsValid checks if the status is valid
func (s ConnectionStatus) IsValid() bool {
	switch s {
	case ConnectionStatusPending, ConnectionStatusConnected, ConnectionStatusError, ConnectionStatusDisconnected:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (s ConnectionStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Connection Entity
// ---------------------------------------------------------------------------

// Connection is the OAuth2 authorization of one tenant on one marketplace.
// AccessToken and RefreshToken hold ciphertext; only the connection service
// decrypts them.
type Connection struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	Marketplace    MarketplaceCode
	ExternalUserID string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
	Status         ConnectionStatus
	LastSyncAt     *time.Time
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewPendingConnection creates a connection at the start of an OAuth redirect
func NewPendingConnection(tenantID uuid.UUID, marketplace MarketplaceCode) (*Connection, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidTenantID
	}
	if !marketplace.IsValid() {
		return nil, ErrInvalidMarketplace
	}

	now := time.Now()
	return &Connection{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Marketplace: marketplace,
		Status:      ConnectionStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// BeginAuthorization moves a broken or disconnected connection back to PENDING.
// A CONNECTED connection keeps syncing until the new tokens arrive.
func (c *Connection) BeginAuthorization() {
	if c.Status == ConnectionStatusConnected {
		return
	}
	c.Status = ConnectionStatusPending
	c.ErrorMessage = ""
	c.UpdatedAt = time.Now()
}

// MarkConnected stores freshly exchanged (encrypted) tokens
func (c *Connection) MarkConnected(externalUserID, accessToken, refreshToken string, expiresAt time.Time) error {
	if externalUserID == "" {
		externalUserID = c.ExternalUserID
	}
	if externalUserID == "" {
		return ErrMissingExternalUserID
	}

	c.ExternalUserID = externalUserID
	c.AccessToken = accessToken
	c.RefreshToken = refreshToken
	c.TokenExpiresAt = &expiresAt
	c.Status = ConnectionStatusConnected
	c.ErrorMessage = ""
	c.UpdatedAt = time.Now()
	return nil
}

// UpdateTokens stores refreshed (encrypted) tokens.
// An empty refresh token keeps the previous one.
func (c *Connection) UpdateTokens(accessToken, refreshToken string, expiresAt time.Time) error {
	if c.Status != ConnectionStatusConnected {
		return ErrInvalidConnectionTransition
	}
	c.AccessToken = accessToken
	if refreshToken != "" {
		c.RefreshToken = refreshToken
	}
	c.TokenExpiresAt = &expiresAt
	c.UpdatedAt = time.Now()
	return nil
}

// MarkError records a failed refresh or a rejected token.
// A DISCONNECTED connection stays disconnected.
func (c *Connection) MarkError(message string) {
	if c.Status == ConnectionStatusDisconnected {
		return
	}
	c.Status = ConnectionStatusError
	c.ErrorMessage = message
	c.UpdatedAt = time.Now()
}

// Disconnect is the explicit user action that revokes the connection
func (c *Connection) Disconnect() {
	c.Status = ConnectionStatusDisconnected
	c.AccessToken = ""
	c.RefreshToken = ""
	c.TokenExpiresAt = nil
	c.ErrorMessage = ""
	c.UpdatedAt = time.Now()
}

// IsExpiring reports whether now + threshold >= tokenExpiresAt.
// A connection without an expiry is always expiring.
func (c *Connection) IsExpiring(now time.Time, threshold time.Duration) bool {
	if c.TokenExpiresAt == nil {
		return true
	}
	return !now.Add(threshold).Before(*c.TokenExpiresAt)
}

// IsUsable reports whether sync work may run against the connection
func (c *Connection) IsUsable() bool {
	return c.Status == ConnectionStatusConnected
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// ConnectionRepository persists marketplace connections.
// At most one connection exists per (tenant, marketplace).
type ConnectionRepository interface {
	FindByTenantAndMarketplace(ctx context.Context, tenantID uuid.UUID, marketplace MarketplaceCode) (*Connection, error)
	FindByExternalUserID(ctx context.Context, marketplace MarketplaceCode, externalUserID string) (*Connection, error)
	// FindExpiring returns CONNECTED connections whose token expires before now + threshold
	FindExpiring(ctx context.Context, now time.Time, threshold time.Duration) ([]Connection, error)
	// FindConnected returns all CONNECTED connections
	FindConnected(ctx context.Context) ([]Connection, error)
	// FindConnectedByTenant returns the CONNECTED connections of a tenant
	FindConnectedByTenant(ctx context.Context, tenantID uuid.UUID) ([]Connection, error)
	Save(ctx context.Context, conn *Connection) error
	// SaveTokens stores refreshed tokens unless the connection was disconnected
	// meanwhile, in which case it returns ErrConnectionNotUsable
	SaveTokens(ctx context.Context, conn *Connection) error
	// TouchLastSync records a successful sync without rewriting tokens
	TouchLastSync(ctx context.Context, id uuid.UUID, at time.Time) error
	// SetError moves a non-disconnected connection to ERROR without rewriting tokens
	SetError(ctx context.Context, id uuid.UUID, message string) error
}
