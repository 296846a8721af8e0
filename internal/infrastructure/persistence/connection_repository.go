package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormConnectionRepository implements integration.ConnectionRepository using GORM
type GormConnectionRepository struct {
	db *gorm.DB
}

// NewGormConnectionRepository creates a new GormConnectionRepository
func NewGormConnectionRepository(db *gorm.DB) *GormConnectionRepository {
	return &GormConnectionRepository{db: db}
}

// FindByTenantAndMarketplace finds the single connection a tenant holds for a marketplace
func (r *GormConnectionRepository) FindByTenantAndMarketplace(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) (*integration.Connection, error) {
	var model models.ConnectionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND marketplace = ?", tenantID, marketplace).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrConnectionNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByExternalUserID finds the connection owning a marketplace seller account
func (r *GormConnectionRepository) FindByExternalUserID(ctx context.Context, marketplace integration.MarketplaceCode, externalUserID string) (*integration.Connection, error) {
	var model models.ConnectionModel
	if err := r.db.WithContext(ctx).
		Where("marketplace = ? AND external_user_id = ? AND status <> ?", marketplace, externalUserID, integration.ConnectionStatusDisconnected).
		Order("updated_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrConnectionNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindExpiring returns CONNECTED connections whose token expires before now + threshold
func (r *GormConnectionRepository) FindExpiring(ctx context.Context, now time.Time, threshold time.Duration) ([]integration.Connection, error) {
	var connModels []models.ConnectionModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND token_expires_at IS NOT NULL AND token_expires_at <= ?", integration.ConnectionStatusConnected, now.Add(threshold)).
		Order("token_expires_at ASC").
		Find(&connModels).Error; err != nil {
		return nil, err
	}
	return toConnections(connModels), nil
}

// FindConnected returns all CONNECTED connections
func (r *GormConnectionRepository) FindConnected(ctx context.Context) ([]integration.Connection, error) {
	var connModels []models.ConnectionModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", integration.ConnectionStatusConnected).
		Order("tenant_id ASC, marketplace ASC").
		Find(&connModels).Error; err != nil {
		return nil, err
	}
	return toConnections(connModels), nil
}

// FindConnectedByTenant returns the CONNECTED connections of a tenant
func (r *GormConnectionRepository) FindConnectedByTenant(ctx context.Context, tenantID uuid.UUID) ([]integration.Connection, error) {
	var connModels []models.ConnectionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, integration.ConnectionStatusConnected).
		Order("marketplace ASC").
		Find(&connModels).Error; err != nil {
		return nil, err
	}
	return toConnections(connModels), nil
}

// Save inserts or fully updates a connection
func (r *GormConnectionRepository) Save(ctx context.Context, conn *integration.Connection) error {
	model := models.ConnectionModelFromDomain(conn)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return err
	}
	conn.CreatedAt = model.CreatedAt
	conn.UpdatedAt = model.UpdatedAt
	return nil
}

// SaveTokens writes refreshed tokens only while the connection is not DISCONNECTED
func (r *GormConnectionRepository) SaveTokens(ctx context.Context, conn *integration.Connection) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.ConnectionModel{}).
		Where("id = ? AND status <> ?", conn.ID, integration.ConnectionStatusDisconnected).
		Updates(map[string]any{
			"access_token":     conn.AccessToken,
			"refresh_token":    conn.RefreshToken,
			"token_expires_at": conn.TokenExpiresAt,
			"updated_at":       now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: connection %s was disconnected", integration.ErrConnectionNotUsable, conn.ID)
	}
	conn.UpdatedAt = now
	return nil
}

// TouchLastSync records a successful sync without rewriting tokens
func (r *GormConnectionRepository) TouchLastSync(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ConnectionModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_sync_at": at,
			"updated_at":   time.Now(),
		}).Error
}

// SetError moves a non-disconnected connection to ERROR without rewriting tokens.
// A disconnected connection is left untouched.
func (r *GormConnectionRepository) SetError(ctx context.Context, id uuid.UUID, message string) error {
	result := r.db.WithContext(ctx).
		Model(&models.ConnectionModel{}).
		Where("id = ? AND status <> ?", id, integration.ConnectionStatusDisconnected).
		Updates(map[string]any{
			"status":        integration.ConnectionStatusError,
			"error_message": message,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.ConnectionModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return integration.ErrConnectionNotFound
		}
	}
	return nil
}

func toConnections(connModels []models.ConnectionModel) []integration.Connection {
	conns := make([]integration.Connection, len(connModels))
	for i, model := range connModels {
		conns[i] = *model.ToDomain()
	}
	return conns
}

// Ensure GormConnectionRepository implements ConnectionRepository
var _ integration.ConnectionRepository = (*GormConnectionRepository)(nil)
