package persistence

import (
	"context"
	"errors"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormMarketplaceOrderRepository implements integration.MarketplaceOrderRepository using GORM
type GormMarketplaceOrderRepository struct {
	db *gorm.DB
}

// NewGormMarketplaceOrderRepository creates a new GormMarketplaceOrderRepository
func NewGormMarketplaceOrderRepository(db *gorm.DB) *GormMarketplaceOrderRepository {
	return &GormMarketplaceOrderRepository{db: db}
}

// FindByExternalID finds an imported order by its marketplace identifier
func (r *GormMarketplaceOrderRepository) FindByExternalID(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, externalOrderID string) (*integration.MarketplaceOrder, error) {
	var model models.MarketplaceOrderModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND marketplace = ? AND external_order_id = ?", tenantID, marketplace, externalOrderID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrMarketplaceOrderNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create inserts the import record. A second import of the same order fails
// with ErrMarketplaceOrderExists.
func (r *GormMarketplaceOrderRepository) Create(ctx context.Context, order *integration.MarketplaceOrder) error {
	if err := r.db.WithContext(ctx).Create(models.MarketplaceOrderModelFromDomain(order)).Error; err != nil {
		if isUniqueViolation(err) {
			return integration.ErrMarketplaceOrderExists
		}
		return err
	}
	return nil
}

// Update persists the mutable state of an import record
func (r *GormMarketplaceOrderRepository) Update(ctx context.Context, order *integration.MarketplaceOrder) error {
	result := r.db.WithContext(ctx).
		Model(&models.MarketplaceOrderModel{}).
		Where("id = ? AND tenant_id = ?", order.ID, order.TenantID).
		Updates(map[string]any{
			"internal_order_id": order.InternalOrderID,
			"status":            order.Status,
			"external_status":   order.ExternalStatus,
			"payment_status":    order.PaymentStatus,
			"shipping_status":   order.ShippingStatus,
			"total_amount":      order.TotalAmount,
			"currency":          order.Currency,
			"buyer_nickname":    order.BuyerNickname,
			"last_synced_at":    order.LastSyncedAt,
			"updated_at":        order.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrMarketplaceOrderNotFound
	}
	return nil
}

// Delete removes an import record that never materialized
func (r *GormMarketplaceOrderRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Delete(&models.MarketplaceOrderModel{}).Error
}

// List returns a page of imported orders, newest first, and the total match count
func (r *GormMarketplaceOrderRepository) List(ctx context.Context, filter integration.MarketplaceOrderFilter) ([]integration.MarketplaceOrder, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.MarketplaceOrderModel{}).Where("tenant_id = ?", filter.TenantID)
	if filter.Marketplace != "" {
		query = query.Where("marketplace = ?", filter.Marketplace)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orderModels []models.MarketplaceOrderModel
	if err := paginate(query, filter.Page, filter.PageSize).
		Order("created_at DESC").
		Find(&orderModels).Error; err != nil {
		return nil, 0, err
	}

	orders := make([]integration.MarketplaceOrder, len(orderModels))
	for i, model := range orderModels {
		orders[i] = *model.ToDomain()
	}
	return orders, total, nil
}

// Ensure GormMarketplaceOrderRepository implements MarketplaceOrderRepository
var _ integration.MarketplaceOrderRepository = (*GormMarketplaceOrderRepository)(nil)
