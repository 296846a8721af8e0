package persistence

import (
	"context"
	"errors"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormListingRepository implements integration.ListingRepository using GORM
type GormListingRepository struct {
	db *gorm.DB
}

// NewGormListingRepository creates a new GormListingRepository
func NewGormListingRepository(db *gorm.DB) *GormListingRepository {
	return &GormListingRepository{db: db}
}

// FindByKey finds the listing of a product or variant on a marketplace
func (r *GormListingRepository) FindByKey(ctx context.Context, tenantID, productID uuid.UUID, variantID *uuid.UUID, marketplace integration.MarketplaceCode) (*integration.Listing, error) {
	var model models.ListingModel
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ? AND marketplace = ?", tenantID, productID, marketplace)
	if err := whereVariant(query, variantID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrListingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByExternalID finds a listing by its marketplace identifier
func (r *GormListingRepository) FindByExternalID(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, externalListingID string) (*integration.Listing, error) {
	var model models.ListingModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND marketplace = ? AND external_listing_id = ?", tenantID, marketplace, externalListingID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrListingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns a page of listings and the total match count
func (r *GormListingRepository) List(ctx context.Context, filter integration.ListingFilter) ([]integration.Listing, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.ListingModel{}).Where("tenant_id = ?", filter.TenantID)
	if filter.Marketplace != "" {
		query = query.Where("marketplace = ?", filter.Marketplace)
	}
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var listingModels []models.ListingModel
	if err := paginate(query, filter.Page, filter.PageSize).
		Order("updated_at DESC").
		Find(&listingModels).Error; err != nil {
		return nil, 0, err
	}

	listings := make([]integration.Listing, len(listingModels))
	for i, model := range listingModels {
		listings[i] = *model.ToDomain()
	}
	return listings, total, nil
}

// Create inserts a listing. A taken key fails with ErrListingAlreadyExists.
func (r *GormListingRepository) Create(ctx context.Context, listing *integration.Listing) error {
	model := models.ListingModelFromDomain(listing)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return integration.ErrListingAlreadyExists
		}
		return err
	}
	return nil
}

// Update persists the cached quantity, price and status of a listing
func (r *GormListingRepository) Update(ctx context.Context, listing *integration.Listing) error {
	result := r.db.WithContext(ctx).
		Model(&models.ListingModel{}).
		Where("id = ? AND tenant_id = ?", listing.ID, listing.TenantID).
		Updates(map[string]any{
			"status":         listing.Status,
			"quantity":       listing.Quantity,
			"price":          listing.Price,
			"permalink":      listing.Permalink,
			"last_synced_at": listing.LastSyncedAt,
			"error_message":  listing.ErrorMessage,
			"updated_at":     listing.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrListingNotFound
	}
	return nil
}

// Ensure GormListingRepository implements ListingRepository
var _ integration.ListingRepository = (*GormListingRepository)(nil)
