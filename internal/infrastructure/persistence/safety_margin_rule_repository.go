package persistence

import (
	"context"
	"errors"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormSafetyMarginRuleRepository implements integration.SafetyMarginRuleRepository using GORM
type GormSafetyMarginRuleRepository struct {
	db *gorm.DB
}

// NewGormSafetyMarginRuleRepository creates a new GormSafetyMarginRuleRepository
func NewGormSafetyMarginRuleRepository(db *gorm.DB) *GormSafetyMarginRuleRepository {
	return &GormSafetyMarginRuleRepository{db: db}
}

// FindByID finds a rule by ID within a tenant
func (r *GormSafetyMarginRuleRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*integration.SafetyMarginRule, error) {
	var model models.SafetyMarginRuleModel
	if err := r.db.WithContext(ctx).First(&model, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrRuleNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindProductRule returns the product-scoped rule, or nil
func (r *GormSafetyMarginRuleRepository) FindProductRule(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, productID uuid.UUID) (*integration.SafetyMarginRule, error) {
	return findRule(r.scoped(ctx, tenantID, marketplace, integration.RulePriorityProduct).
		Where("product_id = ?", productID))
}

// FindCategoryRule returns the category-scoped rule, or nil
func (r *GormSafetyMarginRuleRepository) FindCategoryRule(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, categoryID uuid.UUID) (*integration.SafetyMarginRule, error) {
	return findRule(r.scoped(ctx, tenantID, marketplace, integration.RulePriorityCategory).
		Where("category_id = ?", categoryID))
}

// FindGlobalRule returns the marketplace-wide rule, or nil
func (r *GormSafetyMarginRuleRepository) FindGlobalRule(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) (*integration.SafetyMarginRule, error) {
	return findRule(r.scoped(ctx, tenantID, marketplace, integration.RulePriorityGlobal))
}

// List returns the tenant's rules, most specific first.
// An empty marketplace lists every marketplace.
func (r *GormSafetyMarginRuleRepository) List(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) ([]integration.SafetyMarginRule, error) {
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if marketplace != "" {
		query = query.Where("marketplace = ?", marketplace)
	}

	var ruleModels []models.SafetyMarginRuleModel
	if err := query.Order("marketplace ASC, priority ASC, created_at ASC").Find(&ruleModels).Error; err != nil {
		return nil, err
	}

	rules := make([]integration.SafetyMarginRule, len(ruleModels))
	for i, model := range ruleModels {
		rules[i] = *model.ToDomain()
	}
	return rules, nil
}

// Save inserts or updates a rule. A second rule for the same scope fails with ErrRuleAlreadyExists.
func (r *GormSafetyMarginRuleRepository) Save(ctx context.Context, rule *integration.SafetyMarginRule) error {
	model := models.SafetyMarginRuleModelFromDomain(rule)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		if isUniqueViolation(err) {
			return integration.ErrRuleAlreadyExists
		}
		return err
	}
	return nil
}

// Delete removes a rule
func (r *GormSafetyMarginRuleRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Delete(&models.SafetyMarginRuleModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrRuleNotFound
	}
	return nil
}

func (r *GormSafetyMarginRuleRepository) scoped(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, priority integration.RulePriority) *gorm.DB {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND marketplace = ? AND priority = ?", tenantID, marketplace, priority)
}

func findRule(query *gorm.DB) (*integration.SafetyMarginRule, error) {
	var model models.SafetyMarginRuleModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Ensure GormSafetyMarginRuleRepository implements SafetyMarginRuleRepository
var _ integration.SafetyMarginRuleRepository = (*GormSafetyMarginRuleRepository)(nil)
