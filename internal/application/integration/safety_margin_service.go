package integration

import (
	"context"
	"errors"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ResyncRequester enqueues reconciliation work for a set of products
type ResyncRequester interface {
	EnqueueProducts(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, productIDs []uuid.UUID, syncType integration.SyncType, priority integration.SyncPriority) (int, error)
}

// SafetyMarginService manages safety margin rules and resolves the
// effective margin of a product.
type SafetyMarginService struct {
	repo     integration.SafetyMarginRuleRepository
	resolver *integration.MarginResolver
	products integration.ProductScope
	resync   ResyncRequester
	logger   *zap.Logger
}

// NewSafetyMarginService creates a new SafetyMarginService.
// products and resync may be nil, in which case rule changes trigger no resync.
func NewSafetyMarginService(
	repo integration.SafetyMarginRuleRepository,
	products integration.ProductScope,
	resync ResyncRequester,
	logger *zap.Logger,
) *SafetyMarginService {
	return &SafetyMarginService{
		repo:     repo,
		resolver: integration.NewRuleCascade(repo),
		products: products,
		resync:   resync,
		logger:   logger,
	}
}

// Resolve returns the effective margin percentage for a product on a marketplace
func (s *SafetyMarginService) Resolve(
	ctx context.Context,
	tenantID uuid.UUID,
	marketplace integration.MarketplaceCode,
	productID uuid.UUID,
	categoryID *uuid.UUID,
) (int, error) {
	res, err := s.resolver.Resolve(ctx, integration.MarginLookup{
		TenantID:    tenantID,
		Marketplace: marketplace,
		ProductID:   productID,
		CategoryID:  categoryID,
	})
	if err != nil {
		return 0, err
	}
	return res.Percentage, nil
}

// CreateRule creates a rule for a scope that has none yet
func (s *SafetyMarginService) CreateRule(ctx context.Context, tenantID uuid.UUID, req CreateRuleRequest) (*RuleResponse, error) {
	marketplace, err := integration.ParseMarketplaceCode(req.Marketplace)
	if err != nil {
		return nil, err
	}
	scope := integration.RuleScope{ProductID: req.ProductID, CategoryID: req.CategoryID}

	rule, err := integration.NewSafetyMarginRule(tenantID, marketplace, scope, req.MarginPercentage)
	if err != nil {
		return nil, err
	}

	existing, err := s.findScopeRule(ctx, tenantID, marketplace, scope)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, integration.ErrRuleAlreadyExists
	}

	if err := s.repo.Save(ctx, rule); err != nil {
		return nil, err
	}

	s.logger.Info("safety margin rule created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("rule_id", rule.ID.String()),
		zap.String("scope", rule.Priority.String()),
		zap.Int("margin_percentage", rule.MarginPercentage),
	)
	s.resyncScope(ctx, rule)
	return ToRuleResponse(rule), nil
}

// UpdateRule changes the margin of an existing rule
func (s *SafetyMarginService) UpdateRule(ctx context.Context, tenantID, ruleID uuid.UUID, req UpdateRuleRequest) (*RuleResponse, error) {
	rule, err := s.repo.FindByID(ctx, tenantID, ruleID)
	if err != nil {
		return nil, err
	}
	if err := rule.UpdateMargin(req.MarginPercentage); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, rule); err != nil {
		return nil, err
	}

	s.resyncScope(ctx, rule)
	return ToRuleResponse(rule), nil
}

// DeleteRule removes a rule; affected products fall back to the next scope
func (s *SafetyMarginService) DeleteRule(ctx context.Context, tenantID, ruleID uuid.UUID) error {
	rule, err := s.repo.FindByID(ctx, tenantID, ruleID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, tenantID, ruleID); err != nil {
		return err
	}

	s.resyncScope(ctx, rule)
	return nil
}

// GetRule returns a rule by ID
func (s *SafetyMarginService) GetRule(ctx context.Context, tenantID, ruleID uuid.UUID) (*RuleResponse, error) {
	rule, err := s.repo.FindByID(ctx, tenantID, ruleID)
	if err != nil {
		return nil, err
	}
	return ToRuleResponse(rule), nil
}

// ListRules returns the rules of a tenant ordered by priority
func (s *SafetyMarginService) ListRules(ctx context.Context, tenantID uuid.UUID, marketplace string) ([]RuleResponse, error) {
	code, err := parseOptionalMarketplace(marketplace)
	if err != nil {
		return nil, err
	}

	rules, err := s.repo.List(ctx, tenantID, code)
	if err != nil {
		return nil, err
	}
	out := make([]RuleResponse, len(rules))
	for i := range rules {
		out[i] = *ToRuleResponse(&rules[i])
	}
	return out, nil
}

func (s *SafetyMarginService) findScopeRule(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, scope integration.RuleScope) (*integration.SafetyMarginRule, error) {
	switch scope.Priority() {
	case integration.RulePriorityProduct:
		return s.repo.FindProductRule(ctx, tenantID, marketplace, *scope.ProductID)
	case integration.RulePriorityCategory:
		return s.repo.FindCategoryRule(ctx, tenantID, marketplace, *scope.CategoryID)
	default:
		return s.repo.FindGlobalRule(ctx, tenantID, marketplace)
	}
}

// resyncScope re-publishes stock for the products a rule covers.
// A failed resync is logged; the rule change itself stands.
func (s *SafetyMarginService) resyncScope(ctx context.Context, rule *integration.SafetyMarginRule) {
	if s.resync == nil {
		return
	}

	var productIDs []uuid.UUID
	switch {
	case rule.ProductID != nil:
		productIDs = []uuid.UUID{*rule.ProductID}
	case s.products == nil:
		return
	default:
		ids, err := s.products.ListProductIDs(ctx, rule.TenantID, rule.CategoryID)
		if err != nil {
			s.logger.Warn("failed to list products for rule resync",
				zap.String("rule_id", rule.ID.String()),
				zap.Error(err),
			)
			return
		}
		productIDs = ids
	}

	n, err := s.resync.EnqueueProducts(ctx, rule.TenantID, rule.Marketplace, productIDs, integration.SyncTypeStock, integration.SyncPriorityNormal)
	if err != nil && !errors.Is(err, integration.ErrConnectionNotUsable) {
		s.logger.Warn("rule resync failed",
			zap.String("rule_id", rule.ID.String()),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("rule resync enqueued",
		zap.String("rule_id", rule.ID.String()),
		zap.Int("enqueued", n),
	)
}
