package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultMarginPercentage applies when no rule matches: all sellable stock is exposed
const DefaultMarginPercentage = 100

// ---------------------------------------------------------------------------
// Rule Priority
// ---------------------------------------------------------------------------

// RulePriority orders rule scopes; a lower value wins
type RulePriority int

const (
	RulePriorityProduct  RulePriority = 1
	RulePriorityCategory RulePriority = 2
	RulePriorityGlobal   RulePriority = 3
)

// IsValid checks if the priority is valid
func (p RulePriority) IsValid() bool {
	return p >= RulePriorityProduct && p <= RulePriorityGlobal
}

// String returns the scope name of the priority
func (p RulePriority) String() string {
	switch p {
	case RulePriorityProduct:
		return "PRODUCT"
	case RulePriorityCategory:
		return "CATEGORY"
	case RulePriorityGlobal:
		return "GLOBAL"
	default:
		return "UNKNOWN"
	}
}

// RuleScope selects the products a rule applies to.
// At most one of ProductID and CategoryID may be set; neither means global.
type RuleScope struct {
	ProductID  *uuid.UUID
	CategoryID *uuid.UUID
}

// ProductScopeOf returns a product-scoped rule scope
func ProductScopeOf(productID uuid.UUID) RuleScope {
	return RuleScope{ProductID: &productID}
}

// CategoryScopeOf returns a category-scoped rule scope
func CategoryScopeOf(categoryID uuid.UUID) RuleScope {
	return RuleScope{CategoryID: &categoryID}
}

// GlobalScope returns the marketplace-wide rule scope
func GlobalScope() RuleScope {
	return RuleScope{}
}

// Priority derives the rule priority from the scope
func (s RuleScope) Priority() RulePriority {
	switch {
	case s.ProductID != nil:
		return RulePriorityProduct
	case s.CategoryID != nil:
		return RulePriorityCategory
	default:
		return RulePriorityGlobal
	}
}

// ---------------------------------------------------------------------------
// SafetyMarginRule Entity
// ---------------------------------------------------------------------------

// SafetyMarginRule limits the share of sellable stock published on a marketplace
type SafetyMarginRule struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	Marketplace      MarketplaceCode
	ProductID        *uuid.UUID
	CategoryID       *uuid.UUID
	Priority         RulePriority
	MarginPercentage int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewSafetyMarginRule creates a validated rule; the priority follows the scope
func NewSafetyMarginRule(tenantID uuid.UUID, marketplace MarketplaceCode, scope RuleScope, marginPercentage int) (*SafetyMarginRule, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidTenantID
	}
	if !marketplace.IsValid() {
		return nil, ErrInvalidMarketplace
	}
	if scope.ProductID != nil && scope.CategoryID != nil {
		return nil, ErrRuleScopeMismatch
	}

	now := time.Now()
	rule := &SafetyMarginRule{
		ID:               uuid.New(),
		TenantID:         tenantID,
		Marketplace:      marketplace,
		ProductID:        scope.ProductID,
		CategoryID:       scope.CategoryID,
		Priority:         scope.Priority(),
		MarginPercentage: marginPercentage,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}

// Validate rejects margins outside [0,100] and scope/priority mismatches
func (r *SafetyMarginRule) Validate() error {
	if r.MarginPercentage < 0 || r.MarginPercentage > 100 {
		return ErrMarginOutOfRange
	}
	if !r.Priority.IsValid() {
		return ErrInvalidRulePriority
	}

	hasProduct := r.ProductID != nil && *r.ProductID != uuid.Nil
	hasCategory := r.CategoryID != nil && *r.CategoryID != uuid.Nil

	switch r.Priority {
	case RulePriorityProduct:
		if !hasProduct || r.CategoryID != nil {
			return ErrRuleScopeMismatch
		}
	case RulePriorityCategory:
		if !hasCategory || r.ProductID != nil {
			return ErrRuleScopeMismatch
		}
	case RulePriorityGlobal:
		if r.ProductID != nil || r.CategoryID != nil {
			return ErrRuleScopeMismatch
		}
	}
	return nil
}

// Scope returns the rule's scope
func (r *SafetyMarginRule) Scope() RuleScope {
	return RuleScope{ProductID: r.ProductID, CategoryID: r.CategoryID}
}

// UpdateMargin changes the margin percentage
func (r *SafetyMarginRule) UpdateMargin(marginPercentage int) error {
	if marginPercentage < 0 || marginPercentage > 100 {
		return ErrMarginOutOfRange
	}
	r.MarginPercentage = marginPercentage
	r.UpdatedAt = time.Now()
	return nil
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// SafetyMarginRuleRepository persists safety margin rules.
// The Find*Rule methods return (nil, nil) when no rule exists.
type SafetyMarginRuleRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*SafetyMarginRule, error)
	FindProductRule(ctx context.Context, tenantID uuid.UUID, marketplace MarketplaceCode, productID uuid.UUID) (*SafetyMarginRule, error)
	FindCategoryRule(ctx context.Context, tenantID uuid.UUID, marketplace MarketplaceCode, categoryID uuid.UUID) (*SafetyMarginRule, error)
	FindGlobalRule(ctx context.Context, tenantID uuid.UUID, marketplace MarketplaceCode) (*SafetyMarginRule, error)
	List(ctx context.Context, tenantID uuid.UUID, marketplace MarketplaceCode) ([]SafetyMarginRule, error)
	Save(ctx context.Context, rule *SafetyMarginRule) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}

// ---------------------------------------------------------------------------
// Resolver chain
// ---------------------------------------------------------------------------

// MarginLookup identifies the product whose margin is resolved
type MarginLookup struct {
	TenantID    uuid.UUID
	Marketplace MarketplaceCode
	ProductID   uuid.UUID
	CategoryID  *uuid.UUID
}

// ScopeResolver is one link of the margin cascade.
// It returns (nil, nil) when it has no rule for the lookup.
type ScopeResolver interface {
	Resolve(ctx context.Context, lookup MarginLookup) (*SafetyMarginRule, error)
}

// ScopeResolverFunc adapts a function to ScopeResolver
type ScopeResolverFunc func(ctx context.Context, lookup MarginLookup) (*SafetyMarginRule, error)

// Resolve calls f
func (f ScopeResolverFunc) Resolve(ctx context.Context, lookup MarginLookup) (*SafetyMarginRule, error) {
	return f(ctx, lookup)
}

// MarginResolution is the outcome of a margin lookup. Rule is nil for the default.
type MarginResolution struct {
	Percentage int
	Rule       *SafetyMarginRule
}

// MarginResolver tries each scope resolver in order; the first hit wins
type MarginResolver struct {
	chain []ScopeResolver
}

// NewMarginResolver creates a resolver from an ordered chain
func NewMarginResolver(chain ...ScopeResolver) *MarginResolver {
	return &MarginResolver{chain: chain}
}

// NewRuleCascade builds the PRODUCT > CATEGORY > GLOBAL cascade over a repository
func NewRuleCascade(repo SafetyMarginRuleRepository) *MarginResolver {
	return NewMarginResolver(
		ScopeResolverFunc(func(ctx context.Context, l MarginLookup) (*SafetyMarginRule, error) {
			return repo.FindProductRule(ctx, l.TenantID, l.Marketplace, l.ProductID)
		}),
		ScopeResolverFunc(func(ctx context.Context, l MarginLookup) (*SafetyMarginRule, error) {
			if l.CategoryID == nil {
				return nil, nil
			}
			return repo.FindCategoryRule(ctx, l.TenantID, l.Marketplace, *l.CategoryID)
		}),
		ScopeResolverFunc(func(ctx context.Context, l MarginLookup) (*SafetyMarginRule, error) {
			return repo.FindGlobalRule(ctx, l.TenantID, l.Marketplace)
		}),
	)
}

// Resolve returns the margin of the highest-priority matching rule, or 100
func (r *MarginResolver) Resolve(ctx context.Context, lookup MarginLookup) (MarginResolution, error) {
	for _, link := range r.chain {
		rule, err := link.Resolve(ctx, lookup)
		if err != nil {
			return MarginResolution{}, err
		}
		if rule != nil {
			return MarginResolution{Percentage: rule.MarginPercentage, Rule: rule}, nil
		}
	}
	return MarginResolution{Percentage: DefaultMarginPercentage}, nil
}

// PublishedQuantity returns floor(available * margin / 100), never negative
func PublishedQuantity(available decimal.Decimal, marginPercentage int) int64 {
	if !available.IsPositive() {
		return 0
	}
	if marginPercentage < 0 {
		marginPercentage = 0
	}
	if marginPercentage > 100 {
		marginPercentage = 100
	}
	return available.
		Mul(decimal.NewFromInt(int64(marginPercentage))).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
}
