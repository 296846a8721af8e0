package models

import (
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConnectionModel is the persistence model for the Connection domain entity.
type ConnectionModel struct {
	ID             uuid.UUID                    `gorm:"type:uuid;primary_key"`
	TenantID       uuid.UUID                    `gorm:"type:uuid;not null;uniqueIndex:uq_marketplace_connections_tenant,priority:1"`
	Marketplace    integration.MarketplaceCode  `gorm:"type:varchar(32);not null;uniqueIndex:uq_marketplace_connections_tenant,priority:2"`
	ExternalUserID string                       `gorm:"type:varchar(64);not null;default:''"`
	AccessToken    string                       `gorm:"type:text;not null;default:''"`
	RefreshToken   string                       `gorm:"type:text;not null;default:''"`
	TokenExpiresAt *time.Time                   `gorm:"index"`
	Status         integration.ConnectionStatus `gorm:"type:varchar(20);not null;default:'PENDING'"`
	LastSyncAt     *time.Time
	ErrorMessage   string    `gorm:"type:text;not null;default:''"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ConnectionModel) TableName() string {
	return "marketplace_connections"
}

// ToDomain converts the persistence model to a domain Connection entity.
func (m *ConnectionModel) ToDomain() *integration.Connection {
	return &integration.Connection{
		ID:             m.ID,
		TenantID:       m.TenantID,
		Marketplace:    m.Marketplace,
		ExternalUserID: m.ExternalUserID,
		AccessToken:    m.AccessToken,
		RefreshToken:   m.RefreshToken,
		TokenExpiresAt: m.TokenExpiresAt,
		Status:         m.Status,
		LastSyncAt:     m.LastSyncAt,
		ErrorMessage:   m.ErrorMessage,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// ConnectionModelFromDomain creates a persistence model from a domain Connection.
func ConnectionModelFromDomain(c *integration.Connection) *ConnectionModel {
	return &ConnectionModel{
		ID:             c.ID,
		TenantID:       c.TenantID,
		Marketplace:    c.Marketplace,
		ExternalUserID: c.ExternalUserID,
		AccessToken:    c.AccessToken,
		RefreshToken:   c.RefreshToken,
		TokenExpiresAt: c.TokenExpiresAt,
		Status:         c.Status,
		LastSyncAt:     c.LastSyncAt,
		ErrorMessage:   c.ErrorMessage,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

// SafetyMarginRuleModel is the persistence model for SafetyMarginRule.
type SafetyMarginRuleModel struct {
	ID               uuid.UUID                   `gorm:"type:uuid;primary_key"`
	TenantID         uuid.UUID                   `gorm:"type:uuid;not null;index:idx_safety_margin_rules_scope,priority:1"`
	Marketplace      integration.MarketplaceCode `gorm:"type:varchar(32);not null;index:idx_safety_margin_rules_scope,priority:2"`
	ProductID        *uuid.UUID                  `gorm:"type:uuid"`
	CategoryID       *uuid.UUID                  `gorm:"type:uuid"`
	Priority         integration.RulePriority    `gorm:"type:smallint;not null"`
	MarginPercentage int                         `gorm:"type:smallint;not null"`
	CreatedAt        time.Time                   `gorm:"not null"`
	UpdatedAt        time.Time                   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SafetyMarginRuleModel) TableName() string {
	return "safety_margin_rules"
}

// ToDomain converts the persistence model to a domain rule.
func (m *SafetyMarginRuleModel) ToDomain() *integration.SafetyMarginRule {
	return &integration.SafetyMarginRule{
		ID:               m.ID,
		TenantID:         m.TenantID,
		Marketplace:      m.Marketplace,
		ProductID:        m.ProductID,
		CategoryID:       m.CategoryID,
		Priority:         m.Priority,
		MarginPercentage: m.MarginPercentage,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// SafetyMarginRuleModelFromDomain creates a persistence model from a domain rule.
func SafetyMarginRuleModelFromDomain(r *integration.SafetyMarginRule) *SafetyMarginRuleModel {
	return &SafetyMarginRuleModel{
		ID:               r.ID,
		TenantID:         r.TenantID,
		Marketplace:      r.Marketplace,
		ProductID:        r.ProductID,
		CategoryID:       r.CategoryID,
		Priority:         r.Priority,
		MarginPercentage: r.MarginPercentage,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// ListingModel is the persistence model for the Listing domain entity.
type ListingModel struct {
	ID                uuid.UUID                   `gorm:"type:uuid;primary_key"`
	TenantID          uuid.UUID                   `gorm:"type:uuid;not null;uniqueIndex:uq_marketplace_listings_key,priority:1"`
	ProductID         uuid.UUID                   `gorm:"type:uuid;not null;uniqueIndex:uq_marketplace_listings_key,priority:2"`
	VariantID         *uuid.UUID                  `gorm:"type:uuid;uniqueIndex:uq_marketplace_listings_key,priority:3"`
	Marketplace       integration.MarketplaceCode `gorm:"type:varchar(32);not null;uniqueIndex:uq_marketplace_listings_key,priority:4"`
	ExternalListingID string                      `gorm:"type:varchar(64);not null;index"`
	Status            integration.ListingStatus   `gorm:"type:varchar(20);not null;default:'PENDING'"`
	Quantity          int64                       `gorm:"not null;default:0"`
	Price             decimal.Decimal             `gorm:"type:decimal(18,4);not null;default:0"`
	Permalink         string                      `gorm:"type:text;not null;default:''"`
	LastSyncedAt      *time.Time
	ErrorMessage      string    `gorm:"type:text;not null;default:''"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ListingModel) TableName() string {
	return "marketplace_listings"
}

// ToDomain converts the persistence model to a domain Listing entity.
func (m *ListingModel) ToDomain() *integration.Listing {
	return &integration.Listing{
		ID:                m.ID,
		TenantID:          m.TenantID,
		ProductID:         m.ProductID,
		VariantID:         m.VariantID,
		Marketplace:       m.Marketplace,
		ExternalListingID: m.ExternalListingID,
		Status:            m.Status,
		Quantity:          m.Quantity,
		Price:             m.Price,
		Permalink:         m.Permalink,
		LastSyncedAt:      m.LastSyncedAt,
		ErrorMessage:      m.ErrorMessage,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// ListingModelFromDomain creates a persistence model from a domain Listing.
func ListingModelFromDomain(l *integration.Listing) *ListingModel {
	return &ListingModel{
		ID:                l.ID,
		TenantID:          l.TenantID,
		ProductID:         l.ProductID,
		VariantID:         l.VariantID,
		Marketplace:       l.Marketplace,
		ExternalListingID: l.ExternalListingID,
		Status:            l.Status,
		Quantity:          l.Quantity,
		Price:             l.Price,
		Permalink:         l.Permalink,
		LastSyncedAt:      l.LastSyncedAt,
		ErrorMessage:      l.ErrorMessage,
		CreatedAt:         l.CreatedAt,
		UpdatedAt:         l.UpdatedAt,
	}
}

// SyncQueueItemModel is the persistence model for SyncQueueItem.
// The active-key uniqueness lives in the uq_sync_queue_active partial index.
type SyncQueueItemModel struct {
	ID            uuid.UUID                   `gorm:"type:uuid;primary_key"`
	TenantID      uuid.UUID                   `gorm:"type:uuid;not null;index:idx_sync_queue_items_tenant_status,priority:1"`
	ProductID     uuid.UUID                   `gorm:"type:uuid;not null"`
	VariantID     *uuid.UUID                  `gorm:"type:uuid"`
	Marketplace   integration.MarketplaceCode `gorm:"type:varchar(32);not null"`
	SyncType      integration.SyncType        `gorm:"type:varchar(16);not null"`
	Priority      integration.SyncPriority    `gorm:"type:smallint;not null;default:0"`
	Status        integration.SyncStatus      `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_sync_queue_items_tenant_status,priority:2"`
	RetryCount    int                         `gorm:"not null;default:0"`
	MaxRetries    int                         `gorm:"not null;default:3"`
	LastError     string                      `gorm:"type:text;not null;default:''"`
	NextAttemptAt time.Time                   `gorm:"not null"`
	ClaimedAt     *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncQueueItemModel) TableName() string {
	return "sync_queue_items"
}

// ToDomain converts the persistence model to a domain queue item.
func (m *SyncQueueItemModel) ToDomain() *integration.SyncQueueItem {
	return &integration.SyncQueueItem{
		ID:            m.ID,
		TenantID:      m.TenantID,
		ProductID:     m.ProductID,
		VariantID:     m.VariantID,
		Marketplace:   m.Marketplace,
		SyncType:      m.SyncType,
		Priority:      m.Priority,
		Status:        m.Status,
		RetryCount:    m.RetryCount,
		MaxRetries:    m.MaxRetries,
		LastError:     m.LastError,
		NextAttemptAt: m.NextAttemptAt,
		ClaimedAt:     m.ClaimedAt,
		ProcessedAt:   m.ProcessedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// SyncQueueItemModelFromDomain creates a persistence model from a domain queue item.
func SyncQueueItemModelFromDomain(i *integration.SyncQueueItem) *SyncQueueItemModel {
	return &SyncQueueItemModel{
		ID:            i.ID,
		TenantID:      i.TenantID,
		ProductID:     i.ProductID,
		VariantID:     i.VariantID,
		Marketplace:   i.Marketplace,
		SyncType:      i.SyncType,
		Priority:      i.Priority,
		Status:        i.Status,
		RetryCount:    i.RetryCount,
		MaxRetries:    i.MaxRetries,
		LastError:     i.LastError,
		NextAttemptAt: i.NextAttemptAt,
		ClaimedAt:     i.ClaimedAt,
		ProcessedAt:   i.ProcessedAt,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}
}

// SyncLogModel is the persistence model for SyncLogEntry. Rows are never updated.
type SyncLogModel struct {
	ID           uuid.UUID                   `gorm:"type:uuid;primary_key"`
	QueueItemID  *uuid.UUID                  `gorm:"type:uuid;index"`
	TenantID     uuid.UUID                   `gorm:"type:uuid;not null;index:idx_sync_logs_tenant_synced,priority:1"`
	ProductID    uuid.UUID                   `gorm:"type:uuid;not null"`
	VariantID    *uuid.UUID                  `gorm:"type:uuid"`
	Marketplace  integration.MarketplaceCode `gorm:"type:varchar(32);not null"`
	SyncType     integration.SyncType        `gorm:"type:varchar(16);not null"`
	OldValue     string                      `gorm:"type:varchar(64);not null;default:''"`
	NewValue     string                      `gorm:"type:varchar(64);not null;default:''"`
	Status       integration.SyncStatus      `gorm:"type:varchar(20);not null"`
	ErrorMessage string                      `gorm:"type:text;not null;default:''"`
	RetryCount   int                         `gorm:"not null;default:0"`
	SyncedAt     time.Time                   `gorm:"not null;index:idx_sync_logs_tenant_synced,priority:2"`
}

// TableName returns the table name for GORM
func (SyncLogModel) TableName() string {
	return "sync_logs"
}

// ToDomain converts the persistence model to a domain log entry.
func (m *SyncLogModel) ToDomain() *integration.SyncLogEntry {
	return &integration.SyncLogEntry{
		ID:           m.ID,
		QueueItemID:  m.QueueItemID,
		TenantID:     m.TenantID,
		ProductID:    m.ProductID,
		VariantID:    m.VariantID,
		Marketplace:  m.Marketplace,
		SyncType:     m.SyncType,
		OldValue:     m.OldValue,
		NewValue:     m.NewValue,
		Status:       m.Status,
		ErrorMessage: m.ErrorMessage,
		RetryCount:   m.RetryCount,
		SyncedAt:     m.SyncedAt,
	}
}

// SyncLogModelFromDomain creates a persistence model from a domain log entry.
func SyncLogModelFromDomain(e *integration.SyncLogEntry) *SyncLogModel {
	return &SyncLogModel{
		ID:           e.ID,
		QueueItemID:  e.QueueItemID,
		TenantID:     e.TenantID,
		ProductID:    e.ProductID,
		VariantID:    e.VariantID,
		Marketplace:  e.Marketplace,
		SyncType:     e.SyncType,
		OldValue:     e.OldValue,
		NewValue:     e.NewValue,
		Status:       e.Status,
		ErrorMessage: e.ErrorMessage,
		RetryCount:   e.RetryCount,
		SyncedAt:     e.SyncedAt,
	}
}

// MarketplaceOrderModel is the persistence model for MarketplaceOrder.
type MarketplaceOrderModel struct {
	ID              uuid.UUID                          `gorm:"type:uuid;primary_key"`
	TenantID        uuid.UUID                          `gorm:"type:uuid;not null;uniqueIndex:uq_marketplace_orders_external,priority:1"`
	Marketplace     integration.MarketplaceCode        `gorm:"type:varchar(32);not null;uniqueIndex:uq_marketplace_orders_external,priority:2"`
	ExternalOrderID string                             `gorm:"type:varchar(64);not null;uniqueIndex:uq_marketplace_orders_external,priority:3"`
	InternalOrderID *uuid.UUID                         `gorm:"type:uuid"`
	Status          integration.MarketplaceOrderStatus `gorm:"type:varchar(20);not null"`
	ExternalStatus  string                             `gorm:"type:varchar(32);not null;default:''"`
	PaymentStatus   string                             `gorm:"type:varchar(32);not null;default:''"`
	ShippingStatus  string                             `gorm:"type:varchar(32);not null;default:''"`
	TotalAmount     decimal.Decimal                    `gorm:"type:decimal(18,4);not null;default:0"`
	Currency        string                             `gorm:"type:varchar(8);not null;default:''"`
	BuyerNickname   string                             `gorm:"type:varchar(128);not null;default:''"`
	LastSyncedAt    time.Time                          `gorm:"not null"`
	CreatedAt       time.Time                          `gorm:"not null"`
	UpdatedAt       time.Time                          `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MarketplaceOrderModel) TableName() string {
	return "marketplace_orders"
}

// ToDomain converts the persistence model to a domain order record.
func (m *MarketplaceOrderModel) ToDomain() *integration.MarketplaceOrder {
	return &integration.MarketplaceOrder{
		ID:              m.ID,
		TenantID:        m.TenantID,
		Marketplace:     m.Marketplace,
		ExternalOrderID: m.ExternalOrderID,
		InternalOrderID: m.InternalOrderID,
		Status:          m.Status,
		ExternalStatus:  m.ExternalStatus,
		PaymentStatus:   m.PaymentStatus,
		ShippingStatus:  m.ShippingStatus,
		TotalAmount:     m.TotalAmount,
		Currency:        m.Currency,
		BuyerNickname:   m.BuyerNickname,
		LastSyncedAt:    m.LastSyncedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// MarketplaceOrderModelFromDomain creates a persistence model from a domain order record.
func MarketplaceOrderModelFromDomain(o *integration.MarketplaceOrder) *MarketplaceOrderModel {
	return &MarketplaceOrderModel{
		ID:              o.ID,
		TenantID:        o.TenantID,
		Marketplace:     o.Marketplace,
		ExternalOrderID: o.ExternalOrderID,
		InternalOrderID: o.InternalOrderID,
		Status:          o.Status,
		ExternalStatus:  o.ExternalStatus,
		PaymentStatus:   o.PaymentStatus,
		ShippingStatus:  o.ShippingStatus,
		TotalAmount:     o.TotalAmount,
		Currency:        o.Currency,
		BuyerNickname:   o.BuyerNickname,
		LastSyncedAt:    o.LastSyncedAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}
