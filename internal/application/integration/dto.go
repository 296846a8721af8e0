package integration

import (
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Connections
// ---------------------------------------------------------------------------

// AuthorizeRequest starts the OAuth flow for the marketplace in the path
type AuthorizeRequest struct {
	RedirectURI string `json:"redirect_uri" binding:"required,url"`
}

// AuthorizeResponse carries the consent URL the user is redirected to
type AuthorizeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

// ConnectionResponse is the token-free view of a connection
type ConnectionResponse struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       uuid.UUID  `json:"tenant_id"`
	Marketplace    string     `json:"marketplace"`
	ExternalUserID string     `json:"external_user_id,omitempty"`
	Status         string     `json:"status"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ToConnectionResponse converts a domain connection
func ToConnectionResponse(c *integration.Connection) *ConnectionResponse {
	return &ConnectionResponse{
		ID:             c.ID,
		TenantID:       c.TenantID,
		Marketplace:    c.Marketplace.String(),
		ExternalUserID: c.ExternalUserID,
		Status:         c.Status.String(),
		TokenExpiresAt: c.TokenExpiresAt,
		LastSyncAt:     c.LastSyncAt,
		ErrorMessage:   c.ErrorMessage,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// Safety margin rules
// ---------------------------------------------------------------------------

// CreateRuleRequest creates a safety margin rule.
// Leaving both ProductID and CategoryID empty creates the global rule.
type CreateRuleRequest struct {
	Marketplace      string     `json:"marketplace" binding:"required,marketplace"`
	ProductID        *uuid.UUID `json:"product_id,omitempty"`
	CategoryID       *uuid.UUID `json:"category_id,omitempty"`
	MarginPercentage int        `json:"margin_percentage" binding:"min=0,max=100"`
}

// UpdateRuleRequest changes the margin of a rule
type UpdateRuleRequest struct {
	MarginPercentage int `json:"margin_percentage" binding:"min=0,max=100"`
}

// RuleResponse is the API view of a rule
type RuleResponse struct {
	ID               uuid.UUID  `json:"id"`
	Marketplace      string     `json:"marketplace"`
	Scope            string     `json:"scope"`
	ProductID        *uuid.UUID `json:"product_id,omitempty"`
	CategoryID       *uuid.UUID `json:"category_id,omitempty"`
	Priority         int        `json:"priority"`
	MarginPercentage int        `json:"margin_percentage"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// ToRuleResponse converts a domain rule
func ToRuleResponse(r *integration.SafetyMarginRule) *RuleResponse {
	return &RuleResponse{
		ID:               r.ID,
		Marketplace:      r.Marketplace.String(),
		Scope:            r.Priority.String(),
		ProductID:        r.ProductID,
		CategoryID:       r.CategoryID,
		Priority:         int(r.Priority),
		MarginPercentage: r.MarginPercentage,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// Sync queue
// ---------------------------------------------------------------------------

// EnqueueInput is a request to reconcile one product on one marketplace
type EnqueueInput struct {
	TenantID    uuid.UUID
	ProductID   uuid.UUID
	VariantID   *uuid.UUID
	Marketplace integration.MarketplaceCode
	SyncType    integration.SyncType
	Priority    integration.SyncPriority
}

// ResyncRequest is the manual resync API payload
type ResyncRequest struct {
	Marketplace string     `json:"marketplace" binding:"required,marketplace"`
	ProductID   uuid.UUID  `json:"product_id" binding:"required"`
	VariantID   *uuid.UUID `json:"variant_id,omitempty"`
	SyncType    string     `json:"sync_type" binding:"required,oneof=STOCK PRICE"`
}

// EnqueueResponse reports the queue item that covers a request
type EnqueueResponse struct {
	Item    SyncQueueItemResponse `json:"item"`
	Created bool                  `json:"created"`
}

// SyncQueueItemResponse is the API view of a queue item
type SyncQueueItemResponse struct {
	ID            uuid.UUID  `json:"id"`
	ProductID     uuid.UUID  `json:"product_id"`
	VariantID     *uuid.UUID `json:"variant_id,omitempty"`
	Marketplace   string     `json:"marketplace"`
	SyncType      string     `json:"sync_type"`
	Priority      int        `json:"priority"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	LastError     string     `json:"last_error,omitempty"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ToSyncQueueItemResponse converts a domain queue item
func ToSyncQueueItemResponse(i *integration.SyncQueueItem) SyncQueueItemResponse {
	return SyncQueueItemResponse{
		ID:            i.ID,
		ProductID:     i.ProductID,
		VariantID:     i.VariantID,
		Marketplace:   i.Marketplace.String(),
		SyncType:      i.SyncType.String(),
		Priority:      int(i.Priority),
		Status:        i.Status.String(),
		RetryCount:    i.RetryCount,
		MaxRetries:    i.MaxRetries,
		LastError:     i.LastError,
		NextAttemptAt: i.NextAttemptAt,
		ProcessedAt:   i.ProcessedAt,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}
}

// QueueStatsResponse counts queue items per status
type QueueStatsResponse struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Success    int64 `json:"success"`
	Failed     int64 `json:"failed"`
	Total      int64 `json:"total"`
}

// SyncLogResponse is the API view of a sync log entry
type SyncLogResponse struct {
	ID           uuid.UUID  `json:"id"`
	QueueItemID  *uuid.UUID `json:"queue_item_id,omitempty"`
	ProductID    uuid.UUID  `json:"product_id"`
	VariantID    *uuid.UUID `json:"variant_id,omitempty"`
	Marketplace  string     `json:"marketplace"`
	SyncType     string     `json:"sync_type"`
	OldValue     string     `json:"old_value,omitempty"`
	NewValue     string     `json:"new_value,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RetryCount   int        `json:"retry_count"`
	SyncedAt     time.Time  `json:"synced_at"`
}

// ToSyncLogResponse converts a domain log entry
func ToSyncLogResponse(e *integration.SyncLogEntry) SyncLogResponse {
	return SyncLogResponse{
		ID:           e.ID,
		QueueItemID:  e.QueueItemID,
		ProductID:    e.ProductID,
		VariantID:    e.VariantID,
		Marketplace:  e.Marketplace.String(),
		SyncType:     e.SyncType.String(),
		OldValue:     e.OldValue,
		NewValue:     e.NewValue,
		Status:       e.Status.String(),
		ErrorMessage: e.ErrorMessage,
		RetryCount:   e.RetryCount,
		SyncedAt:     e.SyncedAt,
	}
}

// ---------------------------------------------------------------------------
// Listings and orders
// ---------------------------------------------------------------------------

// ListingResponse is the API view of a listing
type ListingResponse struct {
	ID                uuid.UUID       `json:"id"`
	ProductID         uuid.UUID       `json:"product_id"`
	VariantID         *uuid.UUID      `json:"variant_id,omitempty"`
	Marketplace       string          `json:"marketplace"`
	ExternalListingID string          `json:"external_listing_id"`
	Status            string          `json:"status"`
	Quantity          int64           `json:"quantity"`
	Price             decimal.Decimal `json:"price"`
	Permalink         string          `json:"permalink,omitempty"`
	LastSyncedAt      *time.Time      `json:"last_synced_at,omitempty"`
	ErrorMessage      string          `json:"error_message,omitempty"`
}

// ToListingResponse converts a domain listing
func ToListingResponse(l *integration.Listing) ListingResponse {
	return ListingResponse{
		ID:                l.ID,
		ProductID:         l.ProductID,
		VariantID:         l.VariantID,
		Marketplace:       l.Marketplace.String(),
		ExternalListingID: l.ExternalListingID,
		Status:            l.Status.String(),
		Quantity:          l.Quantity,
		Price:             l.Price,
		Permalink:         l.Permalink,
		LastSyncedAt:      l.LastSyncedAt,
		ErrorMessage:      l.ErrorMessage,
	}
}

// MarketplaceOrderResponse is the API view of an imported order
type MarketplaceOrderResponse struct {
	ID              uuid.UUID       `json:"id"`
	Marketplace     string          `json:"marketplace"`
	ExternalOrderID string          `json:"external_order_id"`
	InternalOrderID *uuid.UUID      `json:"internal_order_id,omitempty"`
	Status          string          `json:"status"`
	ExternalStatus  string          `json:"external_status"`
	PaymentStatus   string          `json:"payment_status"`
	ShippingStatus  string          `json:"shipping_status,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency"`
	BuyerNickname   string          `json:"buyer_nickname,omitempty"`
	LastSyncedAt    time.Time       `json:"last_synced_at"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ToMarketplaceOrderResponse converts a domain marketplace order
func ToMarketplaceOrderResponse(o *integration.MarketplaceOrder) MarketplaceOrderResponse {
	return MarketplaceOrderResponse{
		ID:              o.ID,
		Marketplace:     o.Marketplace.String(),
		ExternalOrderID: o.ExternalOrderID,
		InternalOrderID: o.InternalOrderID,
		Status:          o.Status.String(),
		ExternalStatus:  o.ExternalStatus,
		PaymentStatus:   o.PaymentStatus,
		ShippingStatus:  o.ShippingStatus,
		TotalAmount:     o.TotalAmount,
		Currency:        o.Currency,
		BuyerNickname:   o.BuyerNickname,
		LastSyncedAt:    o.LastSyncedAt,
		CreatedAt:       o.CreatedAt,
	}
}

// ImportOrderRequest imports one order by its marketplace ID
type ImportOrderRequest struct {
	Marketplace     string `json:"marketplace" binding:"required,marketplace"`
	ExternalOrderID string `json:"external_order_id" binding:"required"`
}

// ---------------------------------------------------------------------------
// Paging
// ---------------------------------------------------------------------------

// ListQuery is the common paging query of list endpoints
type ListQuery struct {
	Marketplace string     `form:"marketplace"`
	ProductID   *uuid.UUID `form:"product_id"`
	Status      string     `form:"status"`
	Page        int        `form:"page,omitempty" binding:"omitempty,min=1"`
	PageSize    int        `form:"page_size,omitempty" binding:"omitempty,min=1,max=100"`
}

// PageResult is a page of API views
type PageResult[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func newPageResult[T any](items []T, total int64, page, pageSize int) *PageResult[T] {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	if items == nil {
		items = []T{}
	}
	return &PageResult[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

func parseOptionalMarketplace(s string) (integration.MarketplaceCode, error) {
	if s == "" {
		return "", nil
	}
	return integration.ParseMarketplaceCode(s)
}
