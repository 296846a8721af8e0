package integration

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarketplaceOrderStatus mirrors the externally observed order state
type MarketplaceOrderStatus string

const (
	MarketplaceOrderPendingPayment MarketplaceOrderStatus = "PENDING_PAYMENT"
	MarketplaceOrderPaid           MarketplaceOrderStatus = "PAID"
	MarketplaceOrderShipped        MarketplaceOrderStatus = "SHIPPED"
	MarketplaceOrderDelivered      MarketplaceOrderStatus = "DELIVERED"
	MarketplaceOrderCancelled      MarketplaceOrderStatus = "CANCELLED"
)

// IsValid checks if the status is valid
func (s MarketplaceOrderStatus) IsValid() bool {
	switch s {
	case MarketplaceOrderPendingPayment, MarketplaceOrderPaid, MarketplaceOrderShipped,
		MarketplaceOrderDelivered, MarketplaceOrderCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (s MarketplaceOrderStatus) String() string {
	return string(s)
}

// DeriveOrderStatus maps the raw order, payment and shipping states
func DeriveOrderStatus(order *ExternalOrder) MarketplaceOrderStatus {
	switch {
	case strings.EqualFold(order.Status, "cancelled"):
		return MarketplaceOrderCancelled
	case strings.EqualFold(order.Shipping.Status, "delivered"):
		return MarketplaceOrderDelivered
	case strings.EqualFold(order.Shipping.Status, "shipped"):
		return MarketplaceOrderShipped
	case order.IsPaid():
		return MarketplaceOrderPaid
	default:
		return MarketplaceOrderPendingPayment
	}
}

// ---------------------------------------------------------------------------
// MarketplaceOrder Entity
// ---------------------------------------------------------------------------

// MarketplaceOrder links an external order to the internal sales order it produced.
// (TenantID, Marketplace, ExternalOrderID) is unique.
type MarketplaceOrder struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	Marketplace     MarketplaceCode
	ExternalOrderID string
	InternalOrderID *uuid.UUID
	Status          MarketplaceOrderStatus
	ExternalStatus  string
	PaymentStatus   string
	ShippingStatus  string
	TotalAmount     decimal.Decimal
	Currency        string
	BuyerNickname   string
	LastSyncedAt    time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewMarketplaceOrder creates the import record of an external order.
// The internal order reference is attached once the order sink accepted it.
func NewMarketplaceOrder(tenantID uuid.UUID, marketplace MarketplaceCode, order *ExternalOrder) (*MarketplaceOrder, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidTenantID
	}
	if !marketplace.IsValid() {
		return nil, ErrInvalidMarketplace
	}
	if order == nil || order.ExternalID == "" {
		return nil, ErrInvalidExternalOrderID
	}

	now := time.Now()
	return &MarketplaceOrder{
		ID:              uuid.New(),
		TenantID:        tenantID,
		Marketplace:     marketplace,
		ExternalOrderID: order.ExternalID,
		Status:          DeriveOrderStatus(order),
		ExternalStatus:  order.Status,
		PaymentStatus:   order.PaymentStatus(),
		ShippingStatus:  order.Shipping.Status,
		TotalAmount:     order.Total,
		Currency:        order.Currency,
		BuyerNickname:   order.Buyer.Nickname,
		LastSyncedAt:    now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// AttachInternalOrder records the internal sales order created for this import
func (o *MarketplaceOrder) AttachInternalOrder(internalOrderID uuid.UUID) {
	o.InternalOrderID = &internalOrderID
	o.UpdatedAt = time.Now()
}

// IsMaterialized reports whether an internal order exists
func (o *MarketplaceOrder) IsMaterialized() bool {
	return o.InternalOrderID != nil && *o.InternalOrderID != uuid.Nil
}

// ApplyExternalUpdate refreshes the mutable sub-statuses from a re-fetched order.
// An order without a shipping status keeps the one already known.
// It returns true when anything changed.
func (o *MarketplaceOrder) ApplyExternalUpdate(order *ExternalOrder, now time.Time) bool {
	if order.Shipping.Status == "" && o.ShippingStatus != "" {
		merged := *order
		merged.Shipping.Status = o.ShippingStatus
		order = &merged
	}
	status := DeriveOrderStatus(order)
	payment := order.PaymentStatus()
	shipping := order.Shipping.Status

	changed := status != o.Status ||
		payment != o.PaymentStatus ||
		shipping != o.ShippingStatus ||
		order.Status != o.ExternalStatus

	o.Status = status
	o.PaymentStatus = payment
	o.ShippingStatus = shipping
	o.ExternalStatus = order.Status
	o.LastSyncedAt = now
	if changed {
		o.UpdatedAt = now
	}
	return changed
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// MarketplaceOrderFilter filters imported orders
type MarketplaceOrderFilter struct {
	TenantID    uuid.UUID
	Marketplace MarketplaceCode
	Status      MarketplaceOrderStatus
	Page        int
	PageSize    int
}

// MarketplaceOrderRepository persists order import records
type MarketplaceOrderRepository interface {
	FindByExternalID(ctx context.Context, tenantID uuid.UUID, marketplace MarketplaceCode, externalOrderID string) (*MarketplaceOrder, error)
	// Create fails with ErrMarketplaceOrderExists when the external id was already imported
	Create(ctx context.Context, order *MarketplaceOrder) error
	Update(ctx context.Context, order *MarketplaceOrder) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	List(ctx context.Context, filter MarketplaceOrderFilter) ([]MarketplaceOrder, int64, error)
}
