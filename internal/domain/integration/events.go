package integration

import (
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/google/uuid"
)

// EventTypeStockChanged is emitted by the inventory module whenever sellable quantity changes
const EventTypeStockChanged = "inventory.stock_changed"

// AggregateTypeInventoryItem is the aggregate type of stock events
const AggregateTypeInventoryItem = "InventoryItem"

// StockChangedEvent carries the product whose sellable quantity changed
type StockChangedEvent struct {
	shared.BaseDomainEvent
	ProductID uuid.UUID  `json:"product_id"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
}

// NewStockChangedEvent creates a stock change event
func NewStockChangedEvent(tenantID, productID uuid.UUID, variantID *uuid.UUID) *StockChangedEvent {
	return &StockChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockChanged, AggregateTypeInventoryItem, productID, tenantID),
		ProductID:       productID,
		VariantID:       variantID,
	}
}
