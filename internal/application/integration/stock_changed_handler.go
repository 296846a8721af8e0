package integration

import (
	"context"
	"fmt"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StockChangeEnqueuer fans a stock change out to the tenant's marketplaces
type StockChangeEnqueuer interface {
	HandleStockChanged(ctx context.Context, tenantID, productID uuid.UUID, variantID *uuid.UUID) (int, error)
}

// StockChangedHandler handles StockChangedEvent by enqueueing STOCK
// reconciliation on every connected marketplace.
type StockChangedHandler struct {
	queue  StockChangeEnqueuer
	logger *zap.Logger
}

// NewStockChangedHandler creates a new handler for stock change events
func NewStockChangedHandler(queue StockChangeEnqueuer, logger *zap.Logger) *StockChangedHandler {
	return &StockChangedHandler{queue: queue, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *StockChangedHandler) EventTypes() []string {
	return []string{integration.EventTypeStockChanged}
}

// Handle processes a StockChangedEvent
func (h *StockChangedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	stockEvent, ok := event.(*integration.StockChangedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			integration.EventTypeStockChanged, event.EventType())
	}

	created, err := h.queue.HandleStockChanged(ctx, stockEvent.TenantID(), stockEvent.ProductID, stockEvent.VariantID)
	if err != nil {
		h.logger.Warn("stock change enqueue failed",
			zap.String("tenant_id", stockEvent.TenantID().String()),
			zap.String("product_id", stockEvent.ProductID.String()),
			zap.Error(err),
		)
		return err
	}

	h.logger.Debug("stock change enqueued",
		zap.String("tenant_id", stockEvent.TenantID().String()),
		zap.String("product_id", stockEvent.ProductID.String()),
		zap.Int("created", created),
	)
	return nil
}
