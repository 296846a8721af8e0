package handler

import (
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// StockEventRequest is a stock change reported by the inventory module.
// EventID makes redelivery of the same change idempotent.
type StockEventRequest struct {
	EventID   *uuid.UUID `json:"event_id,omitempty"`
	ProductID uuid.UUID  `json:"product_id" binding:"required"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
}

type stockEventResponse struct {
	EventID uuid.UUID `json:"event_id"`
}

// StockEventHandler publishes inventory stock changes on the event bus
type StockEventHandler struct {
	BaseHandler
	publisher shared.EventPublisher
}

// NewStockEventHandler creates a StockEventHandler
func NewStockEventHandler(publisher shared.EventPublisher) *StockEventHandler {
	return &StockEventHandler{publisher: publisher}
}

// Publish handles POST /stock-events
func (h *StockEventHandler) Publish(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req StockEventRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if req.ProductID == uuid.Nil {
		h.HandleError(c, integration.ErrInvalidProductID)
		return
	}

	event := integration.NewStockChangedEvent(tenantID, req.ProductID, req.VariantID)
	if req.EventID != nil && *req.EventID != uuid.Nil {
		event.ID = *req.EventID
	}
	if err := h.publisher.Publish(c.Request.Context(), event); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, stockEventResponse{EventID: event.ID})
}
