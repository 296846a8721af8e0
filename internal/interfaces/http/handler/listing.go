package handler

import (
	"context"

	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ListingLister lists the listings of a tenant
type ListingLister interface {
	ListListings(ctx context.Context, tenantID uuid.UUID, q appintegration.ListQuery) (*appintegration.PageResult[appintegration.ListingResponse], error)
}

// OrderImporter imports marketplace orders on demand
type OrderImporter interface {
	ImportOrder(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, externalOrderID string) (*appintegration.ImportResult, error)
	ListOrders(ctx context.Context, tenantID uuid.UUID, q appintegration.ListQuery) (*appintegration.PageResult[appintegration.MarketplaceOrderResponse], error)
}

// ListingHandler handles listing and imported order endpoints
type ListingHandler struct {
	BaseHandler
	listings ListingLister
	orders   OrderImporter
}

// NewListingHandler creates a ListingHandler
func NewListingHandler(listings ListingLister, orders OrderImporter) *ListingHandler {
	return &ListingHandler{listings: listings, orders: orders}
}

// ListListings handles GET /listings
func (h *ListingHandler) ListListings(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var q appintegration.ListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	page, err := h.listings.ListListings(c.Request.Context(), tenantID, q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	successPage(&h.BaseHandler, c, page)
}

// ListOrders handles GET /orders
func (h *ListingHandler) ListOrders(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var q appintegration.ListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	page, err := h.orders.ListOrders(c.Request.Context(), tenantID, q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	successPage(&h.BaseHandler, c, page)
}

type importOrderResponse struct {
	Order   appintegration.MarketplaceOrderResponse `json:"order"`
	Created bool                                    `json:"created"`
	Changed bool                                    `json:"changed"`
}

// ImportOrder handles POST /orders/import
func (h *ListingHandler) ImportOrder(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req appintegration.ImportOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	marketplace, err := integration.ParseMarketplaceCode(req.Marketplace)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.orders.ImportOrder(c.Request.Context(), tenantID, marketplace, req.ExternalOrderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, importOrderResponse{
		Order:   appintegration.ToMarketplaceOrderResponse(result.Order),
		Created: result.Created,
		Changed: result.Changed,
	})
}
