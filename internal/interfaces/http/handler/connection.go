package handler

import (
	"context"

	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ConnectionService is the connection lifecycle used by ConnectionHandler
type ConnectionService interface {
	BeginAuthorization(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, redirectURI string) (string, error)
	CompleteAuthorization(ctx context.Context, stateToken, code string) (*integration.Connection, error)
	Disconnect(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) error
	GetConnection(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) (*integration.Connection, error)
	RefreshConnection(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) (*integration.Connection, error)
}

// ConnectionHandler handles marketplace connection endpoints
type ConnectionHandler struct {
	BaseHandler
	service ConnectionService
}

// NewConnectionHandler creates a ConnectionHandler
func NewConnectionHandler(service ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{service: service}
}

// GetConnection handles GET /connections/:marketplace
func (h *ConnectionHandler) GetConnection(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	marketplace, ok := h.marketplaceParam(c)
	if !ok {
		return
	}

	conn, err := h.service.GetConnection(c.Request.Context(), tenantID, marketplace)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToConnectionResponse(conn))
}

// Authorize handles POST /connections/:marketplace/authorize
func (h *ConnectionHandler) Authorize(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	marketplace, ok := h.marketplaceParam(c)
	if !ok {
		return
	}
	var body appintegration.AuthorizeRequest
	if !h.BindJSON(c, &body) {
		return
	}

	url, err := h.service.BeginAuthorization(c.Request.Context(), tenantID, marketplace, body.RedirectURI)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.AuthorizeResponse{AuthorizationURL: url})
}

// Disconnect handles DELETE /connections/:marketplace
func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	marketplace, ok := h.marketplaceParam(c)
	if !ok {
		return
	}

	if err := h.service.Disconnect(c.Request.Context(), tenantID, marketplace); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Refresh handles POST /connections/:marketplace/refresh
func (h *ConnectionHandler) Refresh(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	marketplace, ok := h.marketplaceParam(c)
	if !ok {
		return
	}

	conn, err := h.service.RefreshConnection(c.Request.Context(), tenantID, marketplace)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToConnectionResponse(conn))
}

// Callback handles GET /oauth/:marketplace/callback. The tenant comes from
// the signed state, never from the request.
func (h *ConnectionHandler) Callback(c *gin.Context) {
	if _, ok := h.marketplaceParam(c); !ok {
		return
	}
	if errCode := c.Query("error"); errCode != "" {
		h.BadRequest(c, "Authorization denied: "+errCode)
		return
	}

	conn, err := h.service.CompleteAuthorization(c.Request.Context(), c.Query("state"), c.Query("code"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToConnectionResponse(conn))
}
