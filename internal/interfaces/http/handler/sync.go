package handler

import (
	"context"

	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SyncQueueService exposes the queue operations of the admin API
type SyncQueueService interface {
	RequestResync(ctx context.Context, tenantID uuid.UUID, req appintegration.ResyncRequest) (*appintegration.EnqueueResponse, error)
	RetryFailed(ctx context.Context, tenantID, itemID uuid.UUID) (*appintegration.EnqueueResponse, error)
	ListItems(ctx context.Context, tenantID uuid.UUID, q appintegration.ListQuery) (*appintegration.PageResult[appintegration.SyncQueueItemResponse], error)
	Stats(ctx context.Context, tenantID uuid.UUID) (*appintegration.QueueStatsResponse, error)
	ListLogs(ctx context.Context, tenantID uuid.UUID, q appintegration.ListQuery) (*appintegration.PageResult[appintegration.SyncLogResponse], error)
}

// SyncHandler handles sync queue endpoints
type SyncHandler struct {
	BaseHandler
	service SyncQueueService
}

// NewSyncHandler creates a SyncHandler
func NewSyncHandler(service SyncQueueService) *SyncHandler {
	return &SyncHandler{service: service}
}

// Resync handles POST /sync/resync
func (h *SyncHandler) Resync(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req appintegration.ResyncRequest
	if !h.BindJSON(c, &req) {
		return
	}
	resp, err := h.service.RequestResync(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, resp)
}

// Retry handles POST /sync/queue/:id/retry
func (h *SyncHandler) Retry(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	itemID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	resp, err := h.service.RetryFailed(c.Request.Context(), tenantID, itemID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, resp)
}

// ListQueue handles GET /sync/queue
func (h *SyncHandler) ListQueue(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var q appintegration.ListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	page, err := h.service.ListItems(c.Request.Context(), tenantID, q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	successPage(&h.BaseHandler, c, page)
}

// Stats handles GET /sync/queue/stats
func (h *SyncHandler) Stats(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	stats, err := h.service.Stats(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// ListLogs handles GET /sync/logs
func (h *SyncHandler) ListLogs(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var q appintegration.ListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	page, err := h.service.ListLogs(c.Request.Context(), tenantID, q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	successPage(&h.BaseHandler, c, page)
}
