package handler

import (
	"context"

	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SafetyMarginService manages safety margin rules
type SafetyMarginService interface {
	CreateRule(ctx context.Context, tenantID uuid.UUID, req appintegration.CreateRuleRequest) (*appintegration.RuleResponse, error)
	UpdateRule(ctx context.Context, tenantID, ruleID uuid.UUID, req appintegration.UpdateRuleRequest) (*appintegration.RuleResponse, error)
	DeleteRule(ctx context.Context, tenantID, ruleID uuid.UUID) error
	GetRule(ctx context.Context, tenantID, ruleID uuid.UUID) (*appintegration.RuleResponse, error)
	ListRules(ctx context.Context, tenantID uuid.UUID, marketplace string) ([]appintegration.RuleResponse, error)
}

// SafetyMarginHandler handles safety margin rule endpoints
type SafetyMarginHandler struct {
	BaseHandler
	service SafetyMarginService
}

// NewSafetyMarginHandler creates a SafetyMarginHandler
func NewSafetyMarginHandler(service SafetyMarginService) *SafetyMarginHandler {
	return &SafetyMarginHandler{service: service}
}

// List handles GET /safety-margins
func (h *SafetyMarginHandler) List(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	rules, err := h.service.ListRules(c.Request.Context(), tenantID, c.Query("marketplace"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rules)
}

// Get handles GET /safety-margins/:id
func (h *SafetyMarginHandler) Get(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	ruleID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	rule, err := h.service.GetRule(c.Request.Context(), tenantID, ruleID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rule)
}

// Create handles POST /safety-margins
func (h *SafetyMarginHandler) Create(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req appintegration.CreateRuleRequest
	if !h.BindJSON(c, &req) {
		return
	}
	rule, err := h.service.CreateRule(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, rule)
}

// Update handles PUT /safety-margins/:id
func (h *SafetyMarginHandler) Update(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	ruleID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req appintegration.UpdateRuleRequest
	if !h.BindJSON(c, &req) {
		return
	}
	rule, err := h.service.UpdateRule(c.Request.Context(), tenantID, ruleID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rule)
}

// Delete handles DELETE /safety-margins/:id
func (h *SafetyMarginHandler) Delete(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	ruleID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteRule(c.Request.Context(), tenantID, ruleID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
