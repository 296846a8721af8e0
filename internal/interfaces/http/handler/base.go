// Package handler implements the HTTP handlers of the integration API.
package handler

import (
	"errors"
	"net/http"

	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/erp/marketsync/internal/infrastructure/logger"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BaseHandler provides the response helpers shared by all handlers
type BaseHandler struct{}

// errorMapping maps integration sentinel errors to API codes
var errorMapping = []struct {
	err  error
	code string
}{
	{integration.ErrConnectionNotFound, dto.ErrCodeNotFound},
	{integration.ErrRuleNotFound, dto.ErrCodeNotFound},
	{integration.ErrListingNotFound, dto.ErrCodeNotFound},
	{integration.ErrQueueItemNotFound, dto.ErrCodeNotFound},
	{integration.ErrMarketplaceOrderNotFound, dto.ErrCodeNotFound},

	{integration.ErrRuleAlreadyExists, dto.ErrCodeAlreadyExists},
	{integration.ErrListingAlreadyExists, dto.ErrCodeAlreadyExists},
	{integration.ErrMarketplaceOrderExists, dto.ErrCodeAlreadyExists},
	{integration.ErrOrderImportInProgress, dto.ErrCodeConflict},

	{integration.ErrInvalidMarketplace, dto.ErrCodeInvalidInput},
	{integration.ErrAdapterNotFound, dto.ErrCodeInvalidInput},
	{integration.ErrMarginOutOfRange, dto.ErrCodeInvalidInput},
	{integration.ErrRuleScopeMismatch, dto.ErrCodeInvalidInput},
	{integration.ErrInvalidRulePriority, dto.ErrCodeInvalidInput},
	{integration.ErrInvalidSyncType, dto.ErrCodeInvalidInput},
	{integration.ErrInvalidProductID, dto.ErrCodeInvalidInput},
	{integration.ErrInvalidExternalOrderID, dto.ErrCodeInvalidInput},
	{integration.ErrInvalidNotification, dto.ErrCodeInvalidInput},

	{integration.ErrConnectionNotUsable, dto.ErrCodeConflict},
	{integration.ErrInvalidConnectionTransition, dto.ErrCodeInvalidState},
	{integration.ErrQueueItemNotFailed, dto.ErrCodeInvalidState},
}

// Success responds 200 with data
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta responds 200 with a page of data
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize, totalPages int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize, totalPages))
}

// Created responds 201 with data
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Accepted responds 202 with data
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// NoContent responds 204
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error responds with an explicit status and code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BadRequest responds 400
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// BindJSON binds and validates a JSON body, writing the 400 response on failure
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

// BindQuery binds and validates query parameters, writing the 400 response on failure
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

// HandleError maps service errors to HTTP responses. Unknown errors are
// logged and reported as 500 without their message.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			h.Error(c, dto.GetHTTPStatus(m.code), m.code, err.Error())
			return
		}
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		h.Error(c, dto.GetHTTPStatus(code), code, domainErr.Message)
		return
	}

	var mErr *integration.MarketplaceError
	if errors.As(err, &mErr) {
		logger.L(c.Request.Context()).Warn("Marketplace call failed", zap.Error(err))
		h.Error(c, http.StatusBadGateway, dto.ErrCodeUnavailable, "Marketplace request failed")
		return
	}

	logger.L(c.Request.Context()).Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
}

// tenantID returns the tenant resolved by the tenant middleware
func (h *BaseHandler) tenantID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.GetTenantID(c)
	if !ok {
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Tenant is not resolved")
	}
	return id, ok
}

// marketplaceParam parses the :marketplace path parameter
func (h *BaseHandler) marketplaceParam(c *gin.Context) (integration.MarketplaceCode, bool) {
	code, err := integration.ParseMarketplaceCode(c.Param("marketplace"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "Unknown marketplace")
		return "", false
	}
	return code, true
}

// uuidParam parses a UUID path parameter
func (h *BaseHandler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

// successPage writes a page of results with its pagination meta
func successPage[T any](h *BaseHandler, c *gin.Context, page *appintegration.PageResult[T]) {
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize, page.TotalPages)
}
