package middleware

import (
	"net/http"

	"github.com/erp/marketsync/internal/infrastructure/logger"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Tenant context keys
const (
	TenantIDKey     = "tenant_id"
	TenantUUIDKey   = "tenant_uuid"
	TenantIDHeader  = "X-Tenant-ID"
	maxTenantIDSize = 64
)

// TenantMiddleware resolves the tenant of an admin request. The tenant in the
// JWT claims wins; an X-Tenant-ID header naming a different tenant is rejected.
// Without claims the header is required.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(TenantIDHeader)

		var raw string
		if claims, ok := GetJWTClaims(c); ok {
			raw = claims.TenantID
			if header != "" && header != raw {
				abortTenant(c, http.StatusForbidden, dto.ErrCodeForbidden, "Tenant does not match token")
				return
			}
		} else {
			raw = header
		}

		if raw == "" {
			abortTenant(c, http.StatusBadRequest, dto.ErrCodeBadRequest, "Tenant ID is required")
			return
		}
		if len(raw) > maxTenantIDSize {
			abortTenant(c, http.StatusBadRequest, dto.ErrCodeBadRequest, "Invalid tenant ID")
			return
		}
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			abortTenant(c, http.StatusBadRequest, dto.ErrCodeBadRequest, "Invalid tenant ID")
			return
		}

		c.Set(TenantIDKey, tenantID.String())
		c.Set(TenantUUIDKey, tenantID)

		ctx, _ := logger.WithTenantID(c.Request.Context(), logger.FromContext(c.Request.Context()), tenantID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetTenantID returns the tenant resolved by TenantMiddleware
func GetTenantID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(TenantUUIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

func abortTenant(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}
