package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/erp/marketsync/internal/infrastructure/auth"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// JWT context keys
const (
	JWTClaimsKey   = "jwt_claims"
	JWTUserIDKey   = "jwt_user_id"
	JWTTenantIDKey = "jwt_tenant_id"
	AuthHeaderKey  = "Authorization"
	BearerPrefix   = "Bearer "
)

// TokenValidator validates bearer access tokens
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// JWTMiddlewareConfig holds configuration for JWT middleware
type JWTMiddlewareConfig struct {
	Validator TokenValidator
	// RequiredPermission, when set, must be present in the token
	RequiredPermission string
	Logger             *zap.Logger
}

// JWTAuth authenticates the bearer token and stores its claims in the context
func JWTAuth(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		header := c.GetHeader(AuthHeaderKey)
		if header == "" {
			abortAuth(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Authorization header is required")
			return
		}
		if !strings.HasPrefix(header, BearerPrefix) {
			abortAuth(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Invalid authorization header format")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
		if token == "" {
			abortAuth(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Token is required")
			return
		}

		claims, err := cfg.Validator.ValidateAccessToken(token)
		if err != nil {
			log.Debug("Token validation failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
			if errors.Is(err, auth.ErrExpiredToken) {
				abortAuth(c, http.StatusUnauthorized, dto.ErrCodeTokenExpired, "Token has expired")
				return
			}
			abortAuth(c, http.StatusUnauthorized, dto.ErrCodeTokenInvalid, "Invalid token")
			return
		}

		if cfg.RequiredPermission != "" && !claims.HasPermission(cfg.RequiredPermission) {
			abortAuth(c, http.StatusForbidden, dto.ErrCodeForbidden, "Insufficient permissions")
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTUserIDKey, claims.UserID)
		c.Set(JWTTenantIDKey, claims.TenantID)
		c.Next()
	}
}

// GetJWTClaims returns the claims stored by JWTAuth
func GetJWTClaims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(JWTClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

func abortAuth(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}
