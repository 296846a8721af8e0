package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/marketsync/internal/infrastructure/auth"
	"github.com/erp/marketsync/internal/infrastructure/config"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-that-is-long-enough-32"

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{Secret: testSecret, Issuer: "marketsync"})
}

func issueToken(t *testing.T, svc *auth.JWTService, tenantID uuid.UUID, ttl time.Duration, perms ...string) string {
	t.Helper()
	token, err := svc.GenerateAccessToken(auth.GenerateTokenInput{
		TenantID:    tenantID,
		UserID:      uuid.New(),
		Username:    "ops",
		Permissions: perms,
		TTL:         ttl,
	})
	require.NoError(t, err)
	return token
}

func newJWTEngine(cfg JWTMiddlewareConfig) *gin.Engine {
	r := gin.New()
	r.Use(JWTAuth(cfg))
	r.GET("/protected", func(c *gin.Context) {
		claims, ok := GetJWTClaims(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, claims.TenantID)
	})
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *dto.ErrorInfo {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestJWTAuth(t *testing.T) {
	svc := newTestJWTService()
	tenantID := uuid.New()

	tests := []struct {
		name       string
		header     string
		perm       string
		wantStatus int
		wantCode   string
	}{
		{"missing header", "", "", http.StatusUnauthorized, dto.ErrCodeUnauthorized},
		{"not bearer", "Basic abc", "", http.StatusUnauthorized, dto.ErrCodeUnauthorized},
		{"empty token", "Bearer ", "", http.StatusUnauthorized, dto.ErrCodeUnauthorized},
		{"garbage token", "Bearer not-a-jwt", "", http.StatusUnauthorized, dto.ErrCodeTokenInvalid},
		{"expired token", "Bearer " + issueToken(t, svc, tenantID, -time.Minute), "", http.StatusUnauthorized, dto.ErrCodeTokenExpired},
		{"missing permission", "Bearer " + issueToken(t, svc, tenantID, time.Hour), "integration:admin", http.StatusForbidden, dto.ErrCodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newJWTEngine(JWTMiddlewareConfig{Validator: svc, RequiredPermission: tt.perm})
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, w).Code)
		})
	}

	t.Run("valid token", func(t *testing.T) {
		r := newJWTEngine(JWTMiddlewareConfig{Validator: svc, RequiredPermission: "integration:admin"})
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set(AuthHeaderKey, "Bearer "+issueToken(t, svc, tenantID, time.Hour, "integration:admin"))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tenantID.String(), w.Body.String())
	})
}
