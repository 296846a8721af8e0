package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newTenantEngine(withJWT bool) *gin.Engine {
	r := gin.New()
	if withJWT {
		r.Use(JWTAuth(JWTMiddlewareConfig{Validator: newTestJWTService()}))
	}
	r.Use(TenantMiddleware())
	r.GET("/t", func(c *gin.Context) {
		id, ok := GetTenantID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, id.String())
	})
	return r
}

func TestTenantMiddleware_Header(t *testing.T) {
	r := newTenantEngine(false)
	tenantID := uuid.New()

	t.Run("valid header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/t", nil)
		req.Header.Set(TenantIDHeader, tenantID.String())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tenantID.String(), w.Body.String())
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("not a uuid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/t", nil)
		req.Header.Set(TenantIDHeader, "tenant-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTenantMiddleware_Claims(t *testing.T) {
	r := newTenantEngine(true)
	tenantID := uuid.New()
	token := issueToken(t, newTestJWTService(), tenantID, time.Hour)

	t.Run("claims tenant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/t", nil)
		req.Header.Set(AuthHeaderKey, "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tenantID.String(), w.Body.String())
	})

	t.Run("matching header accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/t", nil)
		req.Header.Set(AuthHeaderKey, "Bearer "+token)
		req.Header.Set(TenantIDHeader, tenantID.String())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("other tenant header rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/t", nil)
		req.Header.Set(AuthHeaderKey, "Bearer "+token)
		req.Header.Set(TenantIDHeader, uuid.NewString())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
