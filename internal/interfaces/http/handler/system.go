package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// HealthCheck reports whether one dependency is reachable
type HealthCheck func(ctx context.Context) error

// SystemHandler serves liveness, readiness and build information
type SystemHandler struct {
	BaseHandler
	version      string
	startTime    time.Time
	checks       map[string]HealthCheck
	checkTimeout time.Duration
}

// NewSystemHandler creates a SystemHandler. checks are run by Ready.
func NewSystemHandler(version string, checks map[string]HealthCheck) *SystemHandler {
	return &SystemHandler{
		version:      version,
		startTime:    time.Now(),
		checks:       checks,
		checkTimeout: 3 * time.Second,
	}
}

// SystemInfoResponse is the body of GET /system/info
type SystemInfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// GetSystemInfo handles GET /system/info
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	h.Success(c, SystemInfoResponse{
		Name:      "marketsync",
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Health handles GET /health. It only reports that the process serves requests.
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Ready handles GET /ready by running every dependency check concurrently
func (h *SystemHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.checkTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	outcomes := make([]error, len(names))

	var g errgroup.Group
	for i, name := range names {
		check := h.checks[name]
		g.Go(func() error {
			outcomes[i] = check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]string, len(names))
	ready := true
	for i, name := range names {
		if outcomes[i] != nil {
			results[name] = "unavailable"
			ready = false
			continue
		}
		results[name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, dto.Response{
			Success: false,
			Data:    gin.H{"status": "not_ready", "checks": results},
			Error:   &dto.ErrorInfo{Code: dto.ErrCodeUnavailable, Message: "Dependencies unavailable"},
		})
		return
	}
	h.Success(c, gin.H{"status": "ready", "checks": results})
}
