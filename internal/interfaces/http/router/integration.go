package router

import (
	"github.com/erp/marketsync/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
)

// IntegrationHandlers are the handlers mounted under /integration
type IntegrationHandlers struct {
	Connection   *handler.ConnectionHandler
	Webhook      *handler.WebhookHandler
	SafetyMargin *handler.SafetyMarginHandler
	Sync         *handler.SyncHandler
	Listing      *handler.ListingHandler
	StockEvent   *handler.StockEventHandler
}

// IntegrationMiddleware are the middleware chains of the two route classes
type IntegrationMiddleware struct {
	// Admin authenticates the operator and resolves the tenant
	Admin []gin.HandlerFunc
	// Webhook protects the public notification endpoint
	Webhook []gin.HandlerFunc
}

// NewIntegrationRoutes builds the /integration group. OAuth callbacks and
// webhooks are public; everything else requires the admin chain.
func NewIntegrationRoutes(h IntegrationHandlers, mw IntegrationMiddleware) *DomainGroup {
	root := NewDomainGroup("/integration")

	root.Group("/oauth").
		GET("/:marketplace/callback", h.Connection.Callback)

	root.Group("/webhooks").
		Use(mw.Webhook...).
		POST("/:marketplace", h.Webhook.Receive)

	admin := root.Group("").Use(mw.Admin...)

	admin.Group("/connections").
		GET("/:marketplace", h.Connection.GetConnection).
		POST("/:marketplace/authorize", h.Connection.Authorize).
		POST("/:marketplace/refresh", h.Connection.Refresh).
		DELETE("/:marketplace", h.Connection.Disconnect)

	admin.Group("/safety-margins").
		GET("", h.SafetyMargin.List).
		POST("", h.SafetyMargin.Create).
		GET("/:id", h.SafetyMargin.Get).
		PUT("/:id", h.SafetyMargin.Update).
		DELETE("/:id", h.SafetyMargin.Delete)

	admin.Group("/sync").
		POST("/resync", h.Sync.Resync).
		GET("/queue", h.Sync.ListQueue).
		GET("/queue/stats", h.Sync.Stats).
		POST("/queue/:id/retry", h.Sync.Retry).
		GET("/logs", h.Sync.ListLogs)

	admin.Group("/listings").
		GET("", h.Listing.ListListings)

	admin.Group("/orders").
		GET("", h.Listing.ListOrders).
		POST("/import", h.Listing.ImportOrder)

	admin.Group("/stock-events").
		POST("", h.StockEvent.Publish)

	return root
}

// SystemRoutes registers the probes at the engine root
func SystemRoutes(engine *gin.Engine, h *handler.SystemHandler) {
	engine.GET("/health", h.Health)
	engine.GET("/ready", h.Ready)
	engine.GET("/api/v1/system/info", h.GetSystemInfo)
}
