package handler

import (
	"context"
	"errors"
	"net/http"

	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/logger"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NotificationParser resolves a webhook notification to an order import
type NotificationParser interface {
	ParseNotification(ctx context.Context, marketplace integration.MarketplaceCode, n appintegration.Notification) (*appintegration.OrderImportRequest, error)
}

// NotificationSubmitter queues an order import off the request path
type NotificationSubmitter interface {
	Submit(ctx context.Context, req *appintegration.OrderImportRequest) error
}

// WebhookHandler receives marketplace notifications
type WebhookHandler struct {
	BaseHandler
	parser     NotificationParser
	dispatcher NotificationSubmitter
}

// NewWebhookHandler creates a WebhookHandler
func NewWebhookHandler(parser NotificationParser, dispatcher NotificationSubmitter) *WebhookHandler {
	return &WebhookHandler{parser: parser, dispatcher: dispatcher}
}

// Receive handles POST /webhooks/:marketplace. It always answers 200 so the
// marketplace does not retry or disable the subscription; missed imports are
// recovered by the order poller.
func (h *WebhookHandler) Receive(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.L(ctx).With(zap.String("marketplace", c.Param("marketplace")))
	defer c.Status(http.StatusOK)

	marketplace, err := integration.ParseMarketplaceCode(c.Param("marketplace"))
	if err != nil {
		log.Debug("Webhook for unknown marketplace ignored")
		return
	}

	var n appintegration.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		log.Debug("Malformed webhook body ignored", zap.Error(err))
		return
	}

	req, err := h.parser.ParseNotification(ctx, marketplace, n)
	if err != nil {
		if errors.Is(err, integration.ErrInvalidNotification) || errors.Is(err, integration.ErrConnectionNotFound) {
			log.Debug("Webhook notification ignored", zap.String("topic", n.Topic), zap.Error(err))
			return
		}
		log.Warn("Webhook notification could not be resolved", zap.String("topic", n.Topic), zap.Error(err))
		return
	}
	if req == nil {
		return
	}

	switch err := h.dispatcher.Submit(ctx, req); {
	case err == nil, errors.Is(err, scheduler.ErrDuplicateNotification):
	default:
		log.Warn("Webhook notification not queued",
			zap.String("external_order_id", req.ExternalOrderID),
			zap.Error(err),
		)
	}
}
