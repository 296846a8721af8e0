package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultReservationTimeout is how long an unmaterialized import blocks other importers
	DefaultReservationTimeout = 2 * time.Minute
	// DefaultPollPageSize is the page size of order searches
	DefaultPollPageSize = 50
)

// orderTopics are the notification topics that carry orders
var orderTopics = map[string]bool{
	"orders":    true,
	"orders_v2": true,
}

// FlexibleID is an identifier sent either as a JSON number or a JSON string
type FlexibleID string

// UnmarshalJSON accepts 123, "123" and null
func (id *FlexibleID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*id = ""
		return nil
	}
	*id = FlexibleID(strings.Trim(s, `"`))
	return nil
}

// Notification is a marketplace webhook delivery
type Notification struct {
	Resource      string     `json:"resource"`
	Topic         string     `json:"topic"`
	UserID        FlexibleID `json:"user_id"`
	ApplicationID FlexibleID `json:"application_id,omitempty"`
	Attempts      int        `json:"attempts"`
	Sent          time.Time  `json:"sent"`
	Received      time.Time  `json:"received"`
}

func (n *Notification) normalize() {
	n.Resource = strings.TrimSpace(n.Resource)
	n.Topic = strings.ToLower(strings.TrimSpace(n.Topic))
	n.UserID = FlexibleID(strings.TrimSpace(string(n.UserID)))
}

// OrderImportRequest is a resolved request to import one order
type OrderImportRequest struct {
	TenantID        uuid.UUID
	Marketplace     integration.MarketplaceCode
	ExternalOrderID string
	Attempts        int
}

// Key identifies the order for notification coalescing
func (r *OrderImportRequest) Key() string {
	return fmt.Sprintf("%s:%s:%s", r.Marketplace, r.TenantID, r.ExternalOrderID)
}

// ImportResult is the outcome of an import
type ImportResult struct {
	Order   *integration.MarketplaceOrder
	Created bool
	Changed bool
}

// PollResult summarizes one polling pass over a connection
type PollResult struct {
	Fetched  int
	Imported int
	Updated  int
	Failed   int
}

// OrderImportService idempotently materializes marketplace orders into the
// tenant's sales records.
type OrderImportService struct {
	connections        integration.ConnectionRepository
	orders             integration.MarketplaceOrderRepository
	listings           integration.ListingRepository
	tokens             TokenProvider
	adapters           integration.AdapterRegistry
	sink               integration.OrderSink
	metrics            MetricsRecorder
	reservationTimeout time.Duration
	pageSize           int
	logger             *zap.Logger
	clock              func() time.Time
}

// NewOrderImportService creates a new OrderImportService
func NewOrderImportService(
	connections integration.ConnectionRepository,
	orders integration.MarketplaceOrderRepository,
	listings integration.ListingRepository,
	tokens TokenProvider,
	adapters integration.AdapterRegistry,
	sink integration.OrderSink,
	logger *zap.Logger,
) *OrderImportService {
	return &OrderImportService{
		connections:        connections,
		orders:             orders,
		listings:           listings,
		tokens:             tokens,
		adapters:           adapters,
		sink:               sink,
		metrics:            noopMetrics{},
		reservationTimeout: DefaultReservationTimeout,
		pageSize:           DefaultPollPageSize,
		logger:             logger,
		clock:              time.Now,
	}
}

// UseMetrics attaches a metrics recorder
func (s *OrderImportService) UseMetrics(m MetricsRecorder) {
	s.metrics = metricsOrNoop(m)
}

// ---------------------------------------------------------------------------
// Webhook path
// ---------------------------------------------------------------------------

// ParseNotification validates a webhook delivery and resolves its tenant.
// It returns (nil, nil) for topics that do not carry orders.
func (s *OrderImportService) ParseNotification(ctx context.Context, marketplace integration.MarketplaceCode, n Notification) (*OrderImportRequest, error) {
	n.normalize()
	if n.Resource == "" || n.UserID == "" || n.Topic == "" {
		return nil, integration.ErrInvalidNotification
	}
	if !orderTopics[n.Topic] {
		return nil, nil
	}

	orderID, err := orderIDFromResource(n.Resource)
	if err != nil {
		return nil, err
	}

	conn, err := s.connections.FindByExternalUserID(ctx, marketplace, string(n.UserID))
	if err != nil {
		return nil, err
	}

	return &OrderImportRequest{
		TenantID:        conn.TenantID,
		Marketplace:     marketplace,
		ExternalOrderID: orderID,
		Attempts:        n.Attempts,
	}, nil
}

// HandleNotification imports the order a notification refers to
func (s *OrderImportService) HandleNotification(ctx context.Context, req *OrderImportRequest) (*ImportResult, error) {
	return s.ImportOrder(ctx, req.TenantID, req.Marketplace, req.ExternalOrderID)
}

// orderIDFromResource extracts the order ID from "/orders/{id}"
func orderIDFromResource(resource string) (string, error) {
	parts := strings.Split(strings.Trim(resource, "/"), "/")
	if len(parts) < 2 || parts[0] != "orders" || parts[1] == "" {
		return "", fmt.Errorf("%w: unexpected resource %q", integration.ErrInvalidNotification, resource)
	}
	return parts[1], nil
}

// ---------------------------------------------------------------------------
// Idempotent core
// ---------------------------------------------------------------------------

// ImportOrder fetches an order from the marketplace and materializes it once.
// Repeated imports only refresh the payment and shipping sub-statuses.
func (s *OrderImportService) ImportOrder(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, externalOrderID string) (*ImportResult, error) {
	if externalOrderID == "" {
		return nil, integration.ErrInvalidExternalOrderID
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "OrderImportService", "ImportOrder",
		telemetry.WithAttribute("marketplace", marketplace.String()),
		telemetry.WithAttribute("external_order_id", externalOrderID),
	)
	defer span.End()
	ctx = integration.WithAccount(ctx, tenantID, marketplace)

	token, err := s.tokens.GetValidToken(ctx, tenantID, marketplace)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	adapter, err := s.adapters.Get(marketplace)
	if err != nil {
		return nil, err
	}

	result, err := s.fetchAndImport(ctx, adapter, token, tenantID, marketplace, externalOrderID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// fetchAndImport loads the full order by id before persisting it; search
// results are summaries and never reach importFetched directly.
func (s *OrderImportService) fetchAndImport(ctx context.Context, adapter integration.MarketplaceAdapter, token string, tenantID uuid.UUID, marketplace integration.MarketplaceCode, externalOrderID string) (*ImportResult, error) {
	order, err := adapter.GetOrder(ctx, token, externalOrderID)
	if err != nil {
		s.handleAdapterError(ctx, tenantID, marketplace, err)
		return nil, fmt.Errorf("get order %s: %w", externalOrderID, err)
	}
	return s.importFetched(ctx, tenantID, marketplace, order)
}

// importFetched persists a fetched order. A MarketplaceOrder row without an
// internal order is a reservation held by an in-flight import; once older
// than the reservation timeout it is taken over.
func (s *OrderImportService) importFetched(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, order *integration.ExternalOrder) (*ImportResult, error) {
	log := s.logger.With(
		zap.String("tenant_id", tenantID.String()),
		zap.String("marketplace", marketplace.String()),
		zap.String("external_order_id", order.ExternalID),
	)

	for range 2 {
		existing, err := s.orders.FindByExternalID(ctx, tenantID, marketplace, order.ExternalID)
		switch {
		case err == nil && existing.IsMaterialized():
			changed := existing.ApplyExternalUpdate(order, s.clock())
			if changed {
				if err := s.orders.Update(ctx, existing); err != nil {
					return nil, err
				}
				log.Info("marketplace order updated",
					zap.String("status", existing.Status.String()),
					zap.String("payment_status", existing.PaymentStatus),
				)
			}
			s.metrics.RecordOrderImport(ctx, marketplace.String(), false)
			return &ImportResult{Order: existing, Changed: changed}, nil

		case err == nil:
			if s.clock().Sub(existing.CreatedAt) < s.reservationTimeout {
				return nil, integration.ErrOrderImportInProgress
			}
			log.Warn("taking over stale order import reservation")
			return s.materialize(ctx, existing, order, log)

		case !errors.Is(err, integration.ErrMarketplaceOrderNotFound):
			return nil, err
		}

		record, err := integration.NewMarketplaceOrder(tenantID, marketplace, order)
		if err != nil {
			return nil, err
		}
		if err := s.orders.Create(ctx, record); err != nil {
			if errors.Is(err, integration.ErrMarketplaceOrderExists) {
				continue
			}
			return nil, err
		}
		return s.materialize(ctx, record, order, log)
	}
	return nil, integration.ErrOrderImportInProgress
}

// materialize creates the internal sales order for a reserved record and
// attaches its ID. A rejected order releases the reservation.
func (s *OrderImportService) materialize(ctx context.Context, record *integration.MarketplaceOrder, order *integration.ExternalOrder, log *zap.Logger) (*ImportResult, error) {
	req, err := s.buildRequest(ctx, record.TenantID, record.Marketplace, order)
	if err != nil {
		s.release(ctx, record, log)
		return nil, err
	}

	internalID, err := s.sink.CreateOrderFromExternal(ctx, req)
	if err != nil {
		s.release(ctx, record, log)
		return nil, fmt.Errorf("create internal order: %w", err)
	}

	record.AttachInternalOrder(internalID)
	record.ApplyExternalUpdate(order, s.clock())
	if err := s.orders.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("attach internal order %s: %w", internalID, err)
	}

	log.Info("marketplace order imported",
		zap.String("internal_order_id", internalID.String()),
		zap.Bool("paid", req.Payment.Paid),
		zap.Int("items", len(req.Items)),
	)
	s.metrics.RecordOrderImport(ctx, record.Marketplace.String(), true)
	return &ImportResult{Order: record, Created: true, Changed: true}, nil
}

func (s *OrderImportService) release(ctx context.Context, record *integration.MarketplaceOrder, log *zap.Logger) {
	if err := s.orders.Delete(context.WithoutCancel(ctx), record.TenantID, record.ID); err != nil {
		log.Error("failed to release order import reservation", zap.Error(err))
	}
}

// buildRequest maps a marketplace order onto the order-creation contract.
// Lines whose listing is unknown are passed with their SKU only.
func (s *OrderImportService) buildRequest(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, order *integration.ExternalOrder) (*integration.ExternalOrderRequest, error) {
	lines := make([]integration.ExternalOrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		line := integration.ExternalOrderLine{
			ListingID: item.ListingID,
			SKU:       item.SKU,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}

		listing, err := s.listings.FindByExternalID(ctx, tenantID, marketplace, item.ListingID)
		switch {
		case err == nil:
			productID := listing.ProductID
			line.ProductID = &productID
			line.VariantID = listing.VariantID
		case errors.Is(err, integration.ErrListingNotFound):
			s.logger.Warn("order line references an unknown listing",
				zap.String("tenant_id", tenantID.String()),
				zap.String("external_order_id", order.ExternalID),
				zap.String("listing_id", item.ListingID),
			)
		default:
			return nil, err
		}
		lines = append(lines, line)
	}

	var method string
	if len(order.Payments) > 0 {
		method = order.Payments[0].Method
	}

	return &integration.ExternalOrderRequest{
		TenantID:        tenantID,
		Marketplace:     marketplace,
		ExternalOrderID: order.ExternalID,
		Buyer:           order.Buyer,
		Items:           lines,
		Payment: integration.ExternalPaymentSummary{
			Status: order.PaymentStatus(),
			Paid:   order.IsPaid(),
			Amount: order.PaidAmount(),
			Method: method,
		},
		Shipping: order.Shipping,
		Total:    order.Total,
		Currency: order.Currency,
	}, nil
}

func (s *OrderImportService) handleAdapterError(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, err error) {
	if !integration.IsAuthError(err) || errors.Is(err, integration.ErrConnectionNotUsable) {
		return
	}
	if markErr := s.tokens.MarkAuthFailure(ctx, tenantID, marketplace, err.Error()); markErr != nil {
		s.logger.Error("failed to mark connection error", zap.Error(markErr))
	}
}

// ---------------------------------------------------------------------------
// Polling path
// ---------------------------------------------------------------------------

// PollConnection imports the orders of one connection changed since the given time.
// Each order found by the search is fetched in full and imported like a
// webhook delivery.
func (s *OrderImportService) PollConnection(ctx context.Context, conn *integration.Connection, since time.Time) (PollResult, error) {
	var result PollResult
	ctx = integration.WithAccount(ctx, conn.TenantID, conn.Marketplace)

	token, err := s.tokens.GetValidToken(ctx, conn.TenantID, conn.Marketplace)
	if err != nil {
		return result, err
	}
	adapter, err := s.adapters.Get(conn.Marketplace)
	if err != nil {
		return result, err
	}

	search := integration.OrderSearch{SellerID: conn.ExternalUserID, Since: since, Limit: s.pageSize}
	for {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		page, err := adapter.SearchOrders(ctx, token, search)
		if err != nil {
			s.handleAdapterError(ctx, conn.TenantID, conn.Marketplace, err)
			return result, fmt.Errorf("search orders: %w", err)
		}

		for i := range page.Orders {
			result.Fetched++
			res, err := s.fetchAndImport(ctx, adapter, token, conn.TenantID, conn.Marketplace, page.Orders[i].ExternalID)
			switch {
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				return result, err
			case err != nil:
				result.Failed++
				s.logger.Warn("order import failed during poll",
					zap.String("tenant_id", conn.TenantID.String()),
					zap.String("external_order_id", page.Orders[i].ExternalID),
					zap.Error(err),
				)
			case res.Created:
				result.Imported++
			case res.Changed:
				result.Updated++
			}
		}

		if !page.HasMore() || len(page.Orders) == 0 {
			return result, nil
		}
		search.Offset = page.Offset + len(page.Orders)
	}
}

// ListOrders returns a page of imported orders
func (s *OrderImportService) ListOrders(ctx context.Context, tenantID uuid.UUID, q ListQuery) (*PageResult[MarketplaceOrderResponse], error) {
	marketplace, err := parseOptionalMarketplace(q.Marketplace)
	if err != nil {
		return nil, err
	}
	page, pageSize := normalizePage(q.Page, q.PageSize)

	orders, total, err := s.orders.List(ctx, integration.MarketplaceOrderFilter{
		TenantID:    tenantID,
		Marketplace: marketplace,
		Status:      integration.MarketplaceOrderStatus(q.Status),
		Page:        page,
		PageSize:    pageSize,
	})
	if err != nil {
		return nil, err
	}

	out := make([]MarketplaceOrderResponse, len(orders))
	for i := range orders {
		out[i] = ToMarketplaceOrderResponse(&orders[i])
	}
	return newPageResult(out, total, page, pageSize), nil
}
