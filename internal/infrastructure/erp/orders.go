package erp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ensure OrderClient implements OrderSink
var _ integration.OrderSink = (*OrderClient)(nil)

type externalOrderItemDTO struct {
	ProductID *uuid.UUID      `json:"product_id,omitempty"`
	VariantID *uuid.UUID      `json:"variant_id,omitempty"`
	ListingID string          `json:"listing_id"`
	SKU       string          `json:"sku,omitempty"`
	Title     string          `json:"title"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type externalBuyerDTO struct {
	ExternalID string `json:"external_id"`
	Nickname   string `json:"nickname,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Email      string `json:"email,omitempty"`
}

type externalPaymentDTO struct {
	Status string          `json:"status"`
	Paid   bool            `json:"paid"`
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method,omitempty"`
}

type externalShippingDTO struct {
	ExternalID   string `json:"external_id,omitempty"`
	Status       string `json:"status,omitempty"`
	ReceiverName string `json:"receiver_name,omitempty"`
	AddressLine  string `json:"address_line,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	ZipCode      string `json:"zip_code,omitempty"`
}

type createExternalOrderRequest struct {
	Source          string                 `json:"source"`
	ExternalOrderID string                 `json:"external_order_id"`
	Buyer           externalBuyerDTO       `json:"buyer"`
	Items           []externalOrderItemDTO `json:"items"`
	Payment         externalPaymentDTO     `json:"payment"`
	Shipping        externalShippingDTO    `json:"shipping"`
	TotalAmount     decimal.Decimal        `json:"total_amount"`
	Currency        string                 `json:"currency"`
}

type createExternalOrderResponse struct {
	ID uuid.UUID `json:"id"`
}

// OrderClient creates sales orders in the ERP trade module
type OrderClient struct {
	client *Client
}

// NewOrderClient creates an order sink
func NewOrderClient(client *Client) *OrderClient {
	return &OrderClient{client: client}
}

// CreateOrderFromExternal creates a sales order for an imported marketplace order.
// The request carries an Idempotency-Key so a replay returns the existing order.
func (s *OrderClient) CreateOrderFromExternal(ctx context.Context, req *integration.ExternalOrderRequest) (uuid.UUID, error) {
	body := createExternalOrderRequest{
		Source:          string(req.Marketplace),
		ExternalOrderID: req.ExternalOrderID,
		Buyer: externalBuyerDTO{
			ExternalID: req.Buyer.ExternalID,
			Nickname:   req.Buyer.Nickname,
			FirstName:  req.Buyer.FirstName,
			LastName:   req.Buyer.LastName,
			Email:      req.Buyer.Email,
		},
		Items: make([]externalOrderItemDTO, 0, len(req.Items)),
		Payment: externalPaymentDTO{
			Status: req.Payment.Status,
			Paid:   req.Payment.Paid,
			Amount: req.Payment.Amount,
			Method: req.Payment.Method,
		},
		Shipping: externalShippingDTO{
			ExternalID:   req.Shipping.ExternalID,
			Status:       req.Shipping.Status,
			ReceiverName: req.Shipping.ReceiverName,
			AddressLine:  req.Shipping.AddressLine,
			City:         req.Shipping.City,
			State:        req.Shipping.State,
			ZipCode:      req.Shipping.ZipCode,
		},
		TotalAmount: req.Total,
		Currency:    req.Currency,
	}
	for _, item := range req.Items {
		body.Items = append(body.Items, externalOrderItemDTO{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			ListingID: item.ListingID,
			SKU:       item.SKU,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	headers := http.Header{}
	headers.Set("Idempotency-Key", req.IdempotencyKey())

	var created createExternalOrderResponse
	if _, err := s.client.call(ctx, req.TenantID, http.MethodPost, "/api/v1/trade/sales-orders/external", body, &created, headers); err != nil {
		return uuid.Nil, fmt.Errorf("create sales order for %s: %w", req.ExternalOrderID, err)
	}
	if created.ID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("create sales order for %s: %w", req.ExternalOrderID, ErrUnavailable)
	}

	s.client.logger.Info("Sales order created from marketplace order",
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("marketplace", string(req.Marketplace)),
		zap.String("external_order_id", req.ExternalOrderID),
		zap.String("order_id", created.ID.String()),
	)
	return created.ID, nil
}
