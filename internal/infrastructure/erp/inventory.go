package erp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ensure InventoryClient implements InventoryReader
var _ integration.InventoryReader = (*InventoryClient)(nil)

// inventoryItem is a per-warehouse stock row
type inventoryItem struct {
	ProductID         uuid.UUID       `json:"product_id"`
	WarehouseID       uuid.UUID       `json:"warehouse_id"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	LockedQuantity    decimal.Decimal `json:"locked_quantity"`
}

// InventoryClient reads sellable stock from the ERP inventory module
type InventoryClient struct {
	client *Client
}

// NewInventoryClient creates an inventory reader
func NewInventoryClient(client *Client) *InventoryClient {
	return &InventoryClient{client: client}
}

// GetSellableQuantity sums the available quantity of a product across warehouses.
// Available quantity already excludes locked (reserved) stock.
func (r *InventoryClient) GetSellableQuantity(ctx context.Context, tenantID, productID uuid.UUID, variantID *uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		query.Set("page_size", strconv.Itoa(listPageSize))
		if variantID != nil {
			query.Set("variant_id", variantID.String())
		}
		path := fmt.Sprintf("/api/v1/inventory/products/%s/items?%s", productID, query.Encode())

		var items []inventoryItem
		meta, err := r.client.call(ctx, tenantID, http.MethodGet, path, nil, &items, nil)
		if err != nil {
			return decimal.Zero, fmt.Errorf("get inventory for product %s: %w", productID, err)
		}
		for _, item := range items {
			if item.AvailableQuantity.IsPositive() {
				total = total.Add(item.AvailableQuantity)
			}
		}
		if !hasMore(meta, page, len(items)) {
			break
		}
	}

	r.client.logger.Debug("Sellable quantity",
		zap.String("tenant_id", tenantID.String()),
		zap.String("product_id", productID.String()),
		zap.String("quantity", total.String()),
	)
	return total, nil
}
