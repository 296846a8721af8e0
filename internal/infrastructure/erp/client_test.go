package erp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/erp/marketsync/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testTenantID = uuid.MustParse("11111111-1111-1111-1111-111111111111")

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.ERPConfig{
		BaseURL:      server.URL + "/",
		ServiceToken: "svc-token",
	}, WithHTTPClient(server.Client()), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return client
}

func writeEnvelope(w http.ResponseWriter, status int, data any, meta map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{"success": status < 400, "data": data}
	if meta != nil {
		body["meta"] = meta
	}
	_ = json.NewEncoder(w).Encode(body)
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(config.ERPConfig{})
	assert.Error(t, err)
}

func TestClient_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "not found is a domain error",
			status: http.StatusNotFound,
			body:   `{"success":false,"error":{"code":"NOT_FOUND","message":"product not found"}}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNotFound)
				var domainErr *shared.DomainError
				assert.True(t, errors.As(err, &domainErr))
			},
		},
		{
			name:   "server error is unavailable",
			status: http.StatusBadGateway,
			body:   `bad gateway`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrUnavailable)
			},
		},
		{
			name:   "rejected service token is unavailable",
			status: http.StatusUnauthorized,
			body:   `{"success":false,"error":{"code":"UNAUTHORIZED","message":"bad token"}}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrUnavailable)
			},
		},
		{
			name:   "validation failure carries the ERP code",
			status: http.StatusUnprocessableEntity,
			body:   `{"success":false,"error":{"code":"INSUFFICIENT_STOCK","message":"not enough stock"}}`,
			check: func(t *testing.T, err error) {
				var domainErr *shared.DomainError
				require.True(t, errors.As(err, &domainErr))
				assert.Equal(t, "INSUFFICIENT_STOCK", domainErr.Code)
			},
		},
		{
			name:   "unsuccessful 200 is a domain error",
			status: http.StatusOK,
			body:   `{"success":false}`,
			check: func(t *testing.T, err error) {
				var domainErr *shared.DomainError
				assert.True(t, errors.As(err, &domainErr))
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := client.call(context.Background(), testTenantID, http.MethodGet, "/api/v1/x", nil, nil, nil)
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestInventoryClient_GetSellableQuantity(t *testing.T) {
	productID := uuid.New()
	variantID := uuid.New()
	var pages []string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/inventory/products/"+productID.String()+"/items", r.URL.Path)
		assert.Equal(t, testTenantID.String(), r.Header.Get("X-Tenant-ID"))
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))
		assert.Equal(t, variantID.String(), r.URL.Query().Get("variant_id"))

		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		if page == "1" {
			items := make([]map[string]any, listPageSize)
			for i := range items {
				items[i] = map[string]any{"product_id": productID, "available_quantity": "1", "locked_quantity": "2"}
			}
			writeEnvelope(w, http.StatusOK, items, map[string]any{"total": listPageSize + 2, "page": 1, "page_size": listPageSize})
			return
		}
		writeEnvelope(w, http.StatusOK, []map[string]any{
			{"product_id": productID, "available_quantity": "3.5"},
			{"product_id": productID, "available_quantity": "-4"},
		}, map[string]any{"total": listPageSize + 2, "page": 2, "page_size": listPageSize})
	})

	qty, err := NewInventoryClient(client).GetSellableQuantity(context.Background(), testTenantID, productID, &variantID)
	require.NoError(t, err)
	assert.True(t, qty.Equal(decimal.RequireFromString("103.5")), qty.String())
	assert.Equal(t, []string{"1", "2"}, pages)
}

func TestCatalogClient_GetProduct(t *testing.T) {
	productID := uuid.New()
	categoryID := uuid.New()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/catalog/products/" + productID.String():
			writeEnvelope(w, http.StatusOK, map[string]any{
				"id":             productID,
				"code":           "MUG-001",
				"name":           "Coffee mug",
				"category_id":    categoryID,
				"selling_price":  "19.90",
				"purchase_price": "7.50",
			}, nil)
		case "/api/v1/catalog/products/" + productID.String() + "/attachments":
			writeEnvelope(w, http.StatusOK, []map[string]any{
				{"type": "gallery_image", "status": "active", "storage_key": "g2", "sort_order": 2},
				{"type": "document", "status": "active", "storage_key": "manual.pdf"},
				{"type": "gallery_image", "status": "active", "storage_key": "g1", "sort_order": 1},
				{"type": "gallery_image", "status": "deleted", "storage_key": "gone"},
				{"type": "main_image", "status": "active", "storage_key": "main"},
			}, nil)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	info, err := NewCatalogClient(client).GetProduct(context.Background(), testTenantID, productID)
	require.NoError(t, err)
	assert.Equal(t, productID, info.ID)
	assert.Equal(t, &categoryID, info.CategoryID)
	assert.Equal(t, "MUG-001", info.SKU)
	assert.True(t, info.Price.Equal(decimal.RequireFromString("19.9")))
	assert.True(t, info.Cost.Equal(decimal.RequireFromString("7.5")))
	assert.Equal(t, []string{"main", "g1", "g2"}, info.PictureKeys)
}

func TestCatalogClient_GetProduct_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, nil, nil)
	})
	_, err := NewCatalogClient(client).GetProduct(context.Background(), testTenantID, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalogClient_ListProductIDs(t *testing.T) {
	categoryID := uuid.New()
	ids := make([]uuid.UUID, listPageSize+1)
	for i := range ids {
		ids[i] = uuid.New()
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/catalog/categories/"+categoryID.String()+"/products", r.URL.Path)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		start := (page - 1) * listPageSize
		end := min(start+listPageSize, len(ids))
		refs := make([]map[string]any, 0, end-start)
		for _, id := range ids[start:end] {
			refs = append(refs, map[string]any{"id": id})
		}
		writeEnvelope(w, http.StatusOK, refs, map[string]any{"total": len(ids), "page": page, "page_size": listPageSize})
	})

	got, err := NewCatalogClient(client).ListProductIDs(context.Background(), testTenantID, &categoryID)
	require.NoError(t, err)
	assert.Equal(t, ids, got)
}

func TestOrderClient_CreateOrderFromExternal(t *testing.T) {
	orderID := uuid.New()
	productID := uuid.New()
	req := &integration.ExternalOrderRequest{
		TenantID:        testTenantID,
		Marketplace:     integration.MarketplaceMercadoLibre,
		ExternalOrderID: "2000001",
		Buyer:           integration.ExternalBuyer{ExternalID: "99", Nickname: "buyer"},
		Items: []integration.ExternalOrderLine{{
			ProductID: &productID,
			ListingID: "MLB1",
			Title:     "Coffee mug",
			Quantity:  decimal.NewFromInt(2),
			UnitPrice: decimal.RequireFromString("19.90"),
		}},
		Payment:  integration.ExternalPaymentSummary{Status: "approved", Paid: true, Amount: decimal.RequireFromString("39.80")},
		Total:    decimal.RequireFromString("39.80"),
		Currency: "BRL",
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/trade/sales-orders/external", r.URL.Path)
		assert.Equal(t, req.IdempotencyKey(), r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body createExternalOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "MERCADOLIBRE", body.Source)
		assert.Equal(t, "2000001", body.ExternalOrderID)
		require.Len(t, body.Items, 1)
		assert.Equal(t, &productID, body.Items[0].ProductID)
		assert.True(t, body.Payment.Paid)

		writeEnvelope(w, http.StatusCreated, map[string]any{"id": orderID}, nil)
	})

	got, err := NewOrderClient(client).CreateOrderFromExternal(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, orderID, got)
}
