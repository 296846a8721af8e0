package erp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ensure CatalogClient implements the catalog ports
var (
	_ integration.CatalogReader = (*CatalogClient)(nil)
	_ integration.ProductScope  = (*CatalogClient)(nil)
)

// Attachment types and statuses as exposed by the catalog module
const (
	attachmentTypeMainImage    = "main_image"
	attachmentTypeGalleryImage = "gallery_image"
	attachmentStatusActive     = "active"
)

type productResponse struct {
	ID            uuid.UUID        `json:"id"`
	Code          string           `json:"code"`
	Name          string           `json:"name"`
	CategoryID    *uuid.UUID       `json:"category_id"`
	SellingPrice  decimal.Decimal  `json:"selling_price"`
	PurchasePrice *decimal.Decimal `json:"purchase_price"`
}

type productRef struct {
	ID uuid.UUID `json:"id"`
}

type attachmentResponse struct {
	Type       string `json:"type"`
	Status     string `json:"status"`
	StorageKey string `json:"storage_key"`
	SortOrder  int    `json:"sort_order"`
}

// CatalogClient reads products and their pictures from the ERP catalog module
type CatalogClient struct {
	client *Client
}

// NewCatalogClient creates a catalog reader
func NewCatalogClient(client *Client) *CatalogClient {
	return &CatalogClient{client: client}
}

// GetProduct loads a product with its active picture keys, main image first
func (r *CatalogClient) GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (*integration.ProductInfo, error) {
	var product productResponse
	path := fmt.Sprintf("/api/v1/catalog/products/%s", productID)
	if _, err := r.client.call(ctx, tenantID, http.MethodGet, path, nil, &product, nil); err != nil {
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}

	var attachments []attachmentResponse
	if _, err := r.client.call(ctx, tenantID, http.MethodGet, path+"/attachments", nil, &attachments, nil); err != nil {
		return nil, fmt.Errorf("get attachments of product %s: %w", productID, err)
	}

	info := &integration.ProductInfo{
		ID:          product.ID,
		CategoryID:  product.CategoryID,
		SKU:         product.Code,
		Name:        product.Name,
		Price:       product.SellingPrice,
		Cost:        decimal.Zero,
		PictureKeys: pictureKeys(attachments),
	}
	if product.PurchasePrice != nil {
		info.Cost = *product.PurchasePrice
	}
	return info, nil
}

// ListProductIDs walks the product list of a tenant, optionally within one category
func (r *CatalogClient) ListProductIDs(ctx context.Context, tenantID uuid.UUID, categoryID *uuid.UUID) ([]uuid.UUID, error) {
	base := "/api/v1/catalog/products"
	if categoryID != nil {
		base = fmt.Sprintf("/api/v1/catalog/categories/%s/products", categoryID)
	}

	var ids []uuid.UUID
	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		query.Set("page_size", strconv.Itoa(listPageSize))

		var refs []productRef
		meta, err := r.client.call(ctx, tenantID, http.MethodGet, base+"?"+query.Encode(), nil, &refs, nil)
		if err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
		for _, ref := range refs {
			ids = append(ids, ref.ID)
		}
		if !hasMore(meta, page, len(refs)) {
			break
		}
	}
	return ids, nil
}

// pictureKeys keeps active images, main images first then gallery by sort order
func pictureKeys(attachments []attachmentResponse) []string {
	var main, gallery []attachmentResponse
	for _, a := range attachments {
		if a.Status != attachmentStatusActive || a.StorageKey == "" {
			continue
		}
		switch a.Type {
		case attachmentTypeMainImage:
			main = append(main, a)
		case attachmentTypeGalleryImage:
			gallery = append(gallery, a)
		}
	}
	sort.SliceStable(gallery, func(i, j int) bool {
		return gallery[i].SortOrder < gallery[j].SortOrder
	})

	keys := make([]string, 0, len(main)+len(gallery))
	for _, a := range main {
		keys = append(keys, a.StorageKey)
	}
	for _, a := range gallery {
		keys = append(keys, a.StorageKey)
	}
	return keys
}
