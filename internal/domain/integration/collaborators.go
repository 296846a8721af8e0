package integration

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// ERP collaborator ports
// ---------------------------------------------------------------------------

// InventoryReader reads sellable stock (available minus reserved)
type InventoryReader interface {
	GetSellableQuantity(ctx context.Context, tenantID, productID uuid.UUID, variantID *uuid.UUID) (decimal.Decimal, error)
}

// ProductInfo is the catalog view the engine needs
type ProductInfo struct {
	ID          uuid.UUID
	CategoryID  *uuid.UUID
	SKU         string
	Name        string
	Price       decimal.Decimal
	Cost        decimal.Decimal
	PictureKeys []string
}

// CatalogReader reads product data
type CatalogReader interface {
	GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (*ProductInfo, error)
}

// ProductScope enumerates products for rule resyncs.
// A nil categoryID lists every product of the tenant.
type ProductScope interface {
	ListProductIDs(ctx context.Context, tenantID uuid.UUID, categoryID *uuid.UUID) ([]uuid.UUID, error)
}

// ExternalOrderLine is an order line resolved to internal identities
type ExternalOrderLine struct {
	ProductID *uuid.UUID
	VariantID *uuid.UUID
	ListingID string
	SKU       string
	Title     string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// ExternalPaymentSummary is the payment gate passed to the order sink
type ExternalPaymentSummary struct {
	Status string
	Paid   bool
	Amount decimal.Decimal
	Method string
}

// ExternalOrderRequest is the order-creation contract of the sales collaborator
type ExternalOrderRequest struct {
	TenantID        uuid.UUID
	Marketplace     MarketplaceCode
	ExternalOrderID string
	Buyer           ExternalBuyer
	Items           []ExternalOrderLine
	Payment         ExternalPaymentSummary
	Shipping        ExternalShipping
	Total           decimal.Decimal
	Currency        string
}

// IdempotencyKey identifies the request for the sales collaborator
func (r *ExternalOrderRequest) IdempotencyKey() string {
	return string(r.Marketplace) + ":" + r.TenantID.String() + ":" + r.ExternalOrderID
}

// OrderSink creates internal sales orders from marketplace orders
type OrderSink interface {
	CreateOrderFromExternal(ctx context.Context, req *ExternalOrderRequest) (uuid.UUID, error)
}

// PictureSource loads product picture bytes by storage key
type PictureSource interface {
	Load(ctx context.Context, key string) ([]byte, error)
}

// TokenCipher encrypts OAuth tokens at rest
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
