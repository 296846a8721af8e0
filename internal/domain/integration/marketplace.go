package integration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Marketplace Code
// ---------------------------------------------------------------------------

// MarketplaceCode identifies a marketplace provider
type MarketplaceCode string

const (
	// MarketplaceMercadoLibre is the Mercado Libre marketplace
	MarketplaceMercadoLibre MarketplaceCode = "MERCADOLIBRE"
)

// AllMarketplaceCodes returns every supported marketplace
func AllMarketplaceCodes() []MarketplaceCode {
	return []MarketplaceCode{MarketplaceMercadoLibre}
}

// IsValid checks if the marketplace code is supported
func (c MarketplaceCode) IsValid() bool {
	for _, code := range AllMarketplaceCodes() {
		if c == code {
			return true
		}
	}
	return false
}

// String returns the string representation
func (c MarketplaceCode) String() string {
	return string(c)
}

// ParseMarketplaceCode parses a case-insensitive marketplace code
func ParseMarketplaceCode(s string) (MarketplaceCode, error) {
	code := MarketplaceCode(strings.ToUpper(strings.TrimSpace(s)))
	if !code.IsValid() {
		return "", ErrInvalidMarketplace
	}
	return code, nil
}

// ---------------------------------------------------------------------------
// Adapter value objects
// ---------------------------------------------------------------------------

// TokenSet is the result of an OAuth2 code exchange or refresh-token grant.
// Tokens are plaintext here and must be encrypted before persistence.
type TokenSet struct {
	AccessToken    string
	RefreshToken   string
	ExpiresAt      time.Time
	ExternalUserID string
}

// ListingDraft describes a listing to be created on a marketplace
type ListingDraft struct {
	Title      string
	SKU        string
	Price      decimal.Decimal
	Quantity   int64
	PictureIDs []string
}

// RemoteListing is the marketplace-side view of a listing
type RemoteListing struct {
	ExternalID string
	Status     ListingStatus
	Permalink  string
}

// ExternalBuyer is the buyer of a marketplace order
type ExternalBuyer struct {
	ExternalID string
	Nickname   string
	FirstName  string
	LastName   string
	Email      string
}

// ExternalOrderItem is a line of a marketplace order
type ExternalOrderItem struct {
	ListingID   string
	VariationID string
	SKU         string
	Title       string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// ExternalPayment is a payment attached to a marketplace order
type ExternalPayment struct {
	ExternalID string
	Status     string
	Amount     decimal.Decimal
	Method     string
}

// ExternalShipping is the shipment of a marketplace order
type ExternalShipping struct {
	ExternalID   string
	Status       string
	ReceiverName string
	AddressLine  string
	City         string
	State        string
	ZipCode      string
}

// PaymentStatusApproved is the only payment status that marks an order as paid
const PaymentStatusApproved = "approved"

// ExternalOrder is an order as fetched from a marketplace
type ExternalOrder struct {
	ExternalID string
	Status     string
	SellerID   string
	Buyer      ExternalBuyer
	Items      []ExternalOrderItem
	Payments   []ExternalPayment
	Shipping   ExternalShipping
	Total      decimal.Decimal
	Currency   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsPaid reports whether at least one payment is approved
func (o *ExternalOrder) IsPaid() bool {
	for _, p := range o.Payments {
		if strings.EqualFold(p.Status, PaymentStatusApproved) {
			return true
		}
	}
	return false
}

// PaymentStatus summarizes the payments of the order.
// Any approved payment wins; otherwise the most recent payment status is used.
func (o *ExternalOrder) PaymentStatus() string {
	if o.IsPaid() {
		return PaymentStatusApproved
	}
	if len(o.Payments) == 0 {
		return "pending"
	}
	return strings.ToLower(o.Payments[len(o.Payments)-1].Status)
}

// PaidAmount returns the sum of approved payments
func (o *ExternalOrder) PaidAmount() decimal.Decimal {
	total := decimal.Zero
	for _, p := range o.Payments {
		if strings.EqualFold(p.Status, PaymentStatusApproved) {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// OrderPage is a page of orders returned by an order search
type OrderPage struct {
	Orders []ExternalOrder
	Total  int
	Offset int
	Limit  int
}

// HasMore reports whether more pages are available
func (p *OrderPage) HasMore() bool {
	return p.Offset+len(p.Orders) < p.Total
}

// OrderSearch describes an order search on a marketplace
type OrderSearch struct {
	SellerID string
	Since    time.Time
	Offset   int
	Limit    int
}

// ---------------------------------------------------------------------------
// Marketplace Adapter Port
// ---------------------------------------------------------------------------

// MarketplaceAdapter is the per-provider boundary to a marketplace API.
// Implementations must apply rate-limit backoff shared by all callers using
// the same access token.
type MarketplaceAdapter interface {
	// Code returns the marketplace this adapter serves
	Code() MarketplaceCode

	// AuthorizeURL builds the OAuth2 consent URL
	AuthorizeURL(state, redirectURI string) string

	// ExchangeCode exchanges an authorization code for tokens
	ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenSet, error)

	// RefreshToken runs the refresh-token grant
	RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error)

	// CreateListing publishes a new listing
	CreateListing(ctx context.Context, accessToken string, draft ListingDraft) (*RemoteListing, error)

	// UpdateQuantity pushes the available quantity of a listing
	UpdateQuantity(ctx context.Context, accessToken, listingID string, quantity int64) (*RemoteListing, error)

	// UpdatePrice pushes the price of a listing
	UpdatePrice(ctx context.Context, accessToken, listingID string, price decimal.Decimal) (*RemoteListing, error)

	// GetOrder fetches a full order
	GetOrder(ctx context.Context, accessToken, externalOrderID string) (*ExternalOrder, error)

	// SearchOrders lists recently updated orders of a seller
	SearchOrders(ctx context.Context, accessToken string, search OrderSearch) (*OrderPage, error)

	// UploadPicture uploads an image and returns the marketplace picture ID
	UploadPicture(ctx context.Context, accessToken string, data []byte) (string, error)
}

// AdapterRegistry resolves adapters by marketplace code
type AdapterRegistry interface {
	Get(code MarketplaceCode) (MarketplaceAdapter, error)
	Codes() []MarketplaceCode
}

// ---------------------------------------------------------------------------
// Account scope
// ---------------------------------------------------------------------------

type accountKey struct{}

// WithAccount scopes ctx to the connection of a tenant on a marketplace.
// Adapters key per-account state, such as throttling windows, on it.
func WithAccount(ctx context.Context, tenantID uuid.UUID, marketplace MarketplaceCode) context.Context {
	return context.WithValue(ctx, accountKey{}, fmt.Sprintf("%s:%s", marketplace, tenantID))
}

// AccountFrom returns the account ctx was scoped to by WithAccount
func AccountFrom(ctx context.Context) (string, bool) {
	account, ok := ctx.Value(accountKey{}).(string)
	return account, ok && account != ""
}
