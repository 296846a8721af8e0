package ecommerce

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// MercadoLibreError is the error body returned by the API
type MercadoLibreError struct {
	Message string                   `json:"message"`
	Error   string                   `json:"error"`
	Status  int                      `json:"status"`
	Cause   []MercadoLibreErrorCause `json:"cause,omitempty"`
}

// MercadoLibreErrorCause is one validation cause of an error
type MercadoLibreErrorCause struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// Items
// ---------------------------------------------------------------------------

// MercadoLibreItemRequest is the body of an item creation
type MercadoLibreItemRequest struct {
	Title             string                    `json:"title"`
	CategoryID        string                    `json:"category_id,omitempty"`
	Price             json.Number               `json:"price"`
	CurrencyID        string                    `json:"currency_id"`
	AvailableQuantity int64                     `json:"available_quantity"`
	BuyingMode        string                    `json:"buying_mode"`
	ListingTypeID     string                    `json:"listing_type_id"`
	Condition         string                    `json:"condition"`
	SellerCustomField string                    `json:"seller_custom_field,omitempty"`
	Pictures          []MercadoLibrePictureLink `json:"pictures,omitempty"`
}

// MercadoLibrePictureLink references an uploaded picture from an item
type MercadoLibrePictureLink struct {
	ID string `json:"id"`
}

// MercadoLibreQuantityUpdate is the body of a stock update
type MercadoLibreQuantityUpdate struct {
	AvailableQuantity int64 `json:"available_quantity"`
}

// MercadoLibrePriceUpdate is the body of a price update
type MercadoLibrePriceUpdate struct {
	Price json.Number `json:"price"`
}

// MercadoLibreItem is the item resource
type MercadoLibreItem struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Status            string          `json:"status"`
	Permalink         string          `json:"permalink"`
	Price             decimal.Decimal `json:"price"`
	AvailableQuantity int64           `json:"available_quantity"`
}

// MercadoLibrePicture is the response of a picture upload
type MercadoLibrePicture struct {
	ID string `json:"id"`
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// MercadoLibreOrder is the order resource
type MercadoLibreOrder struct {
	ID          int64                   `json:"id"`
	Status      string                  `json:"status"`
	DateCreated time.Time               `json:"date_created"`
	LastUpdated time.Time               `json:"last_updated"`
	TotalAmount decimal.Decimal         `json:"total_amount"`
	CurrencyID  string                  `json:"currency_id"`
	Buyer       MercadoLibreBuyer       `json:"buyer"`
	Seller      MercadoLibreUserRef     `json:"seller"`
	OrderItems  []MercadoLibreOrderItem `json:"order_items"`
	Payments    []MercadoLibrePayment   `json:"payments"`
	Shipping    MercadoLibreShippingRef `json:"shipping"`
}

// MercadoLibreUserRef is a bare user reference
type MercadoLibreUserRef struct {
	ID int64 `json:"id"`
}

// MercadoLibreBuyer is the buyer of an order
type MercadoLibreBuyer struct {
	ID        int64  `json:"id"`
	Nickname  string `json:"nickname"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// MercadoLibreOrderItem is one line of an order
type MercadoLibreOrderItem struct {
	Item      MercadoLibreOrderItemRef `json:"item"`
	Quantity  decimal.Decimal          `json:"quantity"`
	UnitPrice decimal.Decimal          `json:"unit_price"`
}

// MercadoLibreOrderItemRef identifies the listing sold on an order line
type MercadoLibreOrderItemRef struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	SellerSKU   string `json:"seller_sku"`
	VariationID *int64 `json:"variation_id"`
}

// MercadoLibrePayment is a payment of an order
type MercadoLibrePayment struct {
	ID                int64           `json:"id"`
	Status            string          `json:"status"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	PaymentMethodID   string          `json:"payment_method_id"`
}

// MercadoLibreShippingRef is the shipment reference embedded in an order
type MercadoLibreShippingRef struct {
	ID *int64 `json:"id"`
}

// MercadoLibreShipment is the shipment resource
type MercadoLibreShipment struct {
	ID              int64                       `json:"id"`
	Status          string                      `json:"status"`
	ReceiverAddress MercadoLibreReceiverAddress `json:"receiver_address"`
}

// MercadoLibreReceiverAddress is the delivery address of a shipment
type MercadoLibreReceiverAddress struct {
	ReceiverName string                `json:"receiver_name"`
	AddressLine  string                `json:"address_line"`
	ZipCode      string                `json:"zip_code"`
	City         MercadoLibreNamedArea `json:"city"`
	State        MercadoLibreNamedArea `json:"state"`
}

// MercadoLibreNamedArea is a city or state of an address
type MercadoLibreNamedArea struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MercadoLibreOrderSearch is the response of an order search
type MercadoLibreOrderSearch struct {
	Results []MercadoLibreOrder `json:"results"`
	Paging  MercadoLibrePaging  `json:"paging"`
}

// MercadoLibrePaging is the paging block of a search response
type MercadoLibrePaging struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// formatID formats a numeric resource ID, returning "" for zero
func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
