package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/erp/marketsync/internal/domain/integration"
)

// maxResponseSize is the maximum allowed response size from the Mercado Libre API (10MB)
const maxResponseSize = 10 * 1024 * 1024

const (
	// defaultTokenLifetime applies when the token endpoint omits expires_in
	defaultTokenLifetime = 6 * time.Hour
	// maxSearchLimit is the largest page the order search accepts
	maxSearchLimit = 50
	// searchDateLayout is the timestamp format of order search filters
	searchDateLayout = "2006-01-02T15:04:05.000-07:00"
)

// MercadoLibreAdapter implements integration.MarketplaceAdapter for Mercado Libre
type MercadoLibreAdapter struct {
	config     *MercadoLibreConfig
	httpClient *http.Client
	oauth      oauth2.Config
	limiter    *rate.Limiter
	cooldowns  CooldownStore
	logger     *zap.Logger
}

// MercadoLibreOption configures a MercadoLibreAdapter
type MercadoLibreOption func(*MercadoLibreAdapter)

// WithHTTPClient replaces the HTTP client used for API and token calls
func WithHTTPClient(client *http.Client) MercadoLibreOption {
	return func(a *MercadoLibreAdapter) {
		a.httpClient = client
	}
}

// WithCooldownStore shares throttling windows through the given store
func WithCooldownStore(store CooldownStore) MercadoLibreOption {
	return func(a *MercadoLibreAdapter) {
		a.cooldowns = store
	}
}

// WithLogger sets the adapter logger
func WithLogger(logger *zap.Logger) MercadoLibreOption {
	return func(a *MercadoLibreAdapter) {
		a.logger = logger
	}
}

// NewMercadoLibreAdapter creates a new Mercado Libre adapter with the given configuration
func NewMercadoLibreAdapter(config *MercadoLibreConfig, opts ...MercadoLibreOption) (*MercadoLibreAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	a := &MercadoLibreAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
		oauth: oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(config.RatePerSecond), config.RateBurst),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.cooldowns == nil {
		a.cooldowns = NewLocalCooldownStore()
	}
	a.logger = a.logger.Named("mercadolibre")
	return a, nil
}

// Code returns the marketplace this adapter serves
func (a *MercadoLibreAdapter) Code() integration.MarketplaceCode {
	return integration.MarketplaceMercadoLibre
}

// ---------------------------------------------------------------------------
// OAuth2
// ---------------------------------------------------------------------------

// AuthorizeURL builds the seller consent URL
func (a *MercadoLibreAdapter) AuthorizeURL(state, redirectURI string) string {
	return a.oauthConfig(redirectURI).AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for tokens
func (a *MercadoLibreAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*integration.TokenSet, error) {
	if code == "" {
		return nil, integration.NewMarketplaceError(http.StatusBadRequest, "invalid_request", "authorization code is required")
	}
	tok, err := a.oauthConfig(redirectURI).Exchange(a.oauthContext(ctx), code)
	if err != nil {
		return nil, mapOAuthError(err)
	}
	return tokenSetFromOAuth(tok), nil
}

// RefreshToken runs the refresh-token grant. Refresh tokens are single use,
// so the call is never retried here.
func (a *MercadoLibreAdapter) RefreshToken(ctx context.Context, refreshToken string) (*integration.TokenSet, error) {
	if refreshToken == "" {
		return nil, integration.ErrMissingRefreshToken
	}
	src := a.oauth.TokenSource(a.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, mapOAuthError(err)
	}
	return tokenSetFromOAuth(tok), nil
}

func (a *MercadoLibreAdapter) oauthConfig(redirectURI string) *oauth2.Config {
	cfg := a.oauth
	cfg.RedirectURL = redirectURI
	return &cfg
}

func (a *MercadoLibreAdapter) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

// tokenSetFromOAuth converts an oauth2 token, reading the seller ID from the user_id extra field
func tokenSetFromOAuth(tok *oauth2.Token) *integration.TokenSet {
	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(defaultTokenLifetime)
	}

	var userID string
	switch v := tok.Extra("user_id").(type) {
	case float64:
		userID = strconv.FormatInt(int64(v), 10)
	case json.Number:
		userID = v.String()
	case string:
		userID = v
	}

	return &integration.TokenSet{
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		ExpiresAt:      expiresAt,
		ExternalUserID: userID,
	}
}

// mapOAuthError maps a token endpoint failure to a marketplace error.
// invalid_grant means the grant was revoked or already used.
func mapOAuthError(err error) error {
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) {
		return &integration.MarketplaceError{
			Kind:    integration.ErrorKindTransient,
			Code:    "token_request_failed",
			Message: err.Error(),
			Err:     err,
		}
	}

	status := 0
	if rErr.Response != nil {
		status = rErr.Response.StatusCode
	}
	message := rErr.ErrorDescription
	if message == "" {
		message = truncate(string(rErr.Body), 200)
	}

	mErr := integration.NewMarketplaceError(status, rErr.ErrorCode, message)
	mErr.Err = err
	if rErr.ErrorCode == "invalid_grant" {
		mErr.Kind = integration.ErrorKindPermanent
		mErr.Err = integration.ErrTokenRevoked
	}
	return mErr
}

// ---------------------------------------------------------------------------
// Listings
// ---------------------------------------------------------------------------

// CreateListing publishes a new item
func (a *MercadoLibreAdapter) CreateListing(ctx context.Context, accessToken string, draft integration.ListingDraft) (*integration.RemoteListing, error) {
	if strings.TrimSpace(draft.Title) == "" {
		return nil, integration.NewMarketplaceError(http.StatusBadRequest, "invalid_title", "listing title is required")
	}

	req := MercadoLibreItemRequest{
		Title:             draft.Title,
		Price:             json.Number(draft.Price.String()),
		CurrencyID:        a.config.CurrencyID(),
		AvailableQuantity: max(draft.Quantity, 0),
		BuyingMode:        "buy_it_now",
		ListingTypeID:     "gold_special",
		Condition:         "new",
		SellerCustomField: draft.SKU,
	}
	for _, id := range draft.PictureIDs {
		req.Pictures = append(req.Pictures, MercadoLibrePictureLink{ID: id})
	}

	var item MercadoLibreItem
	if err := a.doJSON(ctx, accessToken, http.MethodPost, "/items", req, &item); err != nil {
		return nil, err
	}
	return remoteListing(&item), nil
}

// UpdateQuantity pushes the available quantity of an item
func (a *MercadoLibreAdapter) UpdateQuantity(ctx context.Context, accessToken, listingID string, quantity int64) (*integration.RemoteListing, error) {
	if err := validateListingID(listingID); err != nil {
		return nil, err
	}

	var item MercadoLibreItem
	body := MercadoLibreQuantityUpdate{AvailableQuantity: max(quantity, 0)}
	if err := a.doJSON(ctx, accessToken, http.MethodPut, "/items/"+url.PathEscape(listingID), body, &item); err != nil {
		return nil, err
	}
	return remoteListing(&item), nil
}

// UpdatePrice pushes the price of an item
func (a *MercadoLibreAdapter) UpdatePrice(ctx context.Context, accessToken, listingID string, price decimal.Decimal) (*integration.RemoteListing, error) {
	if err := validateListingID(listingID); err != nil {
		return nil, err
	}
	if !price.IsPositive() {
		return nil, integration.NewMarketplaceError(http.StatusBadRequest, "invalid_price", "price must be positive")
	}

	var item MercadoLibreItem
	body := MercadoLibrePriceUpdate{Price: json.Number(price.String())}
	if err := a.doJSON(ctx, accessToken, http.MethodPut, "/items/"+url.PathEscape(listingID), body, &item); err != nil {
		return nil, err
	}
	return remoteListing(&item), nil
}

// UploadPicture normalizes an image and uploads it to the picture service
func (a *MercadoLibreAdapter) UploadPicture(ctx context.Context, accessToken string, data []byte) (string, error) {
	normalized, err := NormalizePicture(data, a.config.PictureMaxSide)
	if err != nil {
		return "", &integration.MarketplaceError{
			Kind:    integration.ErrorKindPermanent,
			Code:    "invalid_picture",
			Message: err.Error(),
			Err:     err,
		}
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="picture.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("mercadolibre: build upload: %w", err)
	}
	if _, err := part.Write(normalized); err != nil {
		return "", fmt.Errorf("mercadolibre: build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("mercadolibre: build upload: %w", err)
	}

	var picture MercadoLibrePicture
	if err := a.do(ctx, accessToken, http.MethodPost, "/pictures/items/upload", buf.Bytes(), writer.FormDataContentType(), &picture); err != nil {
		return "", err
	}
	if picture.ID == "" {
		return "", invalidResponse(http.StatusOK, errors.New("picture id missing"))
	}
	return picture.ID, nil
}

func validateListingID(id string) error {
	if strings.TrimSpace(id) == "" || strings.Contains(id, "/") {
		return integration.ErrInvalidListingID
	}
	return nil
}

func remoteListing(item *MercadoLibreItem) *integration.RemoteListing {
	return &integration.RemoteListing{
		ExternalID: item.ID,
		Status:     mapMercadoLibreItemStatus(item.Status),
		Permalink:  item.Permalink,
	}
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// GetOrder fetches an order together with its shipment
func (a *MercadoLibreAdapter) GetOrder(ctx context.Context, accessToken, externalOrderID string) (*integration.ExternalOrder, error) {
	if strings.TrimSpace(externalOrderID) == "" {
		return nil, integration.ErrInvalidExternalOrderID
	}

	var order MercadoLibreOrder
	if err := a.doJSON(ctx, accessToken, http.MethodGet, "/orders/"+url.PathEscape(externalOrderID), nil, &order); err != nil {
		return nil, err
	}

	converted := convertMercadoLibreOrder(&order)
	if order.Shipping.ID != nil {
		shipping, err := a.getShipment(ctx, accessToken, *order.Shipping.ID)
		if err != nil {
			return nil, err
		}
		converted.Shipping = shipping
	}
	return &converted, nil
}

// getShipment fetches shipment details. A shipment the seller cannot read keeps only its ID.
func (a *MercadoLibreAdapter) getShipment(ctx context.Context, accessToken string, shipmentID int64) (integration.ExternalShipping, error) {
	id := strconv.FormatInt(shipmentID, 10)

	var shipment MercadoLibreShipment
	err := a.doJSON(ctx, accessToken, http.MethodGet, "/shipments/"+id, nil, &shipment)
	if err != nil {
		var mErr *integration.MarketplaceError
		if errors.As(err, &mErr) && mErr.StatusCode == http.StatusNotFound {
			return integration.ExternalShipping{ExternalID: id}, nil
		}
		return integration.ExternalShipping{}, err
	}

	addr := shipment.ReceiverAddress
	return integration.ExternalShipping{
		ExternalID:   id,
		Status:       shipment.Status,
		ReceiverName: addr.ReceiverName,
		AddressLine:  addr.AddressLine,
		City:         addr.City.Name,
		State:        addr.State.Name,
		ZipCode:      addr.ZipCode,
	}, nil
}

// SearchOrders lists orders of a seller updated since the given time, oldest first
func (a *MercadoLibreAdapter) SearchOrders(ctx context.Context, accessToken string, search integration.OrderSearch) (*integration.OrderPage, error) {
	if search.SellerID == "" {
		return nil, integration.NewMarketplaceError(http.StatusBadRequest, "invalid_seller", "seller id is required")
	}
	limit := search.Limit
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	query := url.Values{}
	query.Set("seller", search.SellerID)
	query.Set("sort", "date_asc")
	query.Set("offset", strconv.Itoa(max(search.Offset, 0)))
	query.Set("limit", strconv.Itoa(limit))
	if !search.Since.IsZero() {
		query.Set("order.date_last_updated.from", search.Since.Format(searchDateLayout))
	}

	var resp MercadoLibreOrderSearch
	if err := a.doJSON(ctx, accessToken, http.MethodGet, "/orders/search?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	page := &integration.OrderPage{
		Orders: make([]integration.ExternalOrder, 0, len(resp.Results)),
		Total:  resp.Paging.Total,
		Offset: resp.Paging.Offset,
		Limit:  resp.Paging.Limit,
	}
	for i := range resp.Results {
		page.Orders = append(page.Orders, convertMercadoLibreOrder(&resp.Results[i]))
	}
	return page, nil
}

// convertMercadoLibreOrder converts an order resource without shipment details
func convertMercadoLibreOrder(o *MercadoLibreOrder) integration.ExternalOrder {
	order := integration.ExternalOrder{
		ExternalID: formatID(o.ID),
		Status:     o.Status,
		SellerID:   formatID(o.Seller.ID),
		Buyer: integration.ExternalBuyer{
			ExternalID: formatID(o.Buyer.ID),
			Nickname:   o.Buyer.Nickname,
			FirstName:  o.Buyer.FirstName,
			LastName:   o.Buyer.LastName,
			Email:      o.Buyer.Email,
		},
		Items:     make([]integration.ExternalOrderItem, 0, len(o.OrderItems)),
		Payments:  make([]integration.ExternalPayment, 0, len(o.Payments)),
		Total:     o.TotalAmount,
		Currency:  o.CurrencyID,
		CreatedAt: o.DateCreated,
		UpdatedAt: o.LastUpdated,
	}
	if o.Shipping.ID != nil {
		order.Shipping.ExternalID = formatID(*o.Shipping.ID)
	}

	for _, line := range o.OrderItems {
		item := integration.ExternalOrderItem{
			ListingID: line.Item.ID,
			SKU:       line.Item.SellerSKU,
			Title:     line.Item.Title,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		}
		if line.Item.VariationID != nil {
			item.VariationID = formatID(*line.Item.VariationID)
		}
		order.Items = append(order.Items, item)
	}

	for _, p := range o.Payments {
		order.Payments = append(order.Payments, integration.ExternalPayment{
			ExternalID: formatID(p.ID),
			Status:     p.Status,
			Amount:     p.TransactionAmount,
			Method:     p.PaymentMethodID,
		})
	}
	return order
}

// ---------------------------------------------------------------------------
// Status Mapping
// ---------------------------------------------------------------------------

// mapMercadoLibreItemStatus maps an item status to a listing status
func mapMercadoLibreItemStatus(status string) integration.ListingStatus {
	switch status {
	case "active":
		return integration.ListingStatusActive
	case "paused", "under_review", "inactive":
		return integration.ListingStatusPaused
	case "closed":
		return integration.ListingStatusClosed
	default:
		return integration.ListingStatusPending
	}
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (a *MercadoLibreAdapter) doJSON(ctx context.Context, accessToken, method, endpoint string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("mercadolibre: encode request: %w", err)
		}
	}
	return a.do(ctx, accessToken, method, endpoint, payload, "application/json", out)
}

// do sends a request, retrying transient failures with exponential backoff
func (a *MercadoLibreAdapter) do(ctx context.Context, accessToken, method, endpoint string, payload []byte, contentType string, out any) error {
	if accessToken == "" {
		return integration.ErrConnectionNotUsable
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = a.config.BackoffInitial
	policy.MaxInterval = a.config.BackoffMax
	policy.MaxElapsedTime = 0

	key := cooldownKey(ctx, accessToken)
	op := func() error {
		err := a.attempt(ctx, accessToken, key, method, endpoint, payload, contentType, out)
		if err != nil && integration.ClassifyError(err) != integration.ErrorKindTransient {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		a.logger.Debug("Retrying marketplace request",
			zap.String("method", method),
			zap.String("endpoint", endpointPath(endpoint)),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	retries := uint64(max(a.config.MaxAttempts-1, 0))
	return backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx), notify)
}

func (a *MercadoLibreAdapter) attempt(ctx context.Context, accessToken, key, method, endpoint string, payload []byte, contentType string, out any) error {
	if err := a.waitCooldown(ctx, key); err != nil {
		return err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.config.APIBaseURL+endpoint, body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("mercadolibre: failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &integration.MarketplaceError{
			Kind:    integration.ErrorKindTransient,
			Code:    "unavailable",
			Message: err.Error(),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &integration.MarketplaceError{
			Kind:       integration.ErrorKindTransient,
			StatusCode: resp.StatusCode,
			Code:       "read_failed",
			Message:    err.Error(),
			Err:        err,
		}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		a.startCooldown(ctx, key, retryAfter(resp.Header, a.config.BackoffInitial))
	}
	if resp.StatusCode >= 400 {
		return parseMercadoLibreError(resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return invalidResponse(resp.StatusCode, err)
		}
	}
	return nil
}

// waitCooldown blocks while another caller of the same account is throttled
func (a *MercadoLibreAdapter) waitCooldown(ctx context.Context, key string) error {
	remaining, err := a.cooldowns.Remaining(ctx, key)
	if err != nil {
		a.logger.Warn("Cooldown lookup failed", zap.Error(err))
		return nil
	}
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (a *MercadoLibreAdapter) startCooldown(ctx context.Context, key string, d time.Duration) {
	if err := a.cooldowns.Extend(ctx, key, d); err != nil {
		a.logger.Warn("Failed to record cooldown", zap.Duration("cooldown", d), zap.Error(err))
	}
}

// retryAfter reads a Retry-After header in seconds, falling back to def
func retryAfter(header http.Header, def time.Duration) time.Duration {
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}

// parseMercadoLibreError builds a classified error from an error response body
func parseMercadoLibreError(status int, body []byte) error {
	var apiErr MercadoLibreError
	if err := json.Unmarshal(body, &apiErr); err != nil || (apiErr.Message == "" && apiErr.Error == "") {
		return integration.NewMarketplaceError(status, "", truncate(strings.TrimSpace(string(body)), 200))
	}

	message := apiErr.Message
	if len(apiErr.Cause) > 0 {
		causes := make([]string, 0, len(apiErr.Cause))
		for _, c := range apiErr.Cause {
			causes = append(causes, c.Message)
		}
		message = fmt.Sprintf("%s: %s", message, strings.Join(causes, "; "))
	}
	return integration.NewMarketplaceError(status, apiErr.Error, message)
}

func invalidResponse(status int, err error) error {
	return &integration.MarketplaceError{
		Kind:       integration.ErrorKindPermanent,
		StatusCode: status,
		Code:       "invalid_response",
		Message:    err.Error(),
		Err:        err,
	}
}

// endpointPath strips the query string so seller IDs stay out of logs
func endpointPath(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Ensure MercadoLibreAdapter implements MarketplaceAdapter interface
var _ integration.MarketplaceAdapter = (*MercadoLibreAdapter)(nil)
