package integration

import (
	"context"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// ---------------------------------------------------------------------------
// Repositories
// ---------------------------------------------------------------------------

type MockConnectionRepository struct {
	mock.Mock
}

var _ integration.ConnectionRepository = (*MockConnectionRepository)(nil)

func (m *MockConnectionRepository) FindByTenantAndMarketplace(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) (*integration.Connection, error) {
	args := m.Called(ctx, tenantID, marketplace)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	if fn, ok := args.Get(0).(func() *integration.Connection); ok {
		return fn(), args.Error(1)
	}
	return args.Get(0).(*integration.Connection), args.Error(1)
}

func (m *MockConnectionRepository) FindByExternalUserID(ctx context.Context, marketplace integration.MarketplaceCode, externalUserID string) (*integration.Connection, error) {
	args := m.Called(ctx, marketplace, externalUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Connection), args.Error(1)
}

func (m *MockConnectionRepository) FindExpiring(ctx context.Context, now time.Time, threshold time.Duration) ([]integration.Connection, error) {
	args := m.Called(ctx, now, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.Connection), args.Error(1)
}

func (m *MockConnectionRepository) FindConnected(ctx context.Context) ([]integration.Connection, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.Connection), args.Error(1)
}

func (m *MockConnectionRepository) FindConnectedByTenant(ctx context.Context, tenantID uuid.UUID) ([]integration.Connection, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.Connection), args.Error(1)
}

func (m *MockConnectionRepository) Save(ctx context.Context, conn *integration.Connection) error {
	return m.Called(ctx, conn).Error(0)
}

func (m *MockConnectionRepository) SaveTokens(ctx context.Context, conn *integration.Connection) error {
	return m.Called(ctx, conn).Error(0)
}

func (m *MockConnectionRepository) TouchLastSync(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockConnectionRepository) SetError(ctx context.Context, id uuid.UUID, message string) error {
	return m.Called(ctx, id, message).Error(0)
}

type MockRuleRepository struct {
	mock.Mock
}

var _ integration.SafetyMarginRuleRepository = (*MockRuleRepository)(nil)

func (m *MockRuleRepository) rule(args mock.Arguments) (*integration.SafetyMarginRule, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SafetyMarginRule), args.Error(1)
}

func (m *MockRuleRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*integration.SafetyMarginRule, error) {
	return m.rule(m.Called(ctx, tenantID, id))
}

func (m *MockRuleRepository) FindProductRule(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, productID uuid.UUID) (*integration.SafetyMarginRule, error) {
	return m.rule(m.Called(ctx, tenantID, marketplace, productID))
}

func (m *MockRuleRepository) FindCategoryRule(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, categoryID uuid.UUID) (*integration.SafetyMarginRule, error) {
	return m.rule(m.Called(ctx, tenantID, marketplace, categoryID))
}

func (m *MockRuleRepository) FindGlobalRule(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) (*integration.SafetyMarginRule, error) {
	return m.rule(m.Called(ctx, tenantID, marketplace))
}

func (m *MockRuleRepository) List(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) ([]integration.SafetyMarginRule, error) {
	args := m.Called(ctx, tenantID, marketplace)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.SafetyMarginRule), args.Error(1)
}

func (m *MockRuleRepository) Save(ctx context.Context, rule *integration.SafetyMarginRule) error {
	return m.Called(ctx, rule).Error(0)
}

func (m *MockRuleRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return m.Called(ctx, tenantID, id).Error(0)
}

type MockSyncQueueRepository struct {
	mock.Mock
}

var _ integration.SyncQueueRepository = (*MockSyncQueueRepository)(nil)

func (m *MockSyncQueueRepository) Enqueue(ctx context.Context, item *integration.SyncQueueItem) (*integration.SyncQueueItem, bool, error) {
	args := m.Called(ctx, item)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*integration.SyncQueueItem), args.Bool(1), args.Error(2)
}

func (m *MockSyncQueueRepository) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]integration.SyncQueueItem, error) {
	args := m.Called(ctx, limit, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.SyncQueueItem), args.Error(1)
}

func (m *MockSyncQueueRepository) SaveOutcome(ctx context.Context, item *integration.SyncQueueItem, claimedAt time.Time) error {
	return m.Called(ctx, item, claimedAt).Error(0)
}

func (m *MockSyncQueueRepository) ResetStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	args := m.Called(ctx, claimedBefore)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSyncQueueRepository) PurgeTerminal(ctx context.Context, processedBefore time.Time) (int64, error) {
	args := m.Called(ctx, processedBefore)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSyncQueueRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*integration.SyncQueueItem, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SyncQueueItem), args.Error(1)
}

func (m *MockSyncQueueRepository) List(ctx context.Context, filter integration.SyncQueueFilter) ([]integration.SyncQueueItem, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]integration.SyncQueueItem), args.Get(1).(int64), args.Error(2)
}

func (m *MockSyncQueueRepository) CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[integration.SyncStatus]int64, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[integration.SyncStatus]int64), args.Error(1)
}

type MockSyncLogRepository struct {
	mock.Mock
}

var _ integration.SyncLogRepository = (*MockSyncLogRepository)(nil)

func (m *MockSyncLogRepository) Append(ctx context.Context, entry *integration.SyncLogEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockSyncLogRepository) List(ctx context.Context, filter integration.SyncLogFilter) ([]integration.SyncLogEntry, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]integration.SyncLogEntry), args.Get(1).(int64), args.Error(2)
}

type MockListingRepository struct {
	mock.Mock
}

var _ integration.ListingRepository = (*MockListingRepository)(nil)

func (m *MockListingRepository) FindByKey(ctx context.Context, tenantID, productID uuid.UUID, variantID *uuid.UUID, marketplace integration.MarketplaceCode) (*integration.Listing, error) {
	args := m.Called(ctx, tenantID, productID, variantID, marketplace)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	if fn, ok := args.Get(0).(func() (*integration.Listing, error)); ok {
		return fn()
	}
	return args.Get(0).(*integration.Listing), args.Error(1)
}

func (m *MockListingRepository) FindByExternalID(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, externalListingID string) (*integration.Listing, error) {
	args := m.Called(ctx, tenantID, marketplace, externalListingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Listing), args.Error(1)
}

func (m *MockListingRepository) List(ctx context.Context, filter integration.ListingFilter) ([]integration.Listing, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]integration.Listing), args.Get(1).(int64), args.Error(2)
}

func (m *MockListingRepository) Create(ctx context.Context, listing *integration.Listing) error {
	return m.Called(ctx, listing).Error(0)
}

func (m *MockListingRepository) Update(ctx context.Context, listing *integration.Listing) error {
	return m.Called(ctx, listing).Error(0)
}

type MockMarketplaceOrderRepository struct {
	mock.Mock
}

var _ integration.MarketplaceOrderRepository = (*MockMarketplaceOrderRepository)(nil)

func (m *MockMarketplaceOrderRepository) FindByExternalID(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, externalOrderID string) (*integration.MarketplaceOrder, error) {
	args := m.Called(ctx, tenantID, marketplace, externalOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.MarketplaceOrder), args.Error(1)
}

func (m *MockMarketplaceOrderRepository) Create(ctx context.Context, order *integration.MarketplaceOrder) error {
	return m.Called(ctx, order).Error(0)
}

func (m *MockMarketplaceOrderRepository) Update(ctx context.Context, order *integration.MarketplaceOrder) error {
	return m.Called(ctx, order).Error(0)
}

func (m *MockMarketplaceOrderRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return m.Called(ctx, tenantID, id).Error(0)
}

func (m *MockMarketplaceOrderRepository) List(ctx context.Context, filter integration.MarketplaceOrderFilter) ([]integration.MarketplaceOrder, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]integration.MarketplaceOrder), args.Get(1).(int64), args.Error(2)
}

// ---------------------------------------------------------------------------
// Marketplace adapter
// ---------------------------------------------------------------------------

type MockAdapter struct {
	mock.Mock
}

var _ integration.MarketplaceAdapter = (*MockAdapter)(nil)

func (m *MockAdapter) Code() integration.MarketplaceCode {
	return integration.MarketplaceMercadoLibre
}

func (m *MockAdapter) AuthorizeURL(state, redirectURI string) string {
	return m.Called(state, redirectURI).String(0)
}

func (m *MockAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*integration.TokenSet, error) {
	args := m.Called(ctx, code, redirectURI)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.TokenSet), args.Error(1)
}

func (m *MockAdapter) RefreshToken(ctx context.Context, refreshToken string) (*integration.TokenSet, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.TokenSet), args.Error(1)
}

func (m *MockAdapter) CreateListing(ctx context.Context, accessToken string, draft integration.ListingDraft) (*integration.RemoteListing, error) {
	args := m.Called(ctx, accessToken, draft)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.RemoteListing), args.Error(1)
}

func (m *MockAdapter) UpdateQuantity(ctx context.Context, accessToken, listingID string, quantity int64) (*integration.RemoteListing, error) {
	args := m.Called(ctx, accessToken, listingID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.RemoteListing), args.Error(1)
}

func (m *MockAdapter) UpdatePrice(ctx context.Context, accessToken, listingID string, price decimal.Decimal) (*integration.RemoteListing, error) {
	args := m.Called(ctx, accessToken, listingID, price)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.RemoteListing), args.Error(1)
}

func (m *MockAdapter) GetOrder(ctx context.Context, accessToken, orderID string) (*integration.ExternalOrder, error) {
	args := m.Called(ctx, accessToken, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.ExternalOrder), args.Error(1)
}

func (m *MockAdapter) SearchOrders(ctx context.Context, accessToken string, search integration.OrderSearch) (*integration.OrderPage, error) {
	args := m.Called(ctx, accessToken, search)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.OrderPage), args.Error(1)
}

func (m *MockAdapter) UploadPicture(ctx context.Context, accessToken string, data []byte) (string, error) {
	args := m.Called(ctx, accessToken, data)
	return args.String(0), args.Error(1)
}

// staticRegistry serves a single adapter
type staticRegistry struct {
	adapter integration.MarketplaceAdapter
}

func (r staticRegistry) Get(code integration.MarketplaceCode) (integration.MarketplaceAdapter, error) {
	if code != r.adapter.Code() {
		return nil, integration.ErrAdapterNotFound
	}
	return r.adapter, nil
}

func (r staticRegistry) Codes() []integration.MarketplaceCode {
	return []integration.MarketplaceCode{r.adapter.Code()}
}

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// prefixCipher marks ciphertext with a prefix so tests can tell it apart
type prefixCipher struct{}

func (prefixCipher) Encrypt(plaintext string) (string, error) { return "enc:" + plaintext, nil }
func (prefixCipher) Decrypt(ciphertext string) (string, error) {
	return ciphertext[len("enc:"):], nil
}

type MockStateSigner struct {
	mock.Mock
}

func (m *MockStateSigner) Sign(state OAuthState) (string, error) {
	args := m.Called(state)
	return args.String(0), args.Error(1)
}

func (m *MockStateSigner) Verify(token string) (*OAuthState, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*OAuthState), args.Error(1)
}

type MockProductScope struct {
	mock.Mock
}

func (m *MockProductScope) ListProductIDs(ctx context.Context, tenantID uuid.UUID, categoryID *uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, tenantID, categoryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

type MockResyncRequester struct {
	mock.Mock
}

func (m *MockResyncRequester) EnqueueProducts(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, productIDs []uuid.UUID, syncType integration.SyncType, priority integration.SyncPriority) (int, error) {
	args := m.Called(ctx, tenantID, marketplace, productIDs, syncType, priority)
	return args.Int(0), args.Error(1)
}

type MockInventoryReader struct {
	mock.Mock
}

func (m *MockInventoryReader) GetSellableQuantity(ctx context.Context, tenantID, productID uuid.UUID, variantID *uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, tenantID, productID, variantID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type MockCatalogReader struct {
	mock.Mock
}

func (m *MockCatalogReader) GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (*integration.ProductInfo, error) {
	args := m.Called(ctx, tenantID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.ProductInfo), args.Error(1)
}

type MockOrderSink struct {
	mock.Mock
}

func (m *MockOrderSink) CreateOrderFromExternal(ctx context.Context, req *integration.ExternalOrderRequest) (uuid.UUID, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

type MockPictureSource struct {
	mock.Mock
}

func (m *MockPictureSource) Load(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// ---------------------------------------------------------------------------
// Processor ports
// ---------------------------------------------------------------------------

type MockTokenProvider struct {
	mock.Mock
}

var _ TokenProvider = (*MockTokenProvider)(nil)

func (m *MockTokenProvider) GetValidToken(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) (string, error) {
	args := m.Called(ctx, tenantID, marketplace)
	return args.String(0), args.Error(1)
}

func (m *MockTokenProvider) MarkAuthFailure(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, reason string) error {
	return m.Called(ctx, tenantID, marketplace, reason).Error(0)
}

func (m *MockTokenProvider) RecordSync(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) error {
	return m.Called(ctx, tenantID, marketplace).Error(0)
}

type MockMarginProvider struct {
	mock.Mock
}

func (m *MockMarginProvider) Resolve(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, productID uuid.UUID, categoryID *uuid.UUID) (int, error) {
	args := m.Called(ctx, tenantID, marketplace, productID, categoryID)
	return args.Int(0), args.Error(1)
}

type MockListingProvider struct {
	mock.Mock
}

func (m *MockListingProvider) EnsureListing(ctx context.Context, accessToken string, marketplace integration.MarketplaceCode, tenantID uuid.UUID, variantID *uuid.UUID, product *integration.ProductInfo, quantity int64) (*integration.Listing, bool, error) {
	args := m.Called(ctx, accessToken, marketplace, tenantID, variantID, product, quantity)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*integration.Listing), args.Bool(1), args.Error(2)
}

func (m *MockListingProvider) Save(ctx context.Context, listing *integration.Listing) error {
	return m.Called(ctx, listing).Error(0)
}
