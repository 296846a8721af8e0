package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// newTenantRouter returns an engine whose requests are resolved to tenantID
func newTenantRouter(tenantID uuid.UUID) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), func(c *gin.Context) {
		c.Request.Header.Set(middleware.TenantIDHeader, tenantID.String())
		c.Next()
	}, middleware.TenantMiddleware())
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// MockConnectionService implements ConnectionService for testing
type MockConnectionService struct {
	mock.Mock
}

func (m *MockConnectionService) BeginAuthorization(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, redirectURI string) (string, error) {
	args := m.Called(ctx, tenantID, marketplace, redirectURI)
	return args.String(0), args.Error(1)
}

func (m *MockConnectionService) CompleteAuthorization(ctx context.Context, stateToken, code string) (*integration.Connection, error) {
	args := m.Called(ctx, stateToken, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Connection), args.Error(1)
}

func (m *MockConnectionService) Disconnect(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) error {
	return m.Called(ctx, tenantID, marketplace).Error(0)
}

func (m *MockConnectionService) RefreshConnection(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) (*integration.Connection, error) {
	args := m.Called(ctx, tenantID, marketplace)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Connection), args.Error(1)
}

func (m *MockConnectionService) GetConnection(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode) (*integration.Connection, error) {
	args := m.Called(ctx, tenantID, marketplace)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Connection), args.Error(1)
}

// MockNotificationParser implements NotificationParser for testing
type MockNotificationParser struct {
	mock.Mock
}

func (m *MockNotificationParser) ParseNotification(ctx context.Context, marketplace integration.MarketplaceCode, n appintegration.Notification) (*appintegration.OrderImportRequest, error) {
	args := m.Called(ctx, marketplace, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.OrderImportRequest), args.Error(1)
}

// MockNotificationSubmitter implements NotificationSubmitter for testing
type MockNotificationSubmitter struct {
	mock.Mock
}

func (m *MockNotificationSubmitter) Submit(ctx context.Context, req *appintegration.OrderImportRequest) error {
	return m.Called(ctx, req).Error(0)
}

// MockSafetyMarginService implements SafetyMarginService for testing
type MockSafetyMarginService struct {
	mock.Mock
}

func (m *MockSafetyMarginService) CreateRule(ctx context.Context, tenantID uuid.UUID, req appintegration.CreateRuleRequest) (*appintegration.RuleResponse, error) {
	args := m.Called(ctx, tenantID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.RuleResponse), args.Error(1)
}

func (m *MockSafetyMarginService) UpdateRule(ctx context.Context, tenantID, ruleID uuid.UUID, req appintegration.UpdateRuleRequest) (*appintegration.RuleResponse, error) {
	args := m.Called(ctx, tenantID, ruleID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.RuleResponse), args.Error(1)
}

func (m *MockSafetyMarginService) DeleteRule(ctx context.Context, tenantID, ruleID uuid.UUID) error {
	return m.Called(ctx, tenantID, ruleID).Error(0)
}

func (m *MockSafetyMarginService) GetRule(ctx context.Context, tenantID, ruleID uuid.UUID) (*appintegration.RuleResponse, error) {
	args := m.Called(ctx, tenantID, ruleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.RuleResponse), args.Error(1)
}

func (m *MockSafetyMarginService) ListRules(ctx context.Context, tenantID uuid.UUID, marketplace string) ([]appintegration.RuleResponse, error) {
	args := m.Called(ctx, tenantID, marketplace)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]appintegration.RuleResponse), args.Error(1)
}

// MockSyncQueueService implements SyncQueueService for testing
type MockSyncQueueService struct {
	mock.Mock
}

func (m *MockSyncQueueService) RequestResync(ctx context.Context, tenantID uuid.UUID, req appintegration.ResyncRequest) (*appintegration.EnqueueResponse, error) {
	args := m.Called(ctx, tenantID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.EnqueueResponse), args.Error(1)
}

func (m *MockSyncQueueService) RetryFailed(ctx context.Context, tenantID, itemID uuid.UUID) (*appintegration.EnqueueResponse, error) {
	args := m.Called(ctx, tenantID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.EnqueueResponse), args.Error(1)
}

func (m *MockSyncQueueService) ListItems(ctx context.Context, tenantID uuid.UUID, q appintegration.ListQuery) (*appintegration.PageResult[appintegration.SyncQueueItemResponse], error) {
	args := m.Called(ctx, tenantID, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.PageResult[appintegration.SyncQueueItemResponse]), args.Error(1)
}

func (m *MockSyncQueueService) Stats(ctx context.Context, tenantID uuid.UUID) (*appintegration.QueueStatsResponse, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.QueueStatsResponse), args.Error(1)
}

func (m *MockSyncQueueService) ListLogs(ctx context.Context, tenantID uuid.UUID, q appintegration.ListQuery) (*appintegration.PageResult[appintegration.SyncLogResponse], error) {
	args := m.Called(ctx, tenantID, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.PageResult[appintegration.SyncLogResponse]), args.Error(1)
}

// MockEventPublisher implements shared.EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	return m.Called(ctx, events).Error(0)
}
