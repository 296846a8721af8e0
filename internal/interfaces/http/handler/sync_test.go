package handler

import (
	"net/http"
	"testing"

	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newSyncRouter(tenantID uuid.UUID, svc SyncQueueService) http.Handler {
	h := NewSyncHandler(svc)
	r := newTenantRouter(tenantID)
	r.POST("/sync/resync", h.Resync)
	r.POST("/sync/queue/:id/retry", h.Retry)
	r.GET("/sync/queue", h.ListQueue)
	r.GET("/sync/queue/stats", h.Stats)
	r.GET("/sync/logs", h.ListLogs)
	return r
}

func TestSyncHandler_Resync(t *testing.T) {
	tenantID := uuid.New()
	productID := uuid.New()

	t.Run("accepted", func(t *testing.T) {
		svc := new(MockSyncQueueService)
		svc.On("RequestResync", mock.Anything, tenantID, appintegration.ResyncRequest{
			Marketplace: "MERCADOLIBRE", ProductID: productID, SyncType: "STOCK",
		}).Return(&appintegration.EnqueueResponse{Created: true}, nil)

		w := doJSON(newSyncRouter(tenantID, svc), http.MethodPost, "/sync/resync", map[string]any{
			"marketplace": "MERCADOLIBRE", "product_id": productID, "sync_type": "STOCK",
		})

		assert.Equal(t, http.StatusAccepted, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("invalid sync type", func(t *testing.T) {
		svc := new(MockSyncQueueService)
		w := doJSON(newSyncRouter(tenantID, svc), http.MethodPost, "/sync/resync", map[string]any{
			"marketplace": "MERCADOLIBRE", "product_id": productID, "sync_type": "TITLE",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("connection not usable", func(t *testing.T) {
		svc := new(MockSyncQueueService)
		svc.On("RequestResync", mock.Anything, tenantID, mock.Anything).Return(nil, integration.ErrConnectionNotUsable)

		w := doJSON(newSyncRouter(tenantID, svc), http.MethodPost, "/sync/resync", map[string]any{
			"marketplace": "MERCADOLIBRE", "product_id": productID, "sync_type": "PRICE",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestSyncHandler_Retry(t *testing.T) {
	tenantID := uuid.New()
	itemID := uuid.New()
	svc := new(MockSyncQueueService)
	svc.On("RetryFailed", mock.Anything, tenantID, itemID).Return(nil, integration.ErrQueueItemNotFailed)

	w := doJSON(newSyncRouter(tenantID, svc), http.MethodPost, "/sync/queue/"+itemID.String()+"/retry", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSyncHandler_ListQueue(t *testing.T) {
	tenantID := uuid.New()
	svc := new(MockSyncQueueService)
	svc.On("ListItems", mock.Anything, tenantID, appintegration.ListQuery{Status: "FAILED", Page: 2, PageSize: 10}).
		Return(&appintegration.PageResult[appintegration.SyncQueueItemResponse]{
			Items: []appintegration.SyncQueueItemResponse{{ID: uuid.New()}},
			Total: 11, Page: 2, PageSize: 10, TotalPages: 2,
		}, nil)

	w := doJSON(newSyncRouter(tenantID, svc), http.MethodGet, "/sync/queue?status=FAILED&page=2&page_size=10", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, int64(11), resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.TotalPages)

	w = doJSON(newSyncRouter(tenantID, svc), http.MethodGet, "/sync/queue?page_size=1000", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncHandler_Stats(t *testing.T) {
	tenantID := uuid.New()
	svc := new(MockSyncQueueService)
	svc.On("Stats", mock.Anything, tenantID).Return(&appintegration.QueueStatsResponse{Pending: 3, Failed: 1, Total: 4}, nil)

	w := doJSON(newSyncRouter(tenantID, svc), http.MethodGet, "/sync/queue/stats", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pending":3`)
}
