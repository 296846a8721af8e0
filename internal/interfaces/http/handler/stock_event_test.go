package handler

import (
	"errors"
	"net/http"
	"testing"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newStockEventRouter(tenantID uuid.UUID, pub shared.EventPublisher) http.Handler {
	h := NewStockEventHandler(pub)
	r := newTenantRouter(tenantID)
	r.POST("/stock-events", h.Publish)
	return r
}

func TestStockEventHandler_Publish(t *testing.T) {
	tenantID := uuid.New()
	productID := uuid.New()
	eventID := uuid.New()

	pub := new(MockEventPublisher)
	var published []shared.DomainEvent
	pub.On("Publish", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		published = args.Get(1).([]shared.DomainEvent)
	}).Return(nil)

	w := doJSON(newStockEventRouter(tenantID, pub), http.MethodPost, "/stock-events", map[string]any{
		"event_id": eventID, "product_id": productID,
	})

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, published, 1)
	event, ok := published[0].(*integration.StockChangedEvent)
	require.True(t, ok)
	assert.Equal(t, eventID, event.EventID())
	assert.Equal(t, tenantID, event.TenantID())
	assert.Equal(t, productID, event.ProductID)
}

func TestStockEventHandler_Validation(t *testing.T) {
	pub := new(MockEventPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("bus stopped"))
	r := newStockEventRouter(uuid.New(), pub)

	w := doJSON(r, http.MethodPost, "/stock-events", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/stock-events", map[string]any{"product_id": uuid.New()})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
