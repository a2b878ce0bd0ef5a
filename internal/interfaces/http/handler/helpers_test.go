package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	appfulfillment "github.com/fulfillment/backend/internal/application/fulfillment"
	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/infrastructure/cache"
	"github.com/fulfillment/backend/internal/infrastructure/carrier"
	"github.com/fulfillment/backend/internal/infrastructure/event"
	"github.com/fulfillment/backend/internal/infrastructure/notification"
	"github.com/fulfillment/backend/internal/infrastructure/persistence"
	"github.com/fulfillment/backend/internal/infrastructure/storage"
	"github.com/fulfillment/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
)

// testAPI serves the handlers over an in-memory sqlite store with the mock
// carrier as default
type testAPI struct {
	engine *gin.Engine
	store  *persistence.GormStore
	hub    *notification.Hub
	stream *NotificationStreamHandler
}

func newTestAPI(t *testing.T, autoLabel bool, streamOpts ...NotificationStreamOption) *testAPI {
	t.Helper()
	require.NoError(t, middleware.SetupValidator())

	db, err := persistence.Open(sqlite.Open(":memory:"))
	require.NoError(t, err)
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.AutoMigrate())

	store := persistence.NewGormStore(db.DB)
	bus := event.NewInMemoryEventBus(zap.NewNop())
	hub := notification.NewHub()
	t.Cleanup(func() { _ = hub.Close() })

	documents, err := storage.NewLocalLabelStore(t.TempDir())
	require.NoError(t, err)
	registry := carrier.NewRegistry(carrier.NewMockAdapter())

	recorder := appfulfillment.NewActivityRecorder(store.Activities(), zap.NewNop())
	transitions := appfulfillment.NewTransitionService(store, bus)
	consolidator := appfulfillment.NewConsolidator(store, cache.NewInMemoryLocker(), appfulfillment.WithConsolidatorActivity(recorder))
	labels := appfulfillment.NewLabelBuilder(store, registry, documents, bus, appfulfillment.LabelBuilderConfig{
		Shipper: fulfillment.Party{
			Name:    "Fulfillment Warehouse",
			Address: fulfillment.Address{Line1: "1 Dock St", City: "Chiba", PostalCode: "260-0001", Country: "JP"},
		},
	}, appfulfillment.WithLabelActivity(recorder))
	bus.Subscribe(appfulfillment.NewDispatcher(store, hub, appfulfillment.WithDispatcherActivity(recorder)))
	bus.Subscribe(appfulfillment.NewActivityEventHandler(recorder))

	pipeline := appfulfillment.NewPipeline(store, transitions, consolidator, labels, appfulfillment.PipelineConfig{
		AutoLabel:      autoLabel,
		DefaultCarrier: fulfillment.CarrierMock,
		DefaultService: fulfillment.ServiceStandard,
	}, zap.NewNop())

	items := NewFulfillmentHandler(pipeline, appfulfillment.NewQueryService(store, documents))
	notifications := NewNotificationHandler(appfulfillment.NewNotificationService(store.Notifications()))
	stream := NewNotificationStreamHandler(hub, streamOpts...)
	t.Cleanup(stream.Stop)

	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.ActorAuth(middleware.ActorAuthConfig{}))
	api := engine.Group("/api/v1")
	api.POST("/fulfillment/items", items.CreateItem)
	api.GET("/fulfillment/items/:id", items.GetItem)
	api.POST("/fulfillment/items/:id/transitions", items.TransitionItem)
	api.GET("/fulfillment/orders/:id", items.GetOrder)
	api.POST("/fulfillment/orders/:id/label", items.BuildLabel)
	api.GET("/fulfillment/orders/:id/label/document", items.LabelDocument)
	api.GET("/notifications", notifications.List)
	api.GET("/notifications/stream", stream.Stream)
	api.POST("/notifications/:id/read", notifications.MarkRead)

	return &testAPI{engine: engine, store: store, hub: hub, stream: stream}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

// listedItem stores an item ready to be sold
func (a *testAPI) listedItem(t *testing.T) *fulfillment.Item {
	t.Helper()
	item, err := fulfillment.NewItem("SKU-"+uuid.NewString()[:8], "seller-1", "apparel", decimal.NewFromInt(4200))
	require.NoError(t, err)
	item.Status = fulfillment.ItemStatusListing
	item.AssignLocation("A-01-03")
	require.NoError(t, a.store.Items().Create(context.Background(), item))
	return item
}

func saleRequest(buyer string) map[string]any {
	return map[string]any{
		"targetStatus": "sold",
		"buyerRef":     buyer,
		"shippingAddress": map[string]any{
			"name":       "Hanako Sato",
			"line1":      "1-2-3 Shibuya",
			"city":       "Tokyo",
			"postalCode": "150-0002",
			"country":    "JP",
		},
	}
}

// envelope decodes the response envelope with data into out
func envelope[T any](t *testing.T, w *httptest.ResponseRecorder) (T, *errorBody) {
	t.Helper()
	var resp struct {
		Success bool       `json:"success"`
		Data    T          `json:"data"`
		Error   *errorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Data, resp.Error
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	_, errBody := envelope[json.RawMessage](t, w)
	require.NotNil(t, errBody)
	require.Equal(t, code, errBody.Code)
	require.NotEmpty(t, errBody.RequestID)
}
