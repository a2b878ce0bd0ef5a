package fulfillment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/fulfillment/backend/internal/infrastructure/cache"
	"github.com/fulfillment/backend/internal/infrastructure/carrier"
	"github.com/fulfillment/backend/internal/infrastructure/event"
	"github.com/fulfillment/backend/internal/infrastructure/notification"
	"github.com/fulfillment/backend/internal/infrastructure/persistence"
	"github.com/fulfillment/backend/internal/infrastructure/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testBuyer = "buyer-42"

var trackingPattern = `^FX[A-Z0-9]{10}$`

// testEnv wires the pipeline over an in-memory sqlite store
type testEnv struct {
	db           *gorm.DB
	store        *persistence.GormStore
	bus          *event.InMemoryEventBus
	hub          *notification.Hub
	documents    fulfillment.LabelStore
	registry     *carrier.Registry
	recorder     *ActivityRecorder
	transitions  *TransitionService
	consolidator *Consolidator
	labels       *LabelBuilder
	dispatcher   *Dispatcher
	pipeline     *Pipeline
	events       *eventRecorder
}

type envOptions struct {
	autoLabel bool
	fedex     fulfillment.CarrierAdapter
	documents fulfillment.LabelStore
	timeout   time.Duration
}

type envOption func(*envOptions)

func withAutoLabel() envOption {
	return func(o *envOptions) { o.autoLabel = true }
}

func withFedex(adapter fulfillment.CarrierAdapter) envOption {
	return func(o *envOptions) { o.fedex = adapter }
}

func withDocuments(store fulfillment.LabelStore) envOption {
	return func(o *envOptions) { o.documents = store }
}

func withCarrierTimeout(d time.Duration) envOption {
	return func(o *envOptions) { o.timeout = d }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	o := &envOptions{timeout: 2 * time.Second}
	for _, opt := range opts {
		opt(o)
	}

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

	documents := o.documents
	if documents == nil {
		local, err := storage.NewLocalLabelStore(t.TempDir())
		require.NoError(t, err)
		documents = local
	}

	registry := carrier.NewRegistry(carrier.NewMockAdapter())
	fedex := o.fedex
	if fedex == nil {
		fedex = unreachableFedex(t)
	}
	registry.Register(fedex)

	recorder := NewActivityRecorder(store.Activities(), zap.NewNop())
	transitions := NewTransitionService(store, bus)
	consolidator := NewConsolidator(store, cache.NewInMemoryLocker(), WithConsolidatorActivity(recorder))
	labels := NewLabelBuilder(store, registry, documents, bus, LabelBuilderConfig{
		Shipper: fulfillment.Party{
			Name:    "Fulfillment Warehouse",
			Address: fulfillment.Address{Line1: "1 Dock St", City: "Chiba", PostalCode: "260-0001", Country: "JP"},
		},
		CarrierTimeout: o.timeout,
	}, WithLabelActivity(recorder))
	dispatcher := NewDispatcher(store, hub, WithDispatcherActivity(recorder))

	events := &eventRecorder{}
	bus.Subscribe(dispatcher)
	bus.Subscribe(event.NewIdempotentHandler(NewActivityEventHandler(recorder), cache.NewInMemoryIdempotencyStore(), zap.NewNop()))
	bus.Subscribe(events)

	pipeline := NewPipeline(store, transitions, consolidator, labels, PipelineConfig{
		AutoLabel:      o.autoLabel,
		DefaultCarrier: fulfillment.CarrierFedex,
		DefaultService: fulfillment.ServiceStandard,
	}, zap.NewNop())

	return &testEnv{
		db:           db.DB,
		store:        store,
		bus:          bus,
		hub:          hub,
		documents:    documents,
		registry:     registry,
		recorder:     recorder,
		transitions:  transitions,
		consolidator: consolidator,
		labels:       labels,
		dispatcher:   dispatcher,
		pipeline:     pipeline,
		events:       events,
	}
}

// unreachableFedex returns a FedEx adapter whose server is already closed
func unreachableFedex(t *testing.T) *carrier.FedexAdapter {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	baseURL := srv.URL
	srv.Close()

	adapter, err := carrier.NewFedexAdapter(&carrier.FedexConfig{
		APIKey:        "key",
		SecretKey:     "secret",
		AccountNumber: "740561073",
		BaseURL:       baseURL,
		Environment:   "sandbox",
		Timeout:       time.Second,
	})
	require.NoError(t, err)
	return adapter
}

func testAddress() fulfillment.Address {
	return fulfillment.Address{
		Name:       "Hanako Sato",
		Phone:      "090-0000-0000",
		Line1:      "1-2-3 Shibuya",
		City:       "Tokyo",
		PostalCode: "150-0002",
		Country:    "JP",
	}
}

// newItem stores an item already moved to status
func (e *testEnv) newItem(t *testing.T, status fulfillment.ItemStatus, category string, price int64, location string) *fulfillment.Item {
	t.Helper()
	item, err := fulfillment.NewItem("SKU-"+uuid.NewString()[:8], "seller-1", category, decimal.NewFromInt(price))
	require.NoError(t, err)
	item.Status = status
	if location != "" {
		item.AssignLocation(location)
	}
	require.NoError(t, e.store.Items().Create(context.Background(), item))
	return item
}

// sell runs listing -> sold through the transition service
func (e *testEnv) sell(t *testing.T, item *fulfillment.Item, buyer string) *TransitionResult {
	t.Helper()
	res, err := e.transitions.Transition(context.Background(), TransitionRequest{
		ItemID:          item.ID,
		Target:          fulfillment.ItemStatusSold,
		Actor:           "staff-1",
		BuyerRef:        buyer,
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) countRows(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func labelRequested(t *testing.T, res *TransitionResult) *fulfillment.LabelRequestedEvent {
	t.Helper()
	for _, e := range res.Events {
		if lr, ok := e.(*fulfillment.LabelRequestedEvent); ok {
			return lr
		}
	}
	t.Fatal("transition raised no label_requested event")
	return nil
}

// eventRecorder captures every published event
type eventRecorder struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (r *eventRecorder) Name() string         { return "event_recorder" }
func (r *eventRecorder) EventTypes() []string { return nil }

func (r *eventRecorder) Handle(_ context.Context, e shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) ofType(typ string) []shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range r.events {
		if e.EventType() == typ {
			out = append(out, e)
		}
	}
	return out
}

// countingAdapter records shipment requests and answers like the mock
// adapter under the fedex code
type countingAdapter struct {
	mu       sync.Mutex
	calls    int
	requests []*fulfillment.ShipmentRequest
	mock     *carrier.MockAdapter
}

func newCountingAdapter() *countingAdapter {
	return &countingAdapter{mock: carrier.NewMockAdapter()}
}

func (a *countingAdapter) Code() fulfillment.CarrierCode { return fulfillment.CarrierFedex }

func (a *countingAdapter) Authenticate(ctx context.Context) (fulfillment.Token, error) {
	return a.mock.Authenticate(ctx)
}

func (a *countingAdapter) GenerateLabel(ctx context.Context, req *fulfillment.ShipmentRequest) (*fulfillment.RawLabelResponse, error) {
	a.mu.Lock()
	a.calls++
	a.requests = append(a.requests, req)
	a.mu.Unlock()
	resp, err := a.mock.GenerateLabel(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.IsMock = false
	return resp, nil
}

func (a *countingAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// blockingAdapter waits for its context to end
type blockingAdapter struct{}

func (blockingAdapter) Code() fulfillment.CarrierCode { return fulfillment.CarrierFedex }

func (blockingAdapter) Authenticate(ctx context.Context) (fulfillment.Token, error) {
	<-ctx.Done()
	return fulfillment.Token{}, ctx.Err()
}

func (blockingAdapter) GenerateLabel(ctx context.Context, _ *fulfillment.ShipmentRequest) (*fulfillment.RawLabelResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// failingDocuments rejects every write
type failingDocuments struct{}

func (failingDocuments) Put(context.Context, string, []byte) (string, error) {
	return "", errors.New("disk full")
}

func (failingDocuments) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, shared.ErrNotFound
}

func (failingDocuments) URL(context.Context, string) (string, error) {
	return "", nil
}
