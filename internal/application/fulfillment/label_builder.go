package fulfillment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/fulfillment/backend/internal/infrastructure/logger"
	"github.com/fulfillment/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Package defaults used when a shipment request is built
const (
	defaultWeightKg       = 1.0
	defaultLengthCm       = 30
	defaultWidthCm        = 25
	defaultHeightCm       = 10
	defaultCarrierTimeout = 10 * time.Second
	defaultCurrency       = "JPY"

	notSavedWarningPrefix = "label generated but not saved: "
)

// categoryWeightsKg maps an item category to its shipping weight
var categoryWeightsKg = map[string]float64{
	"apparel":     0.8,
	"shoes":       1.5,
	"bags":        1.2,
	"accessories": 0.3,
	"electronics": 2.0,
}

// WeightFor returns the shipping weight of one item of category
func WeightFor(category string) float64 {
	if w, ok := categoryWeightsKg[strings.ToLower(strings.TrimSpace(category))]; ok {
		return w
	}
	return defaultWeightKg
}

// LabelResult is the outcome of BuildLabel. Warning is set when the label was
// generated but could not be persisted; Artifact is still returned then.
type LabelResult struct {
	Artifact *fulfillment.LabelArtifact
	Order    *fulfillment.Order
	Metadata fulfillment.ShipmentMetadata
	Warning  string
	// Existing is true when the order already had a label and no carrier was called
	Existing bool
}

// Saved reports whether the artifact is persisted
func (r *LabelResult) Saved() bool {
	return r != nil && r.Warning == ""
}

// LabelBuilderConfig holds the request defaults of a LabelBuilder
type LabelBuilderConfig struct {
	Shipper        fulfillment.Party
	Currency       string
	CarrierTimeout time.Duration
}

// LabelBuilder turns an order into a persisted label artifact
type LabelBuilder struct {
	store     fulfillment.Store
	carriers  fulfillment.CarrierResolver
	documents fulfillment.LabelStore
	publisher shared.EventPublisher
	activity  *ActivityRecorder
	metrics   Metrics
	logger    *zap.Logger
	cfg       LabelBuilderConfig
}

// LabelBuilderOption configures a LabelBuilder
type LabelBuilderOption func(*LabelBuilder)

// WithLabelActivity records unsaved-label outcomes
func WithLabelActivity(r *ActivityRecorder) LabelBuilderOption {
	return func(b *LabelBuilder) {
		b.activity = r
	}
}

// WithLabelMetrics sets the metrics sink
func WithLabelMetrics(m Metrics) LabelBuilderOption {
	return func(b *LabelBuilder) {
		b.metrics = metricsOrNop(m)
	}
}

// WithLabelLogger sets the logger
func WithLabelLogger(l *zap.Logger) LabelBuilderOption {
	return func(b *LabelBuilder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewLabelBuilder creates a LabelBuilder
func NewLabelBuilder(
	store fulfillment.Store,
	carriers fulfillment.CarrierResolver,
	documents fulfillment.LabelStore,
	publisher shared.EventPublisher,
	cfg LabelBuilderConfig,
	opts ...LabelBuilderOption,
) *LabelBuilder {
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}
	if cfg.CarrierTimeout <= 0 {
		cfg.CarrierTimeout = defaultCarrierTimeout
	}
	b := &LabelBuilder{
		store:     store,
		carriers:  carriers,
		documents: documents,
		publisher: publisher,
		metrics:   nopMetrics{},
		logger:    zap.NewNop(),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildLabel generates, stores and attaches a label for orderID. Any carrier
// failure falls back to the mock adapter. An order that already has a label
// returns it unchanged.
func (b *LabelBuilder) BuildLabel(ctx context.Context, orderID uuid.UUID, carrier fulfillment.CarrierCode, service fulfillment.ServiceLevel) (*LabelResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "fulfillment.build_label",
		attribute.String(telemetry.SpanAttrOrderID, orderID.String()),
		attribute.String(telemetry.SpanAttrCarrier, carrier.String()),
	)
	defer span.End()

	order, err := b.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String(telemetry.SpanAttrOrderNumber, order.OrderNumber))

	items, err := b.store.Items().FindByOrder(ctx, order.ID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	meta := fulfillment.ShipmentFor(order, itemIDs(items))

	if order.HasLabel() {
		artifact, err := b.store.Labels().FindByOrder(ctx, order.ID)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		return &LabelResult{Artifact: artifact, Order: order, Metadata: meta, Existing: true}, nil
	}
	if order.Status != fulfillment.OrderStatusPending {
		err := shared.NewConflictError(fmt.Sprintf("Order %s is %s and cannot be labelled", order.OrderNumber, order.Status))
		telemetry.RecordError(span, err)
		return nil, err
	}
	if len(items) == 0 {
		err := shared.NewPreconditionError(fmt.Sprintf("Order %s has no items", order.OrderNumber))
		telemetry.RecordError(span, err)
		return nil, err
	}
	for _, item := range items {
		if !item.Status.ShipsWithOrder() {
			err := shared.NewPreconditionError(fmt.Sprintf("Item %s on order %s is %s and cannot be shipped", item.ID, order.OrderNumber, item.Status))
			telemetry.RecordError(span, err)
			return nil, err
		}
	}
	if !service.IsValid() {
		service = fulfillment.ServiceStandard
	}

	req := b.shipmentRequest(order, items, service, meta)
	started := time.Now()
	artifact, doc, err := b.generate(ctx, carrier, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	b.metrics.RecordLabel(ctx, artifact.Carrier.String(), artifact.IsMock, artifact.FallbackReason != "", time.Since(started))

	// the label exists now; a client going away must not lose it
	persistCtx := context.WithoutCancel(ctx)
	updated, err := b.persist(persistCtx, order, artifact, doc)
	if err != nil {
		if winner, ok := b.concurrentLabel(persistCtx, order.ID, err); ok {
			return &LabelResult{Artifact: winner.artifact, Order: winner.order, Metadata: meta, Existing: true}, nil
		}
		warning := notSavedWarningPrefix + err.Error()
		logger.WithLogger(ctx, b.logger).Error("Label generated but not saved",
			zap.String("order_id", order.ID.String()),
			zap.String("tracking_number", artifact.TrackingNumber),
			zap.Error(err))
		b.activity.RecordBestEffort(persistCtx, fulfillment.NewActivityEntry(
			fulfillment.ActivityLabelNotSaved,
			actorFrom(ctx),
			meta.ItemIDs(),
			order.ID,
			fmt.Sprintf("Label %s for order %s was generated but not saved", artifact.TrackingNumber, order.OrderNumber),
		).With("error", err.Error()).With("carrier", artifact.Carrier.String()))
		return &LabelResult{Artifact: artifact, Order: order, Metadata: meta, Warning: warning}, nil
	}

	logger.WithLogger(ctx, b.logger).Info("Label issued",
		zap.String("order_id", updated.ID.String()),
		zap.String("order_number", updated.OrderNumber),
		zap.String("tracking_number", artifact.TrackingNumber),
		zap.String("carrier", artifact.Carrier.String()),
		zap.Bool("mock", artifact.IsMock))

	if b.publisher != nil {
		ready := fulfillment.NewLabelReadyEvent(updated, artifact, meta, actorFrom(ctx))
		if err := b.publisher.Publish(persistCtx, ready); err != nil {
			logger.WithLogger(ctx, b.logger).Error("Failed to publish label_ready", zap.Error(err))
		}
	}
	return &LabelResult{Artifact: artifact, Order: updated, Metadata: meta}, nil
}

func (b *LabelBuilder) shipmentRequest(order *fulfillment.Order, items []fulfillment.Item, service fulfillment.ServiceLevel, meta fulfillment.ShipmentMetadata) *fulfillment.ShipmentRequest {
	declared := decimal.Zero
	weight := 0.0
	for _, item := range items {
		declared = declared.Add(item.Price)
		weight += WeightFor(item.Category)
	}

	recipientName := order.ShippingAddress.Name
	if recipientName == "" {
		recipientName = order.BuyerRef
	}

	return &fulfillment.ShipmentRequest{
		OrderNumber: order.OrderNumber,
		Service:     service,
		Shipper:     b.cfg.Shipper,
		Recipient: fulfillment.Party{
			Name:    recipientName,
			Phone:   order.ShippingAddress.Phone,
			Address: order.ShippingAddress,
		},
		DeclaredValue: declared,
		Currency:      b.cfg.Currency,
		Package: fulfillment.Package{
			WeightKg: weight,
			LengthCm: defaultLengthCm,
			WidthCm:  defaultWidthCm,
			HeightCm: defaultHeightCm,
		},
		ItemCount: len(items),
		Metadata:  meta,
	}
}

// generate calls the resolved adapter under the carrier timeout and falls
// back to the mock adapter on any failure.
func (b *LabelBuilder) generate(ctx context.Context, code fulfillment.CarrierCode, req *fulfillment.ShipmentRequest) (*fulfillment.LabelArtifact, []byte, error) {
	adapter := b.carriers.Resolve(code)

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CarrierTimeout)
	resp, err := adapter.GenerateLabel(callCtx, req)
	cancel()
	if err == nil && resp == nil {
		err = errors.New("carrier returned no label")
	}

	producer := adapter.Code()
	var fallbackReason string
	var doc []byte
	if err == nil {
		doc, err = decodeLabel(resp)
	}
	if err != nil {
		fallbackReason = fmt.Sprintf("%s: %v", adapter.Code(), err)
		logger.WithLogger(ctx, b.logger).Warn("Carrier label failed, using mock adapter",
			zap.String("carrier", adapter.Code().String()),
			zap.String("order_number", req.OrderNumber),
			zap.Error(err))

		mock := b.carriers.Fallback()
		producer = mock.Code()
		resp, err = mock.GenerateLabel(context.WithoutCancel(ctx), req)
		if err != nil {
			return nil, nil, fmt.Errorf("mock label fallback: %w", err)
		}
		if doc, err = decodeLabel(resp); err != nil {
			return nil, nil, fmt.Errorf("mock label fallback: %w", err)
		}
	}

	artifact, err := fulfillment.NewLabelArtifact(uuid.Nil, producer, req.Service, resp)
	if err != nil {
		return nil, nil, err
	}
	artifact.FallbackReason = fallbackReason
	return artifact, doc, nil
}

// persist stores the document and commits the artifact with the order update
func (b *LabelBuilder) persist(ctx context.Context, order *fulfillment.Order, artifact *fulfillment.LabelArtifact, doc []byte) (*fulfillment.Order, error) {
	artifact.OrderID = order.ID
	ref, err := b.documents.Put(ctx, order.OrderNumber, doc)
	if err != nil {
		return nil, err
	}
	artifact.LabelBytesRef = ref

	updated := *order
	err = b.store.Transaction(ctx, func(tx fulfillment.Store) error {
		if err := tx.Labels().Save(ctx, artifact); err != nil {
			return err
		}
		if err := updated.AttachLabel(artifact); err != nil {
			return err
		}
		return tx.Orders().SaveWithLock(ctx, &updated)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

type existingLabel struct {
	artifact *fulfillment.LabelArtifact
	order    *fulfillment.Order
}

// concurrentLabel returns the label another builder committed first when err
// is the conflict caused by that race.
func (b *LabelBuilder) concurrentLabel(ctx context.Context, orderID uuid.UUID, err error) (existingLabel, bool) {
	if !shared.HasCode(err, shared.CodeConflict) && !shared.HasCode(err, shared.CodeConcurrencyConflict) {
		return existingLabel{}, false
	}
	order, findErr := b.store.Orders().FindByID(ctx, orderID)
	if findErr != nil || !order.HasLabel() {
		return existingLabel{}, false
	}
	artifact, findErr := b.store.Labels().FindByOrder(ctx, orderID)
	if findErr != nil {
		return existingLabel{}, false
	}
	return existingLabel{artifact: artifact, order: order}, true
}

func decodeLabel(resp *fulfillment.RawLabelResponse) ([]byte, error) {
	doc, err := base64.StdEncoding.DecodeString(resp.EncodedLabel)
	if err != nil {
		return nil, fmt.Errorf("decode label document: %w", err)
	}
	if len(doc) == 0 {
		return nil, errors.New("carrier returned an empty label document")
	}
	return doc, nil
}

func itemIDs(items []fulfillment.Item) []uuid.UUID {
	ids := make([]uuid.UUID, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	return ids
}

func actorFrom(ctx context.Context) string {
	if actor := logger.GetActor(ctx); actor != "" {
		return actor
	}
	return "system"
}
