package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
var (
	AttrFromStatus = attribute.Key("from_status")
	AttrToStatus   = attribute.Key("to_status")
	AttrOutcome    = attribute.Key("outcome")
	AttrCarrier    = attribute.Key("carrier")
	AttrMock       = attribute.Key("mock")
	AttrFallback   = attribute.Key("fallback")
	AttrType       = attribute.Key("type")
	AttrCreated    = attribute.Key("created")
)

// FulfillmentMetrics records pipeline counters: transitions, labels by carrier
// and mock fallback, bundle sizes and notifications.
type FulfillmentMetrics struct {
	transitions   *Counter
	labels        *Counter
	labelDuration *Histogram
	bundleSize    *Histogram
	notifications *Counter
}

// NewFulfillmentMetrics registers the instruments on meter
func NewFulfillmentMetrics(meter metric.Meter) (*FulfillmentMetrics, error) {
	var (
		m   FulfillmentMetrics
		err error
	)
	if m.transitions, err = NewCounter(meter, "fulfillment_item_transitions_total",
		"Item status transitions by outcome", "{transitions}"); err != nil {
		return nil, err
	}
	if m.labels, err = NewCounter(meter, "fulfillment_labels_total",
		"Label artifacts generated", "{labels}"); err != nil {
		return nil, err
	}
	if m.labelDuration, err = NewHistogram(meter, "fulfillment_label_duration_seconds",
		"Time spent producing a label including fallback", "s", CarrierDurationBuckets...); err != nil {
		return nil, err
	}
	if m.bundleSize, err = NewHistogram(meter, "fulfillment_bundle_size",
		"Items per consolidated shipment", "{items}", 1, 2, 3, 5, 8, 13); err != nil {
		return nil, err
	}
	if m.notifications, err = NewCounter(meter, "fulfillment_notifications_total",
		"Staff notifications dispatched", "{notifications}"); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordTransition counts one transition attempt
func (m *FulfillmentMetrics) RecordTransition(ctx context.Context, from, to, outcome string) {
	m.transitions.Inc(ctx, AttrFromStatus.String(from), AttrToStatus.String(to), AttrOutcome.String(outcome))
}

// RecordLabel counts one label and its latency
func (m *FulfillmentMetrics) RecordLabel(ctx context.Context, carrier string, mock, fallback bool, d time.Duration) {
	attrs := []attribute.KeyValue{AttrCarrier.String(carrier), AttrMock.Bool(mock), AttrFallback.Bool(fallback)}
	m.labels.Inc(ctx, attrs...)
	m.labelDuration.RecordDuration(ctx, d, attrs...)
}

// RecordBundle records the member count of a consolidated shipment
func (m *FulfillmentMetrics) RecordBundle(ctx context.Context, size int) {
	m.bundleSize.Record(ctx, float64(size))
}

// RecordNotification counts one dispatch; created is false for dedup hits
func (m *FulfillmentMetrics) RecordNotification(ctx context.Context, typ string, created bool) {
	m.notifications.Inc(ctx, AttrType.String(typ), AttrCreated.Bool(created))
}
