package fulfillment

import (
	"context"
	"time"
)

// Metrics receives pipeline measurements. telemetry.FulfillmentMetrics
// satisfies it; services default to a no-op.
type Metrics interface {
	RecordTransition(ctx context.Context, from, to, outcome string)
	RecordLabel(ctx context.Context, carrier string, mock, fallback bool, d time.Duration)
	RecordBundle(ctx context.Context, size int)
	RecordNotification(ctx context.Context, typ string, created bool)
}

type nopMetrics struct{}

func (nopMetrics) RecordTransition(context.Context, string, string, string)       {}
func (nopMetrics) RecordLabel(context.Context, string, bool, bool, time.Duration) {}
func (nopMetrics) RecordBundle(context.Context, int)                              {}
func (nopMetrics) RecordNotification(context.Context, string, bool)               {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
