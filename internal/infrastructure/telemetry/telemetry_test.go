package telemetry

import (
	"context"
	"testing"

	"github.com/fulfillment/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

func TestSetup_Disabled(t *testing.T) {
	ctx := context.Background()
	providers, err := Setup(ctx, Config{Enabled: false, ServiceName: "fulfillment-test"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, providers.Tracer.IsEnabled())
	assert.False(t, providers.Meter.IsEnabled())
	assert.False(t, providers.Logger.IsEnabled())
	assert.NotNil(t, providers.Tracer.Tracer("x"))
	assert.NotNil(t, providers.Meter.Meter("x"))

	core := providers.Logger.ZapCore(zapcore.InfoLevel)
	assert.False(t, core.Enabled(zapcore.ErrorLevel))

	log := zaptest.NewLogger(t)
	assert.Same(t, log, providers.Logger.Tee(log, "debug"))

	assert.NoError(t, providers.Shutdown(ctx))
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.TelemetryConfig{
		Enabled:           true,
		CollectorEndpoint: "otel:4317",
		SamplingRatio:     0.5,
		ServiceName:       "fulfillment",
		Insecure:          true,
	})
	assert.Equal(t, Config{
		Enabled:           true,
		CollectorEndpoint: "otel:4317",
		SamplingRatio:     0.5,
		ServiceName:       "fulfillment",
		Insecure:          true,
	}, cfg)
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(1).Description(), "AlwaysOnSampler")
	assert.Equal(t, "AlwaysOffSampler", samplerFor(0).Description())
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestStartSpanAndRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	restore := swapTracerProvider(tp)
	defer restore()

	_, span := StartSpan(context.Background(), "fulfillment.transition",
		attribute.String(SpanAttrItemID, "item-1"))
	RecordError(span, assert.AnError)
	RecordError(span, nil)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "fulfillment.transition", ended[0].Name())
	assert.Equal(t, "Error", ended[0].Status().Code.String())
	assert.Contains(t, ended[0].Attributes(), attribute.String(SpanAttrItemID, "item-1"))
	require.Len(t, ended[0].Events(), 1)
}
