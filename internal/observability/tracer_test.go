package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestDefaultTracerConfig(t *testing.T) {
	cfg := DefaultTracerConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, "tracebase", cfg.ServiceName)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.True(t, cfg.Insecure)
}

func TestNewTracer_Disabled(t *testing.T) {
	tracer, err := NewTracer(context.Background(), TracerConfig{Enabled: false}, "test")
	require.NoError(t, err)

	assert.False(t, tracer.IsEnabled())
	assert.NotNil(t, tracer.Tracer())
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestTracerConfig_WithDefaults(t *testing.T) {
	cfg := TracerConfig{Enabled: true, SampleRate: 0.25}.withDefaults()

	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, "tracebase", cfg.ServiceName)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 0.25, cfg.SampleRate)
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want string
	}{
		{"always", 1, "AlwaysOnSampler"},
		{"ratio", 0.5, "ParentBased"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, samplerFor(tt.rate).Description(), tt.want)
		})
	}
}

func TestStartPresetSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	ctx, span := StartPresetSpan(context.Background(), tracer, "CASES_DECEASED", "cases")
	assert.NotEmpty(t, ExtractTraceID(ctx))
	AddSpanEvent(ctx, "resolved", attribute.Int("ids", 3))
	EndSpan(span, errors.New("boom"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "preset.CASES_DECEASED", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("preset.id", "CASES_DECEASED"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("preset.entity", "cases"))
	require.Len(t, spans[0].Events(), 2) // resolved + exception
	assert.Equal(t, "resolved", spans[0].Events()[0].Name)
}

func TestSpanHelpers_NonRecordingSpan(t *testing.T) {
	ctx, span := noop.NewTracerProvider().Tracer("test").Start(context.Background(), "op")
	defer span.End()

	assert.NotPanics(t, func() { AddSpanEvent(ctx, "ignored") })
	assert.Empty(t, ExtractTraceID(ctx))
	assert.Empty(t, ExtractTraceID(context.Background()))
}

func TestStartRemoteSpan(t *testing.T) {
	ctx, span := StartRemoteSpan(context.Background(), "metric", "contacts-not-seen")
	assert.NotNil(t, ctx)
	EndSpan(span, nil)
}
