package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/dshills/docreview/internal/agent"
	"github.com/dshills/docreview/internal/review"
)

func setupMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for i := range rm.ScopeMetrics {
		for j := range rm.ScopeMetrics[i].Metrics {
			if rm.ScopeMetrics[i].Metrics[j].Name == name {
				return &rm.ScopeMetrics[i].Metrics[j]
			}
		}
	}
	return nil
}

func sumFor(t *testing.T, m *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestMetrics_LLMCalls(t *testing.T) {
	m, reader := setupMetrics(t)
	ctx := context.Background()

	m.RecordLLMCall(ctx, "documentReviewer", "success", 2*time.Second, agent.Usage{PromptTokens: 100, CompletionTokens: 20})
	m.RecordLLMCall(ctx, "documentReviewer", "content_length", time.Second, agent.Usage{})

	rm := collect(t, reader)
	calls := findMetric(rm, metricLLMCalls)
	assert.Equal(t, int64(1), sumFor(t, calls, attrStatus, "success"))
	assert.Equal(t, int64(1), sumFor(t, calls, attrStatus, "content_length"))

	tokens := findMetric(rm, metricLLMTokens)
	assert.Equal(t, int64(100), sumFor(t, tokens, attrKind, "prompt"))
	assert.Equal(t, int64(20), sumFor(t, tokens, attrKind, "completion"))
	assert.NotNil(t, findMetric(rm, metricLLMDuration))
}

func TestMetrics_RetriesAndRuns(t *testing.T) {
	m, reader := setupMetrics(t)
	ctx := context.Background()

	m.RecordChunkRetry(ctx, "review")
	m.RecordChunkRetry(ctx, "review")
	m.RecordChunkRetry(ctx, "research")
	m.RunFinished(ctx, review.RunOutcome{Status: review.StatusSuccess, Mode: review.ModeLarge, Duration: time.Minute})

	rm := collect(t, reader)
	retries := findMetric(rm, metricChunkRetries)
	assert.Equal(t, int64(2), sumFor(t, retries, attrPipeline, "review"))
	assert.Equal(t, int64(1), sumFor(t, retries, attrPipeline, "research"))
	assert.Equal(t, int64(1), sumFor(t, findMetric(rm, metricRuns), attrStatus, "success"))
}

func TestTracingHandler_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{LogJSON: true}, &buf)

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.InfoContext(ctx, "inside span")
	span.End()

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "docreview", rec[attrService])
	assert.Equal(t, span.SpanContext().TraceID().String(), rec[attrTraceID])
	assert.Equal(t, span.SpanContext().SpanID().String(), rec[attrSpanID])
}

func TestTracingHandler_NoSpan(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(Config{LogJSON: true}, &buf).Info("plain")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.NotContains(t, rec, attrTraceID)
}

func TestInit_Prometheus(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Prometheus = true
	p, err := initWith(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())
	require.NotNil(t, p.MetricsHandler)

	m, err := NewMetrics(p.Meter)
	require.NoError(t, err)
	m.RecordChunkRetry(context.Background(), "review")

	rec := httptest.NewRecorder()
	p.MetricsHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "docreview_chunk_retries")
}

func TestInit_NoopByDefault(t *testing.T) {
	p, err := initWith(DefaultConfig(), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Nil(t, p.MetricsHandler)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", ParseLevel("debug").String())
	assert.Equal(t, "WARN", ParseLevel("Warning").String())
	assert.Equal(t, "INFO", ParseLevel("bogus").String())
}
