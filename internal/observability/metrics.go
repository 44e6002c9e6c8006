package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dshills/docreview/internal/agent"
	"github.com/dshills/docreview/internal/review"
)

const (
	metricLLMCalls     = "docreview.llm.calls.total"
	metricLLMDuration  = "docreview.llm.call.duration.seconds"
	metricLLMTokens    = "docreview.llm.tokens.total"
	metricChunkRetries = "docreview.chunk.retries.total"
	metricRuns         = "docreview.runs.total"
	metricRunDuration  = "docreview.run.duration.seconds"

	attrAgent    = "agent"
	attrStatus   = "status"
	attrKind     = "kind"
	attrPipeline = "pipeline"
	attrMode     = "mode"
)

// durationBuckets spans single model calls (about a second) up to large
// runs that take many minutes.
var durationBuckets = []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800}

// Metrics holds the OTel instruments for model calls, chunk retries and
// runs. It implements agent.Recorder, review.RetryRecorder and
// review.Notifier.
type Metrics struct {
	llmCalls     metric.Int64Counter
	llmDuration  metric.Float64Histogram
	llmTokens    metric.Int64Counter
	chunkRetries metric.Int64Counter
	runs         metric.Int64Counter
	runDuration  metric.Float64Histogram
}

var (
	_ agent.Recorder       = (*Metrics)(nil)
	_ review.RetryRecorder = (*Metrics)(nil)
	_ review.Notifier      = (*Metrics)(nil)
)

// NewMetrics creates the instruments from mt.
func NewMetrics(mt metric.Meter) (*Metrics, error) {
	b := metricBuilder{meter: mt}
	m := &Metrics{
		llmCalls:     b.counter(metricLLMCalls, "Model calls by agent and outcome", "{call}"),
		llmDuration:  b.histogram(metricLLMDuration, "Model call latency", "s", durationBuckets...),
		llmTokens:    b.counter(metricLLMTokens, "Tokens consumed by model calls", "{token}"),
		chunkRetries: b.counter(metricChunkRetries, "Re-splits after a context-length overflow", "{retry}"),
		runs:         b.counter(metricRuns, "Finished review runs", "{run}"),
		runDuration:  b.histogram(metricRunDuration, "Review run duration", "s", durationBuckets...),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// RecordLLMCall implements agent.Recorder.
func (m *Metrics) RecordLLMCall(ctx context.Context, agentID, status string, d time.Duration, usage agent.Usage) {
	m.llmCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrAgent, agentID),
		attribute.String(attrStatus, status),
	))
	m.llmDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String(attrAgent, agentID)))
	if usage.PromptTokens > 0 {
		m.llmTokens.Add(ctx, int64(usage.PromptTokens), metric.WithAttributes(
			attribute.String(attrAgent, agentID), attribute.String(attrKind, "prompt")))
	}
	if usage.CompletionTokens > 0 {
		m.llmTokens.Add(ctx, int64(usage.CompletionTokens), metric.WithAttributes(
			attribute.String(attrAgent, agentID), attribute.String(attrKind, "completion")))
	}
}

// RecordChunkRetry implements review.RetryRecorder.
func (m *Metrics) RecordChunkRetry(ctx context.Context, pipeline string) {
	m.chunkRetries.Add(ctx, 1, metric.WithAttributes(attribute.String(attrPipeline, pipeline)))
}

// RunFinished implements review.Notifier.
func (m *Metrics) RunFinished(ctx context.Context, out review.RunOutcome) {
	attrs := metric.WithAttributes(
		attribute.String(attrStatus, string(out.Status)),
		attribute.String(attrMode, string(out.Mode)),
	)
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, out.Duration.Seconds(), attrs)
}

// metricBuilder keeps the first instrument creation error so a batch of
// instruments needs one check.
type metricBuilder struct {
	meter metric.Meter
	err   error
}

func (b *metricBuilder) counter(name, desc, unit string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.setErr(name, err)
	return c
}

func (b *metricBuilder) histogram(name, desc, unit string, bounds ...float64) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit(unit),
		metric.WithExplicitBucketBoundaries(bounds...),
	)
	b.setErr(name, err)
	return h
}

func (b *metricBuilder) setErr(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("create %s: %w", name, err)
	}
}
