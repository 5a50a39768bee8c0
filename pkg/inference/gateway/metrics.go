package gateway

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// meterName is the instrumentation scope registered with the global
// MeterProvider, matching tracing.go's tracerName pattern.
const meterName = "github.com/relaygate/inference-gateway/pkg/inference/gateway"

// Metrics records call counts and latency for Complete/Stream, grounded on
// runtime/agent/telemetry/clue.go's ClueMetrics (Float64Counter/
// Float64Histogram over the global otel.Meter), generalized from that
// package's name/value/tags triple to attributes keyed on provider, model,
// and outcome.
type Metrics struct {
	calls    metric.Float64Counter
	latency  metric.Float64Histogram
	cacheHit metric.Float64Counter
}

// NewMetrics constructs a Metrics recorder against the global
// MeterProvider. Configure the provider (an OTLP exporter, a Prometheus
// reader, ...) before wiring this middleware; an unconfigured provider is
// a safe no-op recorder.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	calls, err := meter.Float64Counter("inference_gateway.calls")
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("inference_gateway.latency_seconds")
	if err != nil {
		return nil, err
	}
	cacheHit, err := meter.Float64Counter("inference_gateway.cache_hits")
	if err != nil {
		return nil, err
	}
	return &Metrics{calls: calls, latency: latency, cacheHit: cacheHit}, nil
}

// UnaryMiddleware returns a UnaryMiddleware recording one call count and
// latency observation per Complete invocation.
func (m *Metrics) UnaryMiddleware() UnaryMiddleware {
	return func(next UnaryHandler) UnaryHandler {
		return func(ctx context.Context, req *types.InferenceRequest) (*types.ProviderInferenceResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			m.record(ctx, req, time.Since(start), err)
			if err == nil && req.Cache.Enabled && resp.Usage.InputTokens == 0 && resp.Usage.OutputTokens == 0 {
				m.cacheHit.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", req.ModelProvider)))
			}
			return resp, err
		}
	}
}

// StreamMiddleware is UnaryMiddleware's counterpart for Stream, recording
// one observation for the full streaming call.
func (m *Metrics) StreamMiddleware() StreamMiddleware {
	return func(next StreamHandler) StreamHandler {
		return func(ctx context.Context, req *types.InferenceRequest, send func(types.Chunk) error) error {
			start := time.Now()
			err := next(ctx, req, send)
			m.record(ctx, req, time.Since(start), err)
			return err
		}
	}
}

func (m *Metrics) record(ctx context.Context, req *types.InferenceRequest, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", req.ModelProvider),
		attribute.String("model", req.ModelName),
		attribute.String("outcome", outcome),
	)
	m.calls.Add(ctx, 1, attrs)
	m.latency.Record(ctx, elapsed.Seconds(), attrs)
}
