package gateway

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// tracerName is the instrumentation scope registered with the global
// TracerProvider, matched by any exporter the caller wires in cmd/gatewayd.
const tracerName = "github.com/relaygate/inference-gateway/pkg/inference/gateway"

// TracingUnaryMiddleware returns a UnaryMiddleware that opens one span per
// Complete call, tagged with the provider, model, and whether the response
// was served from cache, and records any returned error on the span.
func TracingUnaryMiddleware() UnaryMiddleware {
	tracer := otel.Tracer(tracerName)
	return func(next UnaryHandler) UnaryHandler {
		return func(ctx context.Context, req *types.InferenceRequest) (*types.ProviderInferenceResponse, error) {
			ctx, span := tracer.Start(ctx, "inference.complete", trace.WithAttributes(
				attribute.String("inference.provider", req.ModelProvider),
				attribute.String("inference.model", req.ModelName),
				attribute.String("inference.function_type", string(req.FunctionType)),
			))
			defer span.End()

			resp, err := next(ctx, req)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			span.SetAttributes(
				attribute.Int("inference.input_tokens", resp.Usage.InputTokens),
				attribute.Int("inference.output_tokens", resp.Usage.OutputTokens),
				attribute.String("inference.finish_reason", string(resp.FinishReason)),
				attribute.Bool("inference.cache_hit", resp.Usage.InputTokens == 0 && resp.Usage.OutputTokens == 0 && req.Cache.Enabled),
			)
			return resp, nil
		}
	}
}

// TracingStreamMiddleware is TracingUnaryMiddleware's counterpart for
// streaming calls: one span covers the full Stream invocation, from the
// first chunk to the terminal stop/error chunk.
func TracingStreamMiddleware() StreamMiddleware {
	tracer := otel.Tracer(tracerName)
	return func(next StreamHandler) StreamHandler {
		return func(ctx context.Context, req *types.InferenceRequest, send func(types.Chunk) error) error {
			ctx, span := tracer.Start(ctx, "inference.stream", trace.WithAttributes(
				attribute.String("inference.provider", req.ModelProvider),
				attribute.String("inference.model", req.ModelName),
				attribute.String("inference.function_type", string(req.FunctionType)),
			))
			defer span.End()

			err := next(ctx, req, send)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
	}
}
