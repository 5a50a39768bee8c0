package sink

import (
	"context"
	"encoding/json"
	"time"

	"goa.design/clue/log"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// Client composes the Mongo-backed Store and the Redis-backed Cache into
// the single seam the gateway (C1) calls: a fingerprint lookup ahead of
// the provider call, and a trailing, fire-and-forget write afterward.
// Generalized from features/runlog/mongo.Store wrapping one Client
// interface to this package's Store+Cache pair.
type Client struct {
	store Store
	cache Cache
}

// Options configures New.
type Options struct {
	Store Store
	Cache Cache
}

// New builds a sink Client. Cache may be nil, in which case Lookup always
// misses and StoreCache is a no-op — a gateway can run with observability
// but without a response cache.
func New(opts Options) (*Client, error) {
	return &Client{store: opts.Store, cache: opts.Cache}, nil
}

// ChatInferenceInput bundles everything RecordChatInference persists,
// mirroring the fields a gateway Complete call has in hand once a
// provider response comes back.
type ChatInferenceInput struct {
	InferenceID   string
	FunctionName  string
	VariantName   string
	EpisodeID     string
	ModelName     string
	ModelProvider string
	Input         json.RawMessage
	ToolConfig    *types.ToolConfig
	Tags          map[string]string
	Response      *types.ProviderInferenceResponse
	Cached        bool
}

// RecordChatInference persists a ChatInference row, its ModelInference
// row, and any tags, in the order spec.md §5 requires
// (ChatInference/JsonInference → ModelInference → InferenceTag), as a
// trailing fire-and-forget write: the caller gets control back
// immediately and errors are logged, never returned, matching the
// ~100ms-visibility, never-blocks-the-response contract.
func (c *Client) RecordChatInference(ctx context.Context, in ChatInferenceInput) {
	go c.recordChatInference(detachedContext(ctx), in)
}

func (c *Client) recordChatInference(ctx context.Context, in ChatInferenceInput) {
	if c.store == nil {
		return
	}
	now := time.Now().UTC()

	if err := c.store.InsertChatInference(ctx, ChatInferenceRow{
		ID:           in.InferenceID,
		FunctionName: in.FunctionName,
		VariantName:  in.VariantName,
		EpisodeID:    in.EpisodeID,
		Input:        in.Input,
		Output:       in.Response.Output,
		ToolConfig:   in.ToolConfig,
		Tags:         in.Tags,
		Timestamp:    now,
	}); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "sink: failed to insert chat inference row"}, log.KV{K: "inference_id", V: in.InferenceID})
		return
	}

	if err := c.store.InsertModelInference(ctx, modelInferenceRowFromResponse(in.InferenceID, in.ModelName, in.ModelProvider, in.Response, in.Cached, now)); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "sink: failed to insert model inference row"}, log.KV{K: "inference_id", V: in.InferenceID})
		return
	}

	for k, v := range in.Tags {
		if err := c.store.InsertTag(ctx, InferenceTagRow{InferenceID: in.InferenceID, Key: k, Value: v, Timestamp: now}); err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "sink: failed to insert inference tag"}, log.KV{K: "inference_id", V: in.InferenceID}, log.KV{K: "key", V: k})
		}
	}
}

// JSONInferenceInput mirrors ChatInferenceInput for structured-extraction
// calls, carrying OutputSchema instead of ToolConfig.
type JSONInferenceInput struct {
	InferenceID   string
	FunctionName  string
	VariantName   string
	EpisodeID     string
	ModelName     string
	ModelProvider string
	Input         json.RawMessage
	OutputSchema  json.RawMessage
	Tags          map[string]string
	Response      *types.ProviderInferenceResponse
	Cached        bool
}

// RecordJSONInference is RecordChatInference's counterpart for the
// JsonInference table, same trailing-write and ordering contract.
func (c *Client) RecordJSONInference(ctx context.Context, in JSONInferenceInput) {
	go c.recordJSONInference(detachedContext(ctx), in)
}

func (c *Client) recordJSONInference(ctx context.Context, in JSONInferenceInput) {
	if c.store == nil {
		return
	}
	now := time.Now().UTC()

	var output json.RawMessage
	if len(in.Response.Output) > 0 {
		if text, ok := in.Response.Output[0].(types.TextBlock); ok {
			output = json.RawMessage(text.Text)
		}
	}

	if err := c.store.InsertJSONInference(ctx, JsonInferenceRow{
		ID:           in.InferenceID,
		FunctionName: in.FunctionName,
		VariantName:  in.VariantName,
		EpisodeID:    in.EpisodeID,
		Input:        in.Input,
		Output:       output,
		OutputSchema: in.OutputSchema,
		Tags:         in.Tags,
		Timestamp:    now,
	}); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "sink: failed to insert json inference row"}, log.KV{K: "inference_id", V: in.InferenceID})
		return
	}

	if err := c.store.InsertModelInference(ctx, modelInferenceRowFromResponse(in.InferenceID, in.ModelName, in.ModelProvider, in.Response, in.Cached, now)); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "sink: failed to insert model inference row"}, log.KV{K: "inference_id", V: in.InferenceID})
		return
	}

	for k, v := range in.Tags {
		if err := c.store.InsertTag(ctx, InferenceTagRow{InferenceID: in.InferenceID, Key: k, Value: v, Timestamp: now}); err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "sink: failed to insert inference tag"}, log.KV{K: "inference_id", V: in.InferenceID}, log.KV{K: "key", V: k})
		}
	}
}

// RecordBatchRequest persists a new BatchRequest row, trailing like the
// chat/json paths.
func (c *Client) RecordBatchRequest(ctx context.Context, row BatchRequestRow) {
	go func(ctx context.Context) {
		if c.store == nil {
			return
		}
		if err := c.store.InsertBatchRequest(ctx, row); err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "sink: failed to insert batch request row"}, log.KV{K: "batch_id", V: row.BatchID})
		}
	}(detachedContext(ctx))
}

// UpdateBatchStatus updates a BatchRequest row's lifecycle state, used by
// the batch engine's poll loop (C7) after each PollBatchInference call.
func (c *Client) UpdateBatchStatus(ctx context.Context, batchID string, status types.BatchStatus, errs []string) error {
	if c.store == nil {
		return nil
	}
	return c.store.UpdateBatchRequestStatus(ctx, batchID, status, errs)
}

func modelInferenceRowFromResponse(inferenceID, modelName, modelProvider string, resp *types.ProviderInferenceResponse, cached bool, timestamp time.Time) ModelInferenceRow {
	return ModelInferenceRow{
		InferenceID:    inferenceID,
		ModelName:      modelName,
		ModelProvider:  modelProvider,
		RawRequest:     resp.RawRequest,
		RawResponse:    resp.RawResponse,
		InputTokens:    resp.Usage.InputTokens,
		OutputTokens:   resp.Usage.OutputTokens,
		ResponseTimeMs: resp.Latency.Milliseconds(),
		TTFTMs:         resp.TTFT.Milliseconds(),
		FinishReason:   resp.FinishReason,
		Cached:         cached,
		Timestamp:      timestamp,
	}
}

// detachedContext drops the caller's deadline/cancellation so a trailing
// write outlives the request that triggered it, keeping any context
// values (trace IDs, loggers) intact.
func detachedContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
