package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/relaygate/inference-gateway/pkg/inference/creds"
	"github.com/relaygate/inference-gateway/pkg/inference/policy"
	"github.com/relaygate/inference-gateway/pkg/inference/provider"
	"github.com/relaygate/inference-gateway/pkg/inference/sink"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// baseHandler is the innermost layer of both middleware chains: it resolves
// req's adapter, consults the sink for a cache hit, invokes the vendor call,
// and hands the result to the sink for a trailing persist. Generalized from
// features/model/gateway/server.go's baseUnary/baseStream closures, which
// call cfg.provider.Complete/Stream directly with no routing or caching —
// both added here since one Server now fronts several providers.
type baseHandler struct {
	adapters map[string]provider.Adapter
	httpDoer provider.HTTPDoer
	creds    *creds.Credentials
	dynamic  map[string]string
	sink     Sink
}

func (h *baseHandler) resolve(req *types.InferenceRequest) (provider.Adapter, error) {
	a, ok := h.adapters[req.ModelProvider]
	if !ok {
		return nil, types.NewGatewayError("gateway", "resolve_adapter", types.ErrorKindInvalidRequest,
			"unknown model provider "+req.ModelProvider, ErrUnknownProvider)
	}
	return a, nil
}

func (h *baseHandler) complete(ctx context.Context, req *types.InferenceRequest) (*types.ProviderInferenceResponse, error) {
	adapter, err := h.resolve(req)
	if err != nil {
		return nil, err
	}

	fingerprint, cacheable := h.cacheFingerprint(req)
	if cacheable && h.sink != nil {
		if cached, hit, err := h.sink.Lookup(ctx, fingerprint); err == nil && hit {
			resp := &types.ProviderInferenceResponse{
				Output:       cached.Output,
				FinishReason: cached.FinishReason,
				RawResponse:  cached.RawResponse,
				System:       req.System,
				InputMessages: req.Messages,
			}
			h.record(ctx, req, resp, true)
			return resp, nil
		}
	}

	resp, err := adapter.Infer(ctx, req, h.httpDoer, h.creds, h.dynamic)
	if err != nil {
		return nil, err
	}

	if req.JSONMode == types.JSONModeStrict && len(req.OutputSchema) > 0 {
		if err := policy.ValidateAgainstOutputSchema(req.OutputSchema, outputText(resp)); err != nil {
			return nil, err
		}
	}

	if cacheable && h.sink != nil {
		maxAge := time.Duration(req.Cache.LookbackS) * time.Second
		_ = h.sink.StoreCache(ctx, fingerprint, resp, maxAge)
	}
	h.record(ctx, req, resp, false)
	return resp, nil
}

func (h *baseHandler) stream(ctx context.Context, req *types.InferenceRequest, send func(types.Chunk) error) error {
	adapter, err := h.resolve(req)
	if err != nil {
		return err
	}

	cs, _, err := adapter.InferStream(ctx, req, h.httpDoer, h.creds, h.dynamic)
	if err != nil {
		return err
	}
	defer func() { _ = cs.Close() }()

	for {
		chunk, err := cs.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if sendErr := send(chunk); sendErr != nil {
			return sendErr
		}
	}
}

// cacheFingerprint computes the sink fingerprint for req, and reports
// whether req is eligible for a cache lookup/store at all (cache_options
// must be enabled; batch/streaming requests never reach this method).
func (h *baseHandler) cacheFingerprint(req *types.InferenceRequest) (string, bool) {
	if !req.Cache.Enabled {
		return "", false
	}
	fp, err := sink.Fingerprint(sink.FingerprintInput{
		FunctionName:   req.FunctionName,
		VariantName:    req.VariantName,
		ModelProvider:  req.ModelProvider,
		CanonicalInput: canonicalInput(req),
		ToolConfig:     req.ToolConfig,
		OutputSchema:   req.OutputSchema,
		Sampling:       req.Sampling,
		JSONMode:       req.JSONMode,
		ExtraBody:      req.ExtraBody,
		ExtraHeaders:   req.ExtraHeaders,
	})
	if err != nil {
		return "", false
	}
	return fp, true
}

func (h *baseHandler) record(ctx context.Context, req *types.InferenceRequest, resp *types.ProviderInferenceResponse, cached bool) {
	if h.sink == nil {
		return
	}
	inferenceID := req.InferenceID
	if inferenceID == "" {
		inferenceID = newInferenceID()
	}
	switch req.FunctionType {
	case types.FunctionTypeJSON:
		h.sink.RecordJSONInference(ctx, sink.JSONInferenceInput{
			InferenceID:   inferenceID,
			FunctionName:  req.FunctionName,
			VariantName:   req.VariantName,
			EpisodeID:     req.EpisodeID,
			ModelName:     req.ModelName,
			ModelProvider: req.ModelProvider,
			Input:         canonicalInput(req),
			OutputSchema:  req.OutputSchema,
			Response:      resp,
			Cached:        cached,
		})
	default:
		h.sink.RecordChatInference(ctx, sink.ChatInferenceInput{
			InferenceID:   inferenceID,
			FunctionName:  req.FunctionName,
			VariantName:   req.VariantName,
			EpisodeID:     req.EpisodeID,
			ModelName:     req.ModelName,
			ModelProvider: req.ModelProvider,
			Input:         canonicalInput(req),
			ToolConfig:    req.ToolConfig,
			Response:      resp,
			Cached:        cached,
		})
	}
}

// canonicalInput serializes the fields of req that define "the same call"
// for fingerprinting and the ChatInference/JsonInference Input column.
// Messages/System only: sampling, tool_config, and output_schema are
// fingerprinted as their own FingerprintInput fields so a change to any of
// them still busts the cache even though they are not repeated here.
func canonicalInput(req *types.InferenceRequest) []byte {
	doc := struct {
		System   string          `json:"system,omitempty"`
		Messages []types.Message `json:"messages"`
	}{System: req.System, Messages: req.Messages}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil
	}
	return encoded
}

// outputText concatenates every TextBlock in resp.Output, the JSON
// document a Strict JSON-mode request's output_schema validates against.
// Non-text blocks (tool calls, thoughts, citations) never appear in a
// JSON-mode response and are ignored rather than treated as an error.
func outputText(resp *types.ProviderInferenceResponse) json.RawMessage {
	var buf []byte
	for _, block := range resp.Output {
		if tb, ok := block.(types.TextBlock); ok {
			buf = append(buf, []byte(tb.Text)...)
		}
	}
	return buf
}

func newInferenceID() string {
	var buf [16]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}
