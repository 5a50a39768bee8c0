// Package sink implements the gateway's cache & observability layer (C8):
// a fingerprinted Redis response cache in front of five append-only Mongo
// tables (ChatInference, JsonInference, ModelInference, InferenceTag,
// BatchRequest). Generalized from the teacher's
// features/runlog/mongo/{store.go,clients/mongo/client.go} and
// features/run/mongo/store.go — both of which wrap a narrow
// collection/cursor interface around the concrete mongo-driver client so
// unit tests can fake the driver without a live database — from
// run/session logging to inference observability rows.
package sink

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// ChatInferenceRow is one row of the ChatInference table: a chat-completion
// call's canonical input and the tool/content output it produced, prior to
// vendor translation.
type ChatInferenceRow struct {
	ID           string
	FunctionName string
	VariantName  string
	EpisodeID    string
	Input        json.RawMessage
	Output       []types.ContentBlock
	ToolConfig   *types.ToolConfig
	Tags         map[string]string
	Timestamp    time.Time
}

// JsonInferenceRow is one row of the JsonInference table: a structured
// extraction call's canonical input, the raw and parsed output, and the
// schema it was validated against.
type JsonInferenceRow struct {
	ID           string
	FunctionName string
	VariantName  string
	EpisodeID    string
	Input        json.RawMessage
	Output       json.RawMessage
	OutputSchema json.RawMessage
	Tags         map[string]string
	Timestamp    time.Time
}

// ModelInferenceRow is one row of the ModelInference table: the per-vendor
// call record linked to its parent Chat/JsonInference row by InferenceID.
type ModelInferenceRow struct {
	ID             string
	InferenceID    string
	ModelName      string
	ModelProvider  string
	RawRequest     string
	RawResponse    string
	InputTokens    int
	OutputTokens   int
	ResponseTimeMs int64
	TTFTMs         int64
	FinishReason   types.FinishReason
	Cached         bool
	Timestamp      time.Time
}

// InferenceTagRow is one row of the InferenceTag table: a single key/value
// tag attached to an inference, kept as its own table (rather than an
// embedded map) so tag lookups can be indexed independently of the parent
// row's shape.
type InferenceTagRow struct {
	InferenceID string
	Key         string
	Value       string
	Timestamp   time.Time
}

// BatchRequestRow is one row of the BatchRequest table: the sink's view of
// a batch job's lifecycle, distinct from provider.BatchDeps/
// types.BatchRequestRow (the in-flight adapter-facing value) — this is the
// persisted, queryable record a caller polls by BatchID.
type BatchRequestRow struct {
	BatchID       string
	FunctionName  string
	VariantName   string
	ModelProvider string
	ModelName     string
	Status        types.BatchStatus
	Errors        []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CachedResult is what a cache hit returns: the stored output plus enough
// metadata to reconstruct a ProviderInferenceResponse with zeroed usage and
// latency, per spec.md §4.8's cache-hit contract.
type CachedResult struct {
	Output       []types.ContentBlock
	FinishReason types.FinishReason
	RawResponse  string
}

// FingerprintInput carries every field spec.md §4.8/Open Question #4 names
// as part of the cache key: function identity, the canonical (already
// vendor-independent) request shape, and the provider the call would be
// routed to. ExtraBody/ExtraHeaders are included per the resolved open
// question (a safe default: two requests differing only in extra payload
// must not collide in the cache).
type FingerprintInput struct {
	FunctionName  string
	VariantName   string
	ModelProvider string
	CanonicalInput json.RawMessage
	ToolConfig    *types.ToolConfig
	OutputSchema  json.RawMessage
	Sampling      types.SamplingParams
	JSONMode      types.JSONMode
	ExtraBody     json.RawMessage
	ExtraHeaders  map[string]string
}

// Fingerprint hashes in a FingerprintInput deterministically (field order is
// fixed by fingerprintDoc's struct tags, never by map iteration) and returns
// a hex-encoded sha256 digest suitable as a Redis key.
func Fingerprint(in FingerprintInput) (string, error) {
	doc := fingerprintDoc{
		FunctionName:  in.FunctionName,
		VariantName:   in.VariantName,
		ModelProvider: in.ModelProvider,
		CanonicalInput: in.CanonicalInput,
		ToolConfig:    in.ToolConfig,
		OutputSchema:  in.OutputSchema,
		Sampling:      in.Sampling,
		JSONMode:      in.JSONMode,
		ExtraBody:     in.ExtraBody,
		ExtraHeaders:  in.ExtraHeaders,
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return "", types.NewGatewayError("sink", "fingerprint", types.ErrorKindSerialization,
			"failed to marshal fingerprint input", err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// fingerprintDoc pins JSON field order so two structurally-identical
// FingerprintInputs always hash to the same digest regardless of Go's map
// (ExtraHeaders) iteration order — encoding/json sorts map keys already,
// but struct field order here is explicit for the same reason.
type fingerprintDoc struct {
	FunctionName   string              `json:"function_name"`
	VariantName    string              `json:"variant_name"`
	ModelProvider  string              `json:"model_provider"`
	CanonicalInput json.RawMessage     `json:"canonical_input"`
	ToolConfig     *types.ToolConfig   `json:"tool_config,omitempty"`
	OutputSchema   json.RawMessage     `json:"output_schema,omitempty"`
	Sampling       types.SamplingParams `json:"sampling"`
	JSONMode       types.JSONMode      `json:"json_mode"`
	ExtraBody      json.RawMessage     `json:"extra_body,omitempty"`
	ExtraHeaders   map[string]string   `json:"extra_headers,omitempty"`
}
