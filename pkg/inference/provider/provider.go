// Package provider defines the adapter interface every vendor
// implementation (C5: Bedrock, Vertex, OpenAI, Anthropic) satisfies (C4),
// generalized from the teacher's model.Client/model.Streamer pair
// (runtime/agent/model/model.go) from chat-planner semantics to the
// inference-gateway's canonical InferenceRequest/ProviderInferenceResponse
// algebra.
package provider

import (
	"context"
	"net/http"

	"github.com/relaygate/inference-gateway/pkg/inference/creds"
	"github.com/relaygate/inference-gateway/pkg/inference/objectstore"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// HTTPDoer is the narrow client surface an HTTP-based adapter (Vertex)
// needs, so tests can substitute a fake transport without dragging in
// http.Client's full surface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ChunkStream delivers incremental output from a streaming call, mirroring
// the teacher's model.Streamer but over types.Chunk. Callers must drain
// Recv until it returns a terminal error (io.EOF on success), then call
// Close exactly once.
type ChunkStream interface {
	Recv() (types.Chunk, error)
	Close() error
	Metadata() map[string]any
}

// Adapter is the interface every provider package (bedrock, vertex,
// openai, anthropic) implements.
type Adapter interface {
	// Name identifies the adapter for logging, metrics, and sink rows
	// (e.g. "bedrock", "vertex").
	Name() string

	// Infer performs one unary vendor call.
	Infer(ctx context.Context, req *types.InferenceRequest, httpClient HTTPDoer, cr *creds.Credentials, dynamicKeys map[string]string) (*types.ProviderInferenceResponse, error)

	// InferStream performs one streaming vendor call and returns a
	// ChunkStream plus the raw request JSON sent, for sink persistence.
	InferStream(ctx context.Context, req *types.InferenceRequest, httpClient HTTPDoer, cr *creds.Credentials, dynamicKeys map[string]string) (ChunkStream, string, error)

	BatchCapable
}

// BatchDeps carries the dependencies a batch operation needs that the
// adapter itself does not own: object storage for JSONL exchange and the
// credential resolver for the vendor's batch-job API. InputURIPrefix and
// OutputURIPrefix are gs://-or-s3:// prefixes the batch engine resolves
// object paths under.
type BatchDeps struct {
	MakeStore       func(ctx context.Context, uri string) (objectstore.Store, string, error)
	Credentials     *creds.Credentials
	DynamicKeys     map[string]string
	InputURIPrefix  string
	OutputURIPrefix string
}

// BatchPollResult is one poll of a vendor batch job's lifecycle state.
type BatchPollResult struct {
	Status types.BatchStatus
	// OutputURIPrefix is the vendor-declared location of completed output,
	// set once Status is Completed. It may differ from the request-time
	// output_uri_prefix (the vendor is authoritative).
	OutputURIPrefix string
	Errors          []string
}

// BatchCapable is the subset of Adapter dealing with batch inference.
// Providers without batch support embed UnsupportedBatch.
type BatchCapable interface {
	StartBatchInference(ctx context.Context, reqs []*types.InferenceRequest, deps BatchDeps) (*types.BatchRequestRow, error)
	PollBatchInference(ctx context.Context, row *types.BatchRequestRow, deps BatchDeps) (BatchPollResult, error)

	// CollectBatch reads the vendor's declared output location (poll's
	// OutputURIPrefix, not necessarily deps.OutputURIPrefix — the vendor
	// is authoritative) and returns one ProviderBatchInferenceOutput per
	// input row, correlated by the tensorzero::inference_id label each
	// adapter attaches at Start time. Only called once PollBatchInference
	// reports types.BatchCompleted.
	CollectBatch(ctx context.Context, row *types.BatchRequestRow, poll BatchPollResult, deps BatchDeps) ([]*types.ProviderBatchInferenceOutput, error)
}

// UnsupportedBatch is embedded by adapters with no batch-inference API. It
// implements BatchCapable by returning ErrorKindUnsupportedBatch without
// making any vendor call, generalizing the teacher's pattern of failing
// fast on an unimplemented model.Client method (e.g. openai's
// Stream-unsupported branch) to the batch surface.
type UnsupportedBatch struct {
	// ProviderName is used in the returned error's provider field.
	ProviderName string
}

func (u UnsupportedBatch) StartBatchInference(context.Context, []*types.InferenceRequest, BatchDeps) (*types.BatchRequestRow, error) {
	return nil, types.NewGatewayError(u.ProviderName, "start_batch_inference", types.ErrorKindUnsupportedBatch,
		u.ProviderName+" does not support batch inference", nil)
}

func (u UnsupportedBatch) PollBatchInference(context.Context, *types.BatchRequestRow, BatchDeps) (BatchPollResult, error) {
	return BatchPollResult{}, types.NewGatewayError(u.ProviderName, "poll_batch_inference", types.ErrorKindUnsupportedBatch,
		u.ProviderName+" does not support batch inference", nil)
}

func (u UnsupportedBatch) CollectBatch(context.Context, *types.BatchRequestRow, BatchPollResult, BatchDeps) ([]*types.ProviderBatchInferenceOutput, error) {
	return nil, types.NewGatewayError(u.ProviderName, "collect_batch", types.ErrorKindUnsupportedBatch,
		u.ProviderName+" does not support batch inference", nil)
}
