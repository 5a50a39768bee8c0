package gateway

import (
	"context"
	"time"

	"github.com/relaygate/inference-gateway/pkg/inference/sink"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// Sink is the narrow seam the Server calls into the cache & observability
// layer (C8) through, satisfied by *sink.Client. Declared here (rather than
// depending on the concrete type directly in baseHandler) so tests can
// substitute a fake without a live Mongo/Redis, mirroring the teacher's
// model.Client narrow-interface pattern.
type Sink interface {
	Lookup(ctx context.Context, fingerprint string) (sink.CachedResult, bool, error)
	StoreCache(ctx context.Context, fingerprint string, resp *types.ProviderInferenceResponse, maxAge time.Duration) error
	RecordChatInference(ctx context.Context, in sink.ChatInferenceInput)
	RecordJSONInference(ctx context.Context, in sink.JSONInferenceInput)
}
