// Package batch implements the gateway's batch-inference lifecycle (C7):
// start a vendor batch job from N requests, poll it to a terminal state,
// and collect its results back into canonical ProviderBatchInferenceOutput
// rows. The upload/job-create/poll/collect shape itself lives here, once,
// so every batch-capable adapter (today: vertex) shares one driver instead
// of reimplementing the retry-free polling loop; the vendor-specific wire
// format and JSONL schema stay in the adapter package, behind
// provider.BatchCapable.
//
// Grounded on original_source/tensorzero-core/src/providers/
// gcp_vertex_gemini/mod.rs's start_batch_inference/poll_batch_inference/
// collect_finished_batch trio (no Go teacher file implements a batch
// lifecycle; digitallysavvy-go-ai's googlevertex.LanguageModel is a stub),
// generalized to drive any provider.BatchCapable adapter uniformly.
package batch

import (
	"context"

	"github.com/relaygate/inference-gateway/pkg/inference/provider"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// Engine drives the three-phase batch lifecycle over any provider.Adapter
// that implements provider.BatchCapable with real behavior (as opposed to
// provider.UnsupportedBatch). It holds no state of its own: every method
// is a thin, logging-free pass-through plus the bookkeeping spec.md §4.7
// assigns to the engine layer rather than the adapter (idempotent polling,
// no retries on batch transitions).
type Engine struct{}

// New constructs a batch Engine. There is no configuration: URI prefixes
// and credentials travel per-call in provider.BatchDeps, matching how the
// rest of this package's adapters are configured per-request rather than
// per-engine-instance.
func New() *Engine { return &Engine{} }

// Start translates reqs to vendor JSON via adapter's own unary translator,
// uploads the resulting JSONL, creates the vendor batch job, and returns
// the persisted BatchRequestRow with Status == BatchPending. Each row is
// labelled by the adapter with a tensorzero::inference_id tag so Collect
// can correlate results back to callers (spec.md §6's one
// gateway-imposed wire convention).
func (e *Engine) Start(ctx context.Context, adapter provider.Adapter, reqs []*types.InferenceRequest, deps provider.BatchDeps) (*types.BatchRequestRow, error) {
	if len(reqs) == 0 {
		return nil, types.NewGatewayError(adapter.Name(), "start_batch_inference", types.ErrorKindInvalidRequest,
			"batch inference requires at least one request", nil)
	}
	return adapter.StartBatchInference(ctx, reqs, deps)
}

// Poll fetches the vendor job's current state and maps it to
// {Pending, Completed, Failed} per spec.md §4.7's state table. Poll is
// idempotent and is never retried by this engine; callers decide their own
// re-poll cadence (spec.md §4.7's explicit "retries are not applied to
// batch transitions").
func (e *Engine) Poll(ctx context.Context, adapter provider.Adapter, row *types.BatchRequestRow, deps provider.BatchDeps) (provider.BatchPollResult, error) {
	return adapter.PollBatchInference(ctx, row, deps)
}

// Collect reads the job's declared output location (poll.OutputURIPrefix,
// which may differ from the request-time deps.OutputURIPrefix — the
// vendor is authoritative, per spec.md §4.7 step 3) and returns one
// ProviderBatchInferenceOutput per surviving line. Collect must only be
// called after Poll reports types.BatchCompleted; it does not re-check
// that here, leaving the ordering contract to the caller (mirroring the
// original source's poll_batch_inference calling collect_finished_batch
// inline only in the Succeeded/PartiallySucceeded arm).
func (e *Engine) Collect(ctx context.Context, adapter provider.Adapter, row *types.BatchRequestRow, poll provider.BatchPollResult, deps provider.BatchDeps) ([]*types.ProviderBatchInferenceOutput, error) {
	return adapter.CollectBatch(ctx, row, poll, deps)
}

// Run drives Start, then polls each time the channel returned by poll
// fires until a terminal state is reached (or ctx is done), then Collects
// on BatchCompleted. This is a convenience wrapper for callers (such as
// tests) who want the whole
// lifecycle in one call rather than owning their own poll loop; production
// callers are expected to persist the BatchRequestRow between polls and
// call Poll/Collect directly, matching spec.md §4.7's evolving-status-row
// lifecycle rather than a single blocking call.
func (e *Engine) Run(ctx context.Context, adapter provider.Adapter, reqs []*types.InferenceRequest, deps provider.BatchDeps, poll func(context.Context) <-chan struct{}) (*types.BatchRequestRow, []*types.ProviderBatchInferenceOutput, error) {
	row, err := e.Start(ctx, adapter, reqs, deps)
	if err != nil {
		return nil, nil, err
	}
	for {
		res, err := e.Poll(ctx, adapter, row, deps)
		if err != nil {
			return row, nil, err
		}
		switch res.Status {
		case types.BatchCompleted:
			row.Status = types.BatchCompleted
			outputs, err := e.Collect(ctx, adapter, row, res, deps)
			return row, outputs, err
		case types.BatchFailed:
			row.Status = types.BatchFailed
			row.Errors = res.Errors
			return row, nil, types.NewGatewayError(adapter.Name(), "poll_batch_inference", types.ErrorKindInferenceServer,
				"batch job failed", nil)
		default:
			select {
			case <-ctx.Done():
				return row, nil, ctx.Err()
			case <-poll(ctx):
			}
		}
	}
}
