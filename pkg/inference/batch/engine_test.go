package batch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaygate/inference-gateway/pkg/inference/creds"
	"github.com/relaygate/inference-gateway/pkg/inference/provider"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

type fakeBatchAdapter struct {
	provider.UnsupportedBatch
	startCalls int
	pollCalls  int
	pollSeq    []types.BatchStatus
	outputs    []*types.ProviderBatchInferenceOutput
}

func (f *fakeBatchAdapter) Name() string { return "fake" }

func (f *fakeBatchAdapter) Infer(context.Context, *types.InferenceRequest, provider.HTTPDoer, *creds.Credentials, map[string]string) (*types.ProviderInferenceResponse, error) {
	panic("not used by this test")
}

func (f *fakeBatchAdapter) InferStream(context.Context, *types.InferenceRequest, provider.HTTPDoer, *creds.Credentials, map[string]string) (provider.ChunkStream, string, error) {
	panic("not used by this test")
}

func (f *fakeBatchAdapter) StartBatchInference(ctx context.Context, reqs []*types.InferenceRequest, deps provider.BatchDeps) (*types.BatchRequestRow, error) {
	f.startCalls++
	return &types.BatchRequestRow{BatchID: "b1", ProviderName: "fake", Status: types.BatchPending}, nil
}

func (f *fakeBatchAdapter) PollBatchInference(ctx context.Context, row *types.BatchRequestRow, deps provider.BatchDeps) (provider.BatchPollResult, error) {
	status := f.pollSeq[f.pollCalls]
	f.pollCalls++
	return provider.BatchPollResult{Status: status, OutputURIPrefix: "gs://out/dir"}, nil
}

func (f *fakeBatchAdapter) CollectBatch(ctx context.Context, row *types.BatchRequestRow, poll provider.BatchPollResult, deps provider.BatchDeps) ([]*types.ProviderBatchInferenceOutput, error) {
	return f.outputs, nil
}

func TestEngineRunPollsUntilCompletedThenCollects(t *testing.T) {
	adapter := &fakeBatchAdapter{
		pollSeq: []types.BatchStatus{types.BatchPending, types.BatchPending, types.BatchCompleted},
		outputs: []*types.ProviderBatchInferenceOutput{
			{ID: "inf-1", Usage: types.Usage{InputTokens: 3, OutputTokens: 4}, FinishReason: types.FinishStop},
		},
	}
	e := New()
	reqs := []*types.InferenceRequest{{ModelName: "gemini-2.0-flash", Messages: []types.Message{{Role: types.RoleUser, Content: []types.ContentBlock{types.TextBlock{Text: "hi"}}}}}}

	tick := make(chan struct{}, 16)
	for i := 0; i < 16; i++ {
		tick <- struct{}{}
	}
	row, outputs, err := e.Run(context.Background(), adapter, reqs, provider.BatchDeps{}, func(context.Context) <-chan struct{} { return tick })

	require.NoError(t, err)
	require.Equal(t, 1, adapter.startCalls)
	require.Equal(t, 3, adapter.pollCalls)
	require.Equal(t, types.BatchCompleted, row.Status)
	require.Len(t, outputs, 1)
	require.Equal(t, "inf-1", outputs[0].ID)
}

func TestEngineRunSurfacesFailedStatus(t *testing.T) {
	adapter := &fakeBatchAdapter{pollSeq: []types.BatchStatus{types.BatchFailed}}
	e := New()
	reqs := []*types.InferenceRequest{{ModelName: "m"}}

	row, outputs, err := e.Run(context.Background(), adapter, reqs, provider.BatchDeps{}, func(context.Context) <-chan struct{} {
		ch := make(chan struct{}, 1)
		ch <- struct{}{}
		return ch
	})

	require.Error(t, err)
	require.Nil(t, outputs)
	require.Equal(t, types.BatchFailed, row.Status)
}

func TestEngineStartRejectsEmptyRequestList(t *testing.T) {
	adapter := &fakeBatchAdapter{}
	e := New()
	_, err := e.Start(context.Background(), adapter, nil, provider.BatchDeps{})
	require.Error(t, err)
	ge, ok := types.AsGatewayError(err)
	require.True(t, ok)
	require.Equal(t, types.ErrorKindInvalidRequest, ge.Kind())
	require.Equal(t, 0, adapter.startCalls)
}
