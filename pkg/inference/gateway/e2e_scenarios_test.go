package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relaygate/inference-gateway/pkg/inference/batch"
	"github.com/relaygate/inference-gateway/pkg/inference/creds"
	"github.com/relaygate/inference-gateway/pkg/inference/objectstore"
	"github.com/relaygate/inference-gateway/pkg/inference/provider"
	"github.com/relaygate/inference-gateway/pkg/inference/sink"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// newTestServer wires a Server around a single fake adapter and an
// in-process sink.Client (fakeStore/fakeCache instead of live Mongo/Redis),
// modeled on features/model/gateway/e2e_test.go's fully in-memory
// client/server pairing.
func newTestServer(t *testing.T, a provider.Adapter) (*Server, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	sinkClient, err := sink.New(sink.Options{Store: store, Cache: newFakeCache()})
	require.NoError(t, err)

	srv, err := NewServer(WithAdapter("fake", a), WithSink(sinkClient))
	require.NoError(t, err)
	return srv, store
}

func userText(text string) types.Message {
	return types.Message{Role: types.RoleUser, Content: []types.ContentBlock{types.TextBlock{Text: text}}}
}

// Scenario 1: Simple, with a cache hit on re-issue.
func TestE2ESimpleAndCacheHit(t *testing.T) {
	calls := 0
	a := &fakeAdapter{
		name: "fake",
		inferFn: func(req *types.InferenceRequest) (*types.ProviderInferenceResponse, error) {
			calls++
			return &types.ProviderInferenceResponse{
				Output:       []types.ContentBlock{types.TextBlock{Text: "Tokyo is the capital of Japan."}},
				FinishReason: types.FinishStop,
				Usage:        types.Usage{InputTokens: 12, OutputTokens: 8},
			}, nil
		},
	}
	srv, store := newTestServer(t, a)

	req := &types.InferenceRequest{
		InferenceID:   "inf-simple",
		ModelProvider: "fake",
		ModelName:     "demo-model",
		System:        `assistant_name="Dr. Mehta"`,
		Messages:      []types.Message{userText("What is the name of the capital city of Japan?")},
		Cache:         types.CacheOptions{Enabled: true, LookbackS: 10},
	}

	resp, err := srv.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Contains(t, strings.ToLower(resp.Output[0].(types.TextBlock).Text), "tokyo")
	require.Greater(t, resp.Usage.InputTokens, 0)
	require.Greater(t, resp.Usage.OutputTokens, 0)
	require.Equal(t, 1, calls)

	waitForRows(t, store)
	chatRows, modelRows := store.snapshot()
	require.Len(t, chatRows, 1)
	require.Len(t, modelRows, 1)
	require.False(t, modelRows[0].Cached)

	// Re-issue with the same request: should be served from cache without
	// a second adapter call, zero usage, and a cached=true ModelInference row.
	resp2, err := srv.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, calls, "adapter must not be called again on a cache hit")
	require.Equal(t, types.Usage{}, resp2.Usage)
	require.Contains(t, strings.ToLower(resp2.Output[0].(types.TextBlock).Text), "tokyo")

	waitForCondition(t, func() bool {
		_, modelRows := store.snapshot()
		return len(modelRows) == 2
	})
	_, modelRows = store.snapshot()
	require.True(t, modelRows[1].Cached)
}

// Scenario 2: Tool auto-used.
func TestE2EToolAutoUsed(t *testing.T) {
	a := &fakeAdapter{
		name: "fake",
		inferFn: func(req *types.InferenceRequest) (*types.ProviderInferenceResponse, error) {
			return &types.ProviderInferenceResponse{
				Output: []types.ContentBlock{types.ToolCallBlock{
					ID:            "call-1",
					Name:          "get_temperature",
					ArgumentsJSON: json.RawMessage(`{"location":"Tokyo","units":"celsius"}`),
				}},
				FinishReason: types.FinishToolCall,
				Usage:        types.Usage{InputTokens: 10, OutputTokens: 4},
			}, nil
		},
	}
	srv, _ := newTestServer(t, a)

	req := &types.InferenceRequest{
		ModelProvider: "fake",
		FunctionName:  "weather_helper",
		Messages:      []types.Message{userText("What's the weather in Tokyo in celsius?")},
		ToolConfig: &types.ToolConfig{
			ToolChoice: types.ToolChoiceAuto,
			ToolsAvailable: []types.ToolDefinition{
				{Name: "get_temperature", InputSchema: json.RawMessage(`{"type":"object"}`)},
			},
		},
	}

	resp, err := srv.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Output, 1)
	call, ok := resp.Output[0].(types.ToolCallBlock)
	require.True(t, ok)
	require.Equal(t, "get_temperature", call.Name)
	require.Contains(t, strings.ToLower(string(call.ArgumentsJSON)), "tokyo")
}

// Scenario 3: Tool multi-turn.
func TestE2EToolMultiTurn(t *testing.T) {
	a := &fakeAdapter{
		name: "fake",
		inferFn: func(req *types.InferenceRequest) (*types.ProviderInferenceResponse, error) {
			require.Len(t, req.Messages, 2)
			return &types.ProviderInferenceResponse{
				Output:       []types.ContentBlock{types.TextBlock{Text: "It's 70 degrees in Tokyo."}},
				FinishReason: types.FinishStop,
				Usage:        types.Usage{InputTokens: 20, OutputTokens: 9},
			}, nil
		},
	}
	srv, _ := newTestServer(t, a)

	req := &types.InferenceRequest{
		ModelProvider: "fake",
		Messages: []types.Message{
			{Role: types.RoleAssistant, Content: []types.ContentBlock{types.ToolCallBlock{
				ID: "123456789", Name: "get_temperature",
				ArgumentsJSON: json.RawMessage(`{"location":"Tokyo","units":"celsius"}`),
			}}},
			{Role: types.RoleUser, Content: []types.ContentBlock{types.ToolResultBlock{
				ID: "123456789", Name: "get_temperature", Result: "70",
			}}},
		},
	}

	resp, err := srv.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Contains(t, strings.ToLower(resp.Output[0].(types.TextBlock).Text), "tokyo")
}

// Scenario 4: Parallel tools.
func TestE2EParallelTools(t *testing.T) {
	a := &fakeAdapter{
		name: "fake",
		inferFn: func(req *types.InferenceRequest) (*types.ProviderInferenceResponse, error) {
			return &types.ProviderInferenceResponse{
				Output: []types.ContentBlock{
					types.ToolCallBlock{ID: "call-1", Name: "get_temperature", ArgumentsJSON: json.RawMessage(`{"location":"Tokyo"}`)},
					types.ToolCallBlock{ID: "call-2", Name: "get_humidity", ArgumentsJSON: json.RawMessage(`{"location":"Tokyo"}`)},
				},
				FinishReason: types.FinishToolCall,
				Usage:        types.Usage{InputTokens: 15, OutputTokens: 6},
			}, nil
		},
	}
	srv, _ := newTestServer(t, a)

	req := &types.InferenceRequest{
		ModelProvider: "fake",
		FunctionName:  "weather_helper_parallel",
		Messages:      []types.Message{userText("Tokyo weather and humidity?")},
		ToolConfig: &types.ToolConfig{
			ToolChoice: types.ToolChoiceAuto,
			Parallel:   true,
		},
	}

	resp, err := srv.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Output, 2)
	ids := map[string]bool{}
	names := map[string]bool{}
	for _, block := range resp.Output {
		call := block.(types.ToolCallBlock)
		ids[call.ID] = true
		names[call.Name] = true
	}
	require.Len(t, ids, 2)
	require.True(t, names["get_temperature"])
	require.True(t, names["get_humidity"])
}

// Scenario 5: JSON mode.
func TestE2EJSONMode(t *testing.T) {
	a := &fakeAdapter{
		name: "fake",
		inferFn: func(req *types.InferenceRequest) (*types.ProviderInferenceResponse, error) {
			require.Equal(t, types.FunctionTypeJSON, req.FunctionType)
			return &types.ProviderInferenceResponse{
				Output:       []types.ContentBlock{types.TextBlock{Text: `{"answer":"Tokyo"}`}},
				FinishReason: types.FinishStop,
				Usage:        types.Usage{InputTokens: 8, OutputTokens: 3},
			}, nil
		},
	}
	srv, store := newTestServer(t, a)

	req := &types.InferenceRequest{
		ModelProvider: "fake",
		FunctionName:  "json_success",
		FunctionType:  types.FunctionTypeJSON,
		JSONMode:      types.JSONModeStrict,
		OutputSchema:  json.RawMessage(`{"type":"object","properties":{"answer":{"type":"string"}}}`),
		Messages:      []types.Message{userText(`{"country":"Japan"}`)},
	}

	resp, err := srv.Complete(context.Background(), req)
	require.NoError(t, err)
	raw := resp.Output[0].(types.TextBlock).Text

	var parsed struct {
		Answer string `json:"answer"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &parsed))
	require.Contains(t, strings.ToLower(parsed.Answer), "tokyo")

	var reparsed struct {
		Answer string `json:"answer"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &reparsed))
	require.Equal(t, parsed, reparsed)

	waitForRows(t, store)
	chatRows, _ := store.snapshot()
	require.Empty(t, chatRows, "a json-mode call must land in JsonInference, not ChatInference")
}

func TestE2EJSONModeStrictRejectsNonConformingOutput(t *testing.T) {
	a := &fakeAdapter{
		name: "fake",
		inferFn: func(req *types.InferenceRequest) (*types.ProviderInferenceResponse, error) {
			return &types.ProviderInferenceResponse{
				Output:       []types.ContentBlock{types.TextBlock{Text: `{"wrong_field":"Tokyo"}`}},
				FinishReason: types.FinishStop,
			}, nil
		},
	}
	srv, _ := newTestServer(t, a)

	req := &types.InferenceRequest{
		ModelProvider: "fake",
		FunctionName:  "json_mismatch",
		FunctionType:  types.FunctionTypeJSON,
		JSONMode:      types.JSONModeStrict,
		OutputSchema:  json.RawMessage(`{"type":"object","properties":{"answer":{"type":"string"}},"required":["answer"]}`),
		Messages:      []types.Message{userText(`{"country":"Japan"}`)},
	}

	_, err := srv.Complete(context.Background(), req)
	require.Error(t, err)
}

// Scenario 6: Batch (Vertex-shaped). Exercises batch.Engine directly since
// the batch lifecycle is a separate driver from Server's unary/streaming
// request flow.
func TestE2EBatchLifecycle(t *testing.T) {
	reqs := []*types.InferenceRequest{
		{InferenceID: "id-1", Messages: []types.Message{userText("hello 1")}},
		{InferenceID: "id-2", Messages: []types.Message{userText("hello 2")}},
	}

	pollCount := 0
	a := &fakeBatchAdapter{
		startFn: func(reqs []*types.InferenceRequest) (*types.BatchRequestRow, error) {
			return &types.BatchRequestRow{BatchID: "batch-1", Status: types.BatchPending}, nil
		},
		pollFn: func() (provider.BatchPollResult, error) {
			pollCount++
			if pollCount == 1 {
				return provider.BatchPollResult{Status: types.BatchPending}, nil
			}
			return provider.BatchPollResult{Status: types.BatchCompleted, OutputURIPrefix: "gs://bucket/out"}, nil
		},
		collectFn: func() ([]*types.ProviderBatchInferenceOutput, error) {
			return []*types.ProviderBatchInferenceOutput{
				{ID: "id-1", Output: []types.ContentBlock{types.TextBlock{Text: "out 1"}}, Usage: types.Usage{InputTokens: 1, OutputTokens: 1}},
				{ID: "id-2", Output: []types.ContentBlock{types.TextBlock{Text: "out 2"}}, Usage: types.Usage{InputTokens: 1, OutputTokens: 1}},
			}, nil
		},
	}

	engine := batch.New()
	deps := provider.BatchDeps{
		MakeStore: func(ctx context.Context, uri string) (objectstore.Store, string, error) {
			return nil, "", nil
		},
	}

	row, err := engine.Start(context.Background(), a, reqs, deps)
	require.NoError(t, err)
	require.Equal(t, types.BatchPending, row.Status)

	poll1, err := engine.Poll(context.Background(), a, row, deps)
	require.NoError(t, err)
	require.Equal(t, types.BatchPending, poll1.Status)

	poll2, err := engine.Poll(context.Background(), a, row, deps)
	require.NoError(t, err)
	require.Equal(t, types.BatchCompleted, poll2.Status)

	outputs, err := engine.Collect(context.Background(), a, row, poll2, deps)
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	byID := map[string]*types.ProviderBatchInferenceOutput{}
	for _, o := range outputs {
		byID[o.ID] = o
	}
	require.Equal(t, "out 1", byID["id-1"].Output[0].(types.TextBlock).Text)
	require.Equal(t, 1, byID["id-2"].Usage.InputTokens)
}

func waitForRows(t *testing.T, store *fakeStore) {
	t.Helper()
	waitForCondition(t, func() bool {
		chatRows, modelRows := store.snapshot()
		return len(chatRows)+len(modelRows) > 0
	})
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// fakeBatchAdapter implements provider.Adapter's batch surface only; its
// unary/streaming methods are never exercised by the batch scenario.
type fakeBatchAdapter struct {
	startFn   func([]*types.InferenceRequest) (*types.BatchRequestRow, error)
	pollFn    func() (provider.BatchPollResult, error)
	collectFn func() ([]*types.ProviderBatchInferenceOutput, error)
}

func (a *fakeBatchAdapter) Name() string { return "vertex-fake" }

func (a *fakeBatchAdapter) Infer(context.Context, *types.InferenceRequest, provider.HTTPDoer, *creds.Credentials, map[string]string) (*types.ProviderInferenceResponse, error) {
	panic("not used by the batch scenario")
}

func (a *fakeBatchAdapter) InferStream(context.Context, *types.InferenceRequest, provider.HTTPDoer, *creds.Credentials, map[string]string) (provider.ChunkStream, string, error) {
	panic("not used by the batch scenario")
}

func (a *fakeBatchAdapter) StartBatchInference(_ context.Context, reqs []*types.InferenceRequest, _ provider.BatchDeps) (*types.BatchRequestRow, error) {
	return a.startFn(reqs)
}

func (a *fakeBatchAdapter) PollBatchInference(context.Context, *types.BatchRequestRow, provider.BatchDeps) (provider.BatchPollResult, error) {
	return a.pollFn()
}

func (a *fakeBatchAdapter) CollectBatch(context.Context, *types.BatchRequestRow, provider.BatchPollResult, provider.BatchDeps) ([]*types.ProviderBatchInferenceOutput, error) {
	return a.collectFn()
}
