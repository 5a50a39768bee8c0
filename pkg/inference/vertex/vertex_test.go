package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaygate/inference-gateway/pkg/inference/creds"
	"github.com/relaygate/inference-gateway/pkg/inference/objectstore"
	"github.com/relaygate/inference-gateway/pkg/inference/provider"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// scriptedDoer replays one *http.Response per call to Do, in order.
type scriptedDoer struct {
	responses []*http.Response
	errs      []error
	calls     int
	requests  []*http.Request
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	i := d.calls
	d.calls++
	d.requests = append(d.requests, req)
	var err error
	if i < len(d.errs) {
		err = d.errs[i]
	}
	if i < len(d.responses) {
		return d.responses[i], err
	}
	return d.responses[len(d.responses)-1], err
}

func jsonResponse(status int, body any) *http.Response {
	data, _ := json.Marshal(body)
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(data))}
}

func basicRequest() *types.InferenceRequest {
	return &types.InferenceRequest{
		ModelName: "gemini-2.0-flash",
		Messages: []types.Message{
			{Role: types.RoleUser, Content: []types.ContentBlock{types.TextBlock{Text: "hi"}}},
		},
	}
}

func TestInferTranslatesTextResponse(t *testing.T) {
	a, err := New("proj", "us-central1")
	require.NoError(t, err)

	doer := &scriptedDoer{responses: []*http.Response{jsonResponse(200, geminiResponse{
		Candidates: []geminiResponseCandidate{{
			Content:      &geminiResponseContent{Parts: []geminiResponseContentPart{{Text: strPtr("hello there")}}},
			FinishReason: finishStop,
		}},
		UsageMetadata: &geminiUsageMetadata{PromptTokenCount: 3, CandidatesTokenCount: 5},
	})}}

	resp, err := a.Infer(context.Background(), basicRequest(), doer, creds.NewNone(), nil)
	require.NoError(t, err)
	require.Equal(t, types.FinishStop, resp.FinishReason)
	require.Equal(t, types.Usage{InputTokens: 3, OutputTokens: 5}, resp.Usage)
	require.Len(t, resp.Output, 1)
	text, ok := resp.Output[0].(types.TextBlock)
	require.True(t, ok)
	require.Equal(t, "hello there", text.Text)
	require.Equal(t, 1, doer.calls)
	require.Contains(t, doer.requests[0].URL.String(), ":generateContent")
}

func TestInferMissingUsageIsInferenceServerError(t *testing.T) {
	a, err := New("proj", "us-central1")
	require.NoError(t, err)

	doer := &scriptedDoer{responses: []*http.Response{jsonResponse(200, geminiResponse{
		Candidates: []geminiResponseCandidate{{
			Content:      &geminiResponseContent{Parts: []geminiResponseContentPart{{Text: strPtr("x")}}},
			FinishReason: finishStop,
		}},
	})}}

	_, err = a.Infer(context.Background(), basicRequest(), doer, creds.NewNone(), nil)
	require.Error(t, err)
	ge, ok := types.AsGatewayError(err)
	require.True(t, ok)
	require.Equal(t, types.ErrorKindInferenceServer, ge.Kind())
}

func TestInferHTTPErrorIsClassified(t *testing.T) {
	a, err := New("proj", "us-central1")
	require.NoError(t, err)

	doer := &scriptedDoer{responses: []*http.Response{{
		StatusCode: 429,
		Body:       io.NopCloser(strings.NewReader(`{"error":"rate limited"}`)),
	}}}

	_, err = a.Infer(context.Background(), basicRequest(), doer, creds.NewNone(), nil)
	require.Error(t, err)
	ge, ok := types.AsGatewayError(err)
	require.True(t, ok)
	require.Equal(t, types.ErrorKindInferenceClient, ge.Kind())
	require.True(t, ge.Retryable())
}

func TestFinishReasonFromGeminiTable(t *testing.T) {
	cases := map[geminiFinishReason]types.FinishReason{
		finishStop:              types.FinishStop,
		finishMaxTokens:         types.FinishLength,
		finishSafety:            types.FinishContentFilter,
		finishBlocklist:         types.FinishContentFilter,
		finishProhibitedContent: types.FinishContentFilter,
		finishSpii:              types.FinishContentFilter,
		finishRecitation:        types.FinishToolCall,
		finishMalformedFuncCall: types.FinishToolCall,
		finishOther:             types.FinishUnknown,
		finishUnspecified:       types.FinishUnknown,
		geminiFinishReason("future-value"): types.FinishUnknown,
	}
	for in, want := range cases {
		require.Equal(t, want, finishReasonFromGemini(in), "finish reason %q", in)
	}
}

func TestEncodeToolConfigNoneClearsAllowedTools(t *testing.T) {
	cfg := &types.ToolConfig{
		ToolsAvailable: []types.ToolDefinition{{Name: "search"}},
		AllowedTools:   map[string]struct{}{"search": {}},
		ToolChoice:     types.ToolChoiceNone,
	}
	_, toolConfig, err := encodeToolConfig(cfg, "gemini-2.0-flash")
	require.NoError(t, err)
	require.Equal(t, modeNone, toolConfig.FunctionCallingConfig.Mode)
	require.Nil(t, toolConfig.FunctionCallingConfig.AllowedFunctionNames)
}

func TestEncodeToolConfigSpecificRequiresToolName(t *testing.T) {
	cfg := &types.ToolConfig{
		ToolsAvailable: []types.ToolDefinition{{Name: "search"}},
		ToolChoice:     types.ToolChoiceSpecific,
	}
	_, _, err := encodeToolConfig(cfg, "gemini-2.0-flash")
	require.Error(t, err)
	ge, ok := types.AsGatewayError(err)
	require.True(t, ok)
	require.Equal(t, types.ErrorKindInvalidRequest, ge.Kind())
}

// memStore is a trivial in-memory objectstore.Store for batch tests.
type memStore struct {
	data *[]byte
}

func (m memStore) Put(_ context.Context, data []byte) error {
	*m.data = append([]byte(nil), data...)
	return nil
}

func (m memStore) Get(_ context.Context) ([]byte, error) {
	if m.data == nil || *m.data == nil {
		return nil, io.EOF
	}
	return *m.data, nil
}

func strPtr(s string) *string { return &s }

func batchTestDeps(inputData, outputData *[]byte) provider.BatchDeps {
	return provider.BatchDeps{
		Credentials: creds.NewNone(),
		MakeStore: func(_ context.Context, uri string) (objectstore.Store, string, error) {
			if strings.Contains(uri, "input") {
				return memStore{data: inputData}, uri, nil
			}
			return memStore{data: outputData}, uri, nil
		},
		InputURIPrefix:  "gs://bucket/input",
		OutputURIPrefix: "gs://bucket/output",
	}
}

func TestStartBatchInferenceUploadsJSONLAndPersistsJobName(t *testing.T) {
	var input []byte
	a, err := New("proj", "us-central1", WithHTTPClient(&scriptedDoer{
		responses: []*http.Response{jsonResponse(200, geminiBatchJobResponse{
			Name:  "projects/proj/locations/us-central1/batchPredictionJobs/123",
			State: jobStateQueued,
		})},
	}))
	require.NoError(t, err)

	reqs := []*types.InferenceRequest{basicRequest(), basicRequest()}
	row, err := a.StartBatchInference(context.Background(), reqs, batchTestDeps(&input, nil))
	require.NoError(t, err)
	require.Equal(t, types.BatchPending, row.Status)
	require.Equal(t, ProviderName, row.ProviderName)
	require.Len(t, row.RawRequests, 2)

	lines := strings.Split(strings.TrimSpace(string(input)), "\n")
	require.Len(t, lines, 2)
	var line geminiBatchLine
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &line))
	require.NotEmpty(t, line.Request.Labels[batchLabelsKey])

	var params geminiBatchParams
	require.NoError(t, json.Unmarshal(row.VendorBatchParams, &params))
	require.Equal(t, "projects/proj/locations/us-central1/batchPredictionJobs/123", params.JobURLSuffix)
}

func TestStartBatchInferenceRejectsInvalidRequest(t *testing.T) {
	a, err := New("proj", "us-central1")
	require.NoError(t, err)
	var input []byte

	_, err = a.StartBatchInference(context.Background(), []*types.InferenceRequest{{}}, batchTestDeps(&input, nil))
	require.Error(t, err)
}

func TestPollBatchInferenceMapsStatesToCanonicalThree(t *testing.T) {
	cases := []struct {
		state geminiBatchJobState
		want  types.BatchStatus
	}{
		{jobStateQueued, types.BatchPending},
		{jobStatePending, types.BatchPending},
		{jobStateRunning, types.BatchPending},
		{jobStatePaused, types.BatchPending},
		{jobStateUpdating, types.BatchPending},
		{jobStateFailed, types.BatchFailed},
		{jobStateCancelled, types.BatchFailed},
		{jobStateExpired, types.BatchFailed},
	}
	for _, c := range cases {
		doer := &scriptedDoer{responses: []*http.Response{jsonResponse(200, geminiBatchJobResponse{
			Name: "jobs/1", State: c.state,
		})}}
		a, err := New("proj", "us-central1", WithHTTPClient(doer))
		require.NoError(t, err)

		params, _ := json.Marshal(geminiBatchParams{JobURLSuffix: "jobs/1"})
		row := &types.BatchRequestRow{VendorBatchParams: params}

		res, err := a.PollBatchInference(context.Background(), row, provider.BatchDeps{Credentials: creds.NewNone()})
		require.NoError(t, err, "state %q", c.state)
		require.Equal(t, c.want, res.Status, "state %q", c.state)
	}
}

func TestPollBatchInferenceSucceededCarriesOutputDirectory(t *testing.T) {
	doer := &scriptedDoer{responses: []*http.Response{jsonResponse(200, geminiBatchJobResponse{
		Name:       "jobs/1",
		State:      jobStateSucceeded,
		OutputInfo: &geminiBatchJobResponseOutputInfo{GCSOutputDirectory: "gs://bucket/output/123"},
	})}}
	a, err := New("proj", "us-central1", WithHTTPClient(doer))
	require.NoError(t, err)

	params, _ := json.Marshal(geminiBatchParams{JobURLSuffix: "jobs/1"})
	row := &types.BatchRequestRow{VendorBatchParams: params}

	res, err := a.PollBatchInference(context.Background(), row, provider.BatchDeps{Credentials: creds.NewNone()})
	require.NoError(t, err)
	require.Equal(t, types.BatchCompleted, res.Status)
	require.Equal(t, "gs://bucket/output/123", res.OutputURIPrefix)
}

func TestCollectBatchCorrelatesByInferenceIDLabel(t *testing.T) {
	reqLine, _ := json.Marshal(geminiBatchLine{
		Request: geminiRequest{Labels: map[string]string{batchLabelsKey: "inf-42"}},
	})
	respBody, _ := json.Marshal(geminiResponse{
		Candidates: []geminiResponseCandidate{{
			Content:      &geminiResponseContent{Parts: []geminiResponseContentPart{{Text: strPtr("collected")}}},
			FinishReason: finishStop,
		}},
		UsageMetadata: &geminiUsageMetadata{PromptTokenCount: 2, CandidatesTokenCount: 6},
	})
	line, _ := json.Marshal(geminiBatchResponseLine{Request: requestFieldOf(reqLine), Response: respBody})

	output := append([]byte(nil), line...)
	output = append(output, '\n')

	a, err := New("proj", "us-central1")
	require.NoError(t, err)
	row := &types.BatchRequestRow{ModelName: "gemini-2.0-flash"}
	poll := provider.BatchPollResult{OutputURIPrefix: "gs://bucket/output/123"}

	outputs, err := a.CollectBatch(context.Background(), row, poll, batchTestDeps(nil, &output))
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	require.NoError(t, outputs[0].Err)
	require.Equal(t, "inf-42", outputs[0].ID)
	require.Len(t, outputs[0].Output, 1)
	text, ok := outputs[0].Output[0].(types.TextBlock)
	require.True(t, ok)
	require.Equal(t, "collected", text.Text)
	require.Equal(t, types.Usage{InputTokens: 2, OutputTokens: 6}, outputs[0].Usage)
}

func TestCollectBatchMissingUsageAttachesPerRowError(t *testing.T) {
	reqLine, _ := json.Marshal(geminiBatchLine{
		Request: geminiRequest{Labels: map[string]string{batchLabelsKey: "inf-7"}},
	})
	respBody, _ := json.Marshal(geminiResponse{
		Candidates: []geminiResponseCandidate{{
			Content:      &geminiResponseContent{Parts: []geminiResponseContentPart{{Text: strPtr("no usage")}}},
			FinishReason: finishStop,
		}},
	})
	line, _ := json.Marshal(geminiBatchResponseLine{Request: requestFieldOf(reqLine), Response: respBody})
	output := append(append([]byte(nil), line...), '\n')

	a, err := New("proj", "us-central1")
	require.NoError(t, err)
	row := &types.BatchRequestRow{ModelName: "gemini-2.0-flash"}
	poll := provider.BatchPollResult{OutputURIPrefix: "gs://bucket/output/123"}

	outputs, err := a.CollectBatch(context.Background(), row, poll, batchTestDeps(nil, &output))
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	require.Error(t, outputs[0].Err)
	ge, ok := types.AsGatewayError(outputs[0].Err)
	require.True(t, ok)
	require.Equal(t, types.ErrorKindInferenceServer, ge.Kind())
}

func TestJoinCloudPaths(t *testing.T) {
	require.Equal(t, "gs://bucket/a", joinCloudPaths("gs://bucket", "a"))
	require.Equal(t, "gs://bucket/a", joinCloudPaths("gs://bucket/", "a"))
	require.Equal(t, "gs://bucket/a", joinCloudPaths("gs://bucket/", "/a"))
}

// requestFieldOf extracts the raw "request" field from a marshalled
// geminiBatchLine, so tests can build a geminiBatchResponseLine around it
// without re-deriving the labels wrapper by hand.
func requestFieldOf(batchLine []byte) json.RawMessage {
	var wrapper struct {
		Request json.RawMessage `json:"request"`
	}
	if err := json.Unmarshal(batchLine, &wrapper); err != nil {
		panic(err)
	}
	return wrapper.Request
}
