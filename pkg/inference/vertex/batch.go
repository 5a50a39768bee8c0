// Batch-prediction lifecycle (C7), grounded line-for-line on
// original_source/tensorzero-core/src/providers/gcp_vertex_gemini/mod.rs's
// start_batch_inference/poll_batch_inference/collect_finished_batch: no Go
// teacher file implements this (digitallysavvy-go-ai's googlevertex stops
// at a LanguageModel stub), so the wire shapes and state-table mapping are
// taken directly from the original Rust source per SPEC_FULL.md §10.
package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/relaygate/inference-gateway/pkg/inference/provider"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// StartBatchInference translates each request with the same
// prepareRequest used by Infer/InferStream, labels every row with
// batchLabelsKey=<inference id>, concatenates to JSONL, uploads it to
// deps.InputURIPrefix, and creates the vendor batch job pointed at
// deps.OutputURIPrefix.
func (a *Adapter) StartBatchInference(ctx context.Context, reqs []*types.InferenceRequest, deps provider.BatchDeps) (*types.BatchRequestRow, error) {
	if deps.InputURIPrefix == "" || deps.OutputURIPrefix == "" {
		return nil, types.NewGatewayError(ProviderName, "start_batch_inference", types.ErrorKindInvalidRequest,
			"batch input_uri_prefix and output_uri_prefix are required", nil)
	}
	if deps.MakeStore == nil {
		return nil, types.NewGatewayError(ProviderName, "start_batch_inference", types.ErrorKindInternal,
			"batch deps are missing an object store factory", nil)
	}

	var jsonl bytes.Buffer
	rawRequests := make([]string, 0, len(reqs))
	modelName := ""
	for _, req := range reqs {
		if err := req.ValidateForSend(); err != nil {
			return nil, err
		}
		if modelName == "" {
			modelName = req.ModelName
		}
		parts, err := a.prepareRequest(ctx, req)
		if err != nil {
			return nil, err
		}
		inferenceID := req.InferenceID
		if inferenceID == "" {
			inferenceID = uuid.NewString()
		}
		parts.body.Labels[batchLabelsKey] = inferenceID

		line, err := json.Marshal(geminiBatchLine{Request: parts.body})
		if err != nil {
			return nil, types.NewGatewayError(ProviderName, "start_batch_inference", types.ErrorKindSerialization,
				"failed to marshal batch request line", err)
		}
		jsonl.Write(line)
		jsonl.WriteByte('\n')
		rawRequests = append(rawRequests, string(line))
	}

	batchID := uuid.NewString()
	inputURI := joinCloudPaths(deps.InputURIPrefix, fmt.Sprintf("tensorzero-batch-input-%s.jsonl", batchID))
	inputStore, _, err := deps.MakeStore(ctx, inputURI)
	if err != nil {
		return nil, err
	}
	if err := inputStore.Put(ctx, jsonl.Bytes()); err != nil {
		return nil, types.NewGatewayError(ProviderName, "start_batch_inference", types.ErrorKindSerialization,
			"failed to upload batch input JSONL", err)
	}

	outputPrefix := joinCloudPaths(deps.OutputURIPrefix, fmt.Sprintf("tensorzero-batch-output-%s", batchID))
	jobBody := geminiBatchRequest{
		DisplayName: "tensorzero-batch-" + batchID,
		Model:       "publishers/google/models/" + modelName,
		InputConfig: geminiBatchInputConfig{
			InstancesFormat: "jsonl",
			GCSSource:       geminiGCSSource{URIs: []string{inputURI}},
		},
		OutputConfig: geminiBatchOutputConfig{
			PredictionsFormat: "jsonl",
			GCSDestination:    geminiGCSDestination{OutputURIPrefix: outputPrefix},
		},
	}
	rawRequest, err := json.Marshal(jobBody)
	if err != nil {
		return nil, types.NewGatewayError(ProviderName, "start_batch_inference", types.ErrorKindSerialization,
			"failed to marshal batch job request", err)
	}

	httpReq, err := a.buildHTTPRequest(ctx, a.batchJobsURL(), rawRequest, deps.Credentials, deps.DynamicKeys, nil)
	if err != nil {
		return nil, err
	}
	// buildHTTPRequest always issues a POST, which batch job creation
	// also uses, so no method override is needed here.

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, types.NewGatewayError(ProviderName, "start_batch_inference", types.ErrorKindInferenceServer,
			"batchPredictionJobs create request failed", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewGatewayError(ProviderName, "start_batch_inference", types.ErrorKindInferenceServer,
			"failed to read batchPredictionJobs response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, translateHTTPError(resp.StatusCode, data)
	}

	var jobResp geminiBatchJobResponse
	if err := json.Unmarshal(data, &jobResp); err != nil {
		return nil, types.NewGatewayError(ProviderName, "start_batch_inference", types.ErrorKindInferenceServer,
			"batchPredictionJobs response is not valid JSON", err)
	}

	batchParams, err := json.Marshal(geminiBatchParams{JobURLSuffix: jobResp.Name})
	if err != nil {
		return nil, types.NewGatewayError(ProviderName, "start_batch_inference", types.ErrorKindSerialization,
			"failed to marshal batch params", err)
	}

	return &types.BatchRequestRow{
		BatchID:           batchID,
		ProviderType:      ProviderName,
		ProviderName:      ProviderName,
		ModelName:         modelName,
		VendorBatchParams: batchParams,
		RawRequests:       rawRequests,
		RawRequest:        string(rawRequest),
		RawResponse:       string(data),
		Status:            types.BatchPending,
	}, nil
}

// PollBatchInference fetches the job by the URL suffix persisted at Start
// time and maps GCP's twelve job states to {Pending, Completed, Failed}
// per spec.md §4.7's table.
func (a *Adapter) PollBatchInference(ctx context.Context, row *types.BatchRequestRow, deps provider.BatchDeps) (provider.BatchPollResult, error) {
	var params geminiBatchParams
	if err := json.Unmarshal(row.VendorBatchParams, &params); err != nil {
		return provider.BatchPollResult{}, types.NewGatewayError(ProviderName, "poll_batch_inference", types.ErrorKindSerialization,
			"failed to deserialize batch params", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL()+"/v1/"+strings.TrimPrefix(params.JobURLSuffix, "/"), nil)
	if err != nil {
		return provider.BatchPollResult{}, types.NewGatewayError(ProviderName, "poll_batch_inference", types.ErrorKindInternal,
			"failed to construct poll request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	authHeaders, err := deps.Credentials.GetAuthHeaders(ctx, a.audience(), deps.DynamicKeys)
	if err != nil {
		return provider.BatchPollResult{}, err
	}
	for k, vs := range authHeaders {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return provider.BatchPollResult{}, types.NewGatewayError(ProviderName, "poll_batch_inference", types.ErrorKindInferenceServer,
			"batchPredictionJobs get request failed", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.BatchPollResult{}, types.NewGatewayError(ProviderName, "poll_batch_inference", types.ErrorKindInferenceServer,
			"failed to read batchPredictionJobs response", err)
	}
	if resp.StatusCode >= 400 {
		return provider.BatchPollResult{}, translateHTTPError(resp.StatusCode, data)
	}

	var jobResp geminiBatchJobResponse
	if err := json.Unmarshal(data, &jobResp); err != nil {
		return provider.BatchPollResult{}, types.NewGatewayError(ProviderName, "poll_batch_inference", types.ErrorKindInferenceServer,
			"batchPredictionJobs response is not valid JSON", err)
	}

	switch jobResp.State {
	case jobStateQueued, jobStatePending, jobStateRunning, jobStatePaused, jobStateUpdating, jobStateUnspecified:
		return provider.BatchPollResult{Status: types.BatchPending}, nil
	case jobStateSucceeded, jobStatePartialSucceed:
		if jobResp.OutputInfo == nil {
			return provider.BatchPollResult{}, types.NewGatewayError(ProviderName, "poll_batch_inference", types.ErrorKindInferenceServer,
				"batch job has no output info in a completed state", nil)
		}
		return provider.BatchPollResult{Status: types.BatchCompleted, OutputURIPrefix: jobResp.OutputInfo.GCSOutputDirectory}, nil
	default: // Failed, Cancelling, Cancelled, Expired, and any future state
		return provider.BatchPollResult{Status: types.BatchFailed, Errors: []string{"vertex batch job reached state " + string(jobResp.State)}}, nil
	}
}

// CollectBatch reads predictions.jsonl from the job's declared output
// directory (poll.OutputURIPrefix, not deps.OutputURIPrefix) and decodes
// one ProviderBatchInferenceOutput per line, correlated by the
// batchLabelsKey label echoed back on each line's request. A line missing
// usage attaches a structured error to that row only, per spec.md §4.7
// step 3.
func (a *Adapter) CollectBatch(ctx context.Context, row *types.BatchRequestRow, poll provider.BatchPollResult, deps provider.BatchDeps) ([]*types.ProviderBatchInferenceOutput, error) {
	if deps.MakeStore == nil {
		return nil, types.NewGatewayError(ProviderName, "collect_batch", types.ErrorKindInternal,
			"batch deps are missing an object store factory", nil)
	}
	predictionsURI := joinCloudPaths(poll.OutputURIPrefix, "predictions.jsonl")
	store, _, err := deps.MakeStore(ctx, predictionsURI)
	if err != nil {
		return nil, err
	}
	data, err := store.Get(ctx)
	if err != nil {
		return nil, types.NewGatewayError(ProviderName, "collect_batch", types.ErrorKindInferenceServer,
			"failed to read predictions.jsonl", err)
	}

	var outputs []*types.ProviderBatchInferenceOutput
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out, err := a.decodeBatchLine([]byte(line), row.ModelName)
		if err != nil {
			out = &types.ProviderBatchInferenceOutput{Err: err}
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (a *Adapter) decodeBatchLine(line []byte, modelName string) (*types.ProviderBatchInferenceOutput, error) {
	var parsed geminiBatchResponseLine
	if err := json.Unmarshal(line, &parsed); err != nil {
		return nil, types.NewGatewayError(ProviderName, "collect_batch", types.ErrorKindSerialization,
			"predictions.jsonl line is not valid JSON", err)
	}

	var labels geminiBatchRequestLabels
	if err := json.Unmarshal(parsed.Request, &labels); err != nil {
		return nil, types.NewGatewayError(ProviderName, "collect_batch", types.ErrorKindSerialization,
			"failed to decode batch request labels", err)
	}
	inferenceID, ok := labels.Labels[batchLabelsKey]
	if !ok || inferenceID == "" {
		return nil, types.NewGatewayError(ProviderName, "collect_batch", types.ErrorKindInternal,
			"missing "+batchLabelsKey+" label on batch request line", nil)
	}

	var resp geminiResponse
	if err := json.Unmarshal(parsed.Response, &resp); err != nil {
		return nil, types.NewGatewayError(ProviderName, "collect_batch", types.ErrorKindSerialization,
			"failed to decode batch response line", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, types.NewGatewayError(ProviderName, "collect_batch", types.ErrorKindInferenceServer,
			"batch response line has no candidates", nil)
	}
	if resp.UsageMetadata == nil {
		return nil, types.NewGatewayError(ProviderName, "collect_batch", types.ErrorKindInferenceServer,
			"batch response line has no usage metadata", nil)
	}

	candidate := resp.Candidates[0]
	var output []types.ContentBlock
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			blocks, err := convertResponsePart(part, modelName)
			if err != nil {
				return nil, err
			}
			output = append(output, blocks...)
		}
	}

	return &types.ProviderBatchInferenceOutput{
		ID:     inferenceID,
		Output: output,
		Usage: types.Usage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		},
		FinishReason: finishReasonFromGemini(candidate.FinishReason),
		RawResponse:  string(parsed.Response),
	}, nil
}

func (a *Adapter) batchJobsURL() string {
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/batchPredictionJobs", a.baseURL(), a.project, a.location)
}

// joinCloudPaths concatenates a gs://-or-s3:// prefix with a suffix
// segment, matching the original source's join_cloud_paths (a prefix with
// or without a trailing slash both produce exactly one separator).
func joinCloudPaths(prefix, suffix string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + strings.TrimPrefix(suffix, "/")
}
