package vertex

import "encoding/json"

// batchLabelsKey is the one gateway-imposed wire convention spec.md §6
// names explicitly: every Vertex batch request row carries this label so
// results can be correlated back to the caller's inference id once the job
// completes, matching original_source's INFERENCE_ID_LABEL constant.
const batchLabelsKey = "tensorzero::inference_id"

// geminiBatchLine is one line of the uploaded input JSONL, matching
// GCPVertexBatchLine (`{"request": <GCPVertexGeminiRequest>}`).
type geminiBatchLine struct {
	Request geminiRequest `json:"request"`
}

// geminiBatchRequest is the batchPredictionJobs create-job body, matching
// GCPVertexGeminiBatchRequest's Jsonl/gcs variant (the only one this
// gateway wires; other input/output formats are not in scope).
type geminiBatchRequest struct {
	DisplayName  string                   `json:"displayName"`
	Model        string                   `json:"model"`
	InputConfig  geminiBatchInputConfig   `json:"inputConfig"`
	OutputConfig geminiBatchOutputConfig  `json:"outputConfig"`
}

type geminiBatchInputConfig struct {
	InstancesFormat string            `json:"instancesFormat"`
	GCSSource       geminiGCSSource   `json:"gcsSource"`
}

type geminiGCSSource struct {
	URIs []string `json:"uris"`
}

type geminiBatchOutputConfig struct {
	PredictionsFormat string               `json:"predictionsFormat"`
	GCSDestination    geminiGCSDestination `json:"gcsDestination"`
}

type geminiGCSDestination struct {
	OutputURIPrefix string `json:"outputUriPrefix"`
}

// geminiBatchJobResponse is the create/poll response shape, matching
// GCPVertexBatchResponse.
type geminiBatchJobResponse struct {
	Name       string                          `json:"name"`
	State      geminiBatchJobState             `json:"state"`
	OutputInfo *geminiBatchJobResponseOutputInfo `json:"outputInfo,omitempty"`
}

type geminiBatchJobResponseOutputInfo struct {
	GCSOutputDirectory string `json:"gcsOutputDirectory"`
}

// geminiBatchJobState mirrors GCPVertexJobState's twelve-value enum.
type geminiBatchJobState string

const (
	jobStateUnspecified    geminiBatchJobState = "JOB_STATE_UNSPECIFIED"
	jobStateQueued         geminiBatchJobState = "JOB_STATE_QUEUED"
	jobStatePending        geminiBatchJobState = "JOB_STATE_PENDING"
	jobStateRunning        geminiBatchJobState = "JOB_STATE_RUNNING"
	jobStateSucceeded      geminiBatchJobState = "JOB_STATE_SUCCEEDED"
	jobStateFailed         geminiBatchJobState = "JOB_STATE_FAILED"
	jobStateCancelling     geminiBatchJobState = "JOB_STATE_CANCELLING"
	jobStateCancelled      geminiBatchJobState = "JOB_STATE_CANCELLED"
	jobStatePaused         geminiBatchJobState = "JOB_STATE_PAUSED"
	jobStateExpired        geminiBatchJobState = "JOB_STATE_EXPIRED"
	jobStateUpdating       geminiBatchJobState = "JOB_STATE_UPDATING"
	jobStatePartialSucceed geminiBatchJobState = "JOB_STATE_PARTIALLY_SUCCEEDED"
)

// geminiBatchParams is the opaque per-row persisted state
// (types.BatchRequestRow.VendorBatchParams), matching GCPVertexBatchParams.
type geminiBatchParams struct {
	JobURLSuffix string `json:"job_url_suffix"`
}

// geminiBatchResponseLine is one line of predictions.jsonl, matching
// GCPVertexBatchResponseLine: the request is kept as a raw message purely
// to recover its label (the response is the only part that needs full
// decoding).
type geminiBatchResponseLine struct {
	Request  json.RawMessage `json:"request"`
	Response json.RawMessage `json:"response"`
}

// geminiBatchRequestLabels recovers just the labels map from a batch
// request line, without decoding the rest of the (potentially large)
// request body.
type geminiBatchRequestLabels struct {
	Labels map[string]string `json:"labels"`
}
