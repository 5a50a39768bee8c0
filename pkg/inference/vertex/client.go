package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/relaygate/inference-gateway/pkg/inference/creds"
	"github.com/relaygate/inference-gateway/pkg/inference/provider"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// Adapter implements provider.Adapter over the Vertex AI
// generateContent/streamGenerateContent REST API. Unlike bedrock's
// SDK-owned transport, Vertex calls flow through the caller-supplied
// provider.HTTPDoer, matching the teacher's
// digitallysavvy-go-ai/pkg/providers/googlevertex internal/http.Client
// pattern generalized to this gateway's narrower HTTPDoer interface.
type Adapter struct {
	project    string
	location   string
	httpClient provider.HTTPDoer
}

// Option customizes an Adapter beyond its required project/location.
type Option func(*Adapter)

// WithHTTPClient overrides the transport StartBatchInference and
// PollBatchInference use (Infer/InferStream instead take their HTTPDoer
// per-call). Tests use this to substitute a fake transport; production
// callers can leave it unset to get http.DefaultClient.
func WithHTTPClient(c provider.HTTPDoer) Option {
	return func(a *Adapter) { a.httpClient = c }
}

// New constructs a Vertex adapter for the given GCP project and location
// (e.g. "us-central1"), matching googlevertex.Config's Project/Location
// fields.
func New(project, location string, opts ...Option) (*Adapter, error) {
	if project == "" || location == "" {
		return nil, types.NewGatewayError(ProviderName, "new", types.ErrorKindInternal,
			"project and location are required", nil)
	}
	a := &Adapter{project: project, location: location, httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Name identifies this adapter for logging, metrics, and sink rows.
func (a *Adapter) Name() string { return ProviderName }

func (a *Adapter) baseURL() string {
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com", a.location)
}

func (a *Adapter) audience() string {
	return a.baseURL() + "/"
}

func (a *Adapter) modelPath(modelName string) string {
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s",
		a.baseURL(), a.project, a.location, modelName)
}

// Infer performs one unary :generateContent call.
func (a *Adapter) Infer(ctx context.Context, req *types.InferenceRequest, httpClient provider.HTTPDoer, cr *creds.Credentials, dynamicKeys map[string]string) (*types.ProviderInferenceResponse, error) {
	if err := req.ValidateForSend(); err != nil {
		return nil, err
	}
	parts, err := a.prepareRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	body, err := a.marshalBody(&parts.body, req.ExtraBody)
	if err != nil {
		return nil, err
	}
	rawReq, _ := types.SerializeOrLog(ctx, "vertex_generate_content_request", json.RawMessage(body))

	httpReq, err := a.buildHTTPRequest(ctx, a.modelPath(req.ModelName)+":generateContent", body, cr, dynamicKeys, req.ExtraHeaders)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, types.NewGatewayError(ProviderName, "infer", types.ErrorKindInferenceServer,
			"generateContent request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewGatewayError(ProviderName, "infer", types.ErrorKindInferenceServer,
			"failed to read generateContent response body", err)
	}
	if resp.StatusCode >= 400 {
		return nil, translateHTTPError(resp.StatusCode, data)
	}

	var gr geminiResponse
	if err := json.Unmarshal(data, &gr); err != nil {
		return nil, types.NewGatewayError(ProviderName, "infer", types.ErrorKindInferenceServer,
			"generateContent response is not valid JSON", err)
	}
	return a.translateResponse(ctx, &gr, rawReq, req)
}

// InferStream performs one :streamGenerateContent?alt=sse call and returns
// a ChunkStream backed by pkg/inference/stream.Assembler.
func (a *Adapter) InferStream(ctx context.Context, req *types.InferenceRequest, httpClient provider.HTTPDoer, cr *creds.Credentials, dynamicKeys map[string]string) (provider.ChunkStream, string, error) {
	if err := req.ValidateForSend(); err != nil {
		return nil, "", err
	}
	parts, err := a.prepareRequest(ctx, req)
	if err != nil {
		return nil, "", err
	}

	body, err := a.marshalBody(&parts.body, req.ExtraBody)
	if err != nil {
		return nil, "", err
	}
	rawReq, _ := types.SerializeOrLog(ctx, "vertex_stream_generate_content_request", json.RawMessage(body))

	httpReq, err := a.buildHTTPRequest(ctx, a.modelPath(req.ModelName)+":streamGenerateContent?alt=sse", body, cr, dynamicKeys, req.ExtraHeaders)
	if err != nil {
		return nil, rawReq, err
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, rawReq, types.NewGatewayError(ProviderName, "infer_stream", types.ErrorKindInferenceServer,
			"streamGenerateContent request failed", err)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, rawReq, translateHTTPError(resp.StatusCode, data)
	}

	return newChunkStream(ctx, resp.Body), rawReq, nil
}

func (a *Adapter) marshalBody(body *geminiRequest, extraBody json.RawMessage) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewGatewayError(ProviderName, "marshal_body", types.ErrorKindSerialization,
			"failed to marshal generateContent request", err)
	}
	if len(extraBody) == 0 {
		return encoded, nil
	}
	return mergeExtraBody(encoded, extraBody)
}

// mergeExtraBody shallow-merges extraBody's top-level keys onto encoded,
// matching SPEC_FULL.md §8's "extra_body injected immediately before send"
// rule.
func mergeExtraBody(encoded, extraBody []byte) ([]byte, error) {
	var base map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &base); err != nil {
		return nil, types.NewGatewayError(ProviderName, "merge_extra_body", types.ErrorKindSerialization,
			"failed to decode request for extra_body merge", err)
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(extraBody, &extra); err != nil {
		return nil, types.NewGatewayError(ProviderName, "merge_extra_body", types.ErrorKindTypeConversion,
			"extra_body is not a JSON object", err)
	}
	for k, v := range extra {
		base[k] = v
	}
	out, err := json.Marshal(base)
	if err != nil {
		return nil, types.NewGatewayError(ProviderName, "merge_extra_body", types.ErrorKindSerialization,
			"failed to re-marshal merged request", err)
	}
	return out, nil
}

func (a *Adapter) buildHTTPRequest(ctx context.Context, url string, body []byte, cr *creds.Credentials, dynamicKeys map[string]string, extraHeaders map[string]string) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewGatewayError(ProviderName, "build_request", types.ErrorKindInternal,
			"failed to construct HTTP request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	authHeaders, err := cr.GetAuthHeaders(ctx, a.audience(), dynamicKeys)
	if err != nil {
		return nil, err
	}
	for k, vs := range authHeaders {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for k, v := range extraHeaders {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}
