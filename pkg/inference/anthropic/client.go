// Package anthropic implements the Anthropic Messages adapter (C5), shaped
// like the bedrock/openai adapter packages (ChatClient-narrowing interface,
// Options/New/Name/Infer/InferStream) but grounded on the real SDK usage
// shown in haasonsaas-nexus/internal/agent/providers/anthropic.go — the
// one example in the corpus that drives github.com/anthropics/
// anthropic-sdk-go end to end (message/tool construction helpers, the
// content_block_start/delta/stop event-type switch, error unwrapping via
// *anthropic.Error). That file only builds a streaming path and an
// unrelated computer-use beta path; this package generalizes its
// streaming shape to a shared Assembler and adds the unary Messages.New
// call the teacher's bedrock/openai packages both already support.
package anthropic

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/relaygate/inference-gateway/pkg/inference/creds"
	"github.com/relaygate/inference-gateway/pkg/inference/provider"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// ProviderName identifies this adapter in logs, metrics, and sink rows.
const ProviderName = "anthropic"

// dynamicKeyName is the dynamicKeys map key an Anthropic-routed request's
// Dynamic credentials resolve against.
const dynamicKeyName = "anthropic_api_key"

// defaultMaxTokens is used when a request sets no explicit max_tokens,
// matching the teacher's getMaxTokens default — the Messages API requires
// the field, unlike Bedrock/OpenAI's optional cap.
const defaultMaxTokens = 4096

// MessagesClient mirrors the subset of the Anthropic SDK this adapter
// needs, matching anthropic.Client.Messages so tests can substitute a fake
// implementation.
type MessagesClient interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
	NewStreaming(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

// Adapter implements provider.Adapter on top of the Anthropic Messages
// API. It embeds provider.UnsupportedBatch: Anthropic's Message Batches
// API, like OpenAI's, is a whole-file-upload/custom_id job model distinct
// from the upload/job/poll shape this gateway's batch engine (C7)
// generalizes for Vertex (see DESIGN.md).
type Adapter struct {
	provider.UnsupportedBatch

	messages MessagesClient
}

// Options configures New.
type Options struct {
	// APIKey constructs a default anthropic.Client when Messages is nil.
	APIKey string
	// BaseURL overrides the default Anthropic endpoint.
	BaseURL string
	// Messages, when set, is used directly instead of constructing a
	// client from APIKey/BaseURL. Tests supply a fake here.
	Messages MessagesClient
}

// New constructs an Anthropic adapter, grounded on
// NewAnthropicProvider/anthropic.NewClient(options.WithAPIKey(...)).
func New(opts Options) (*Adapter, error) {
	messages := opts.Messages
	if messages == nil {
		reqOpts := []option.RequestOption{}
		if opts.APIKey != "" {
			reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
		}
		if opts.BaseURL != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
		}
		client := anthropic.NewClient(reqOpts...)
		messages = sdkMessagesClient{client: &client}
	}

	return &Adapter{
		UnsupportedBatch: provider.UnsupportedBatch{ProviderName: ProviderName},
		messages:         messages,
	}, nil
}

// Name identifies this adapter for logging, metrics, and sink rows.
func (a *Adapter) Name() string { return ProviderName }

// Infer performs one unary Messages.New call.
func (a *Adapter) Infer(ctx context.Context, req *types.InferenceRequest, _ provider.HTTPDoer, cr *creds.Credentials, dynamicKeys map[string]string) (*types.ProviderInferenceResponse, error) {
	if err := req.ValidateForSend(); err != nil {
		return nil, err
	}
	params, prefilled, err := a.prepareRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	rawReq, _ := types.SerializeOrLog(ctx, "anthropic_message_request", params)

	callOpts, err := perCallOptions(ctx, cr, dynamicKeys)
	if err != nil {
		return nil, err
	}

	msg, err := a.messages.New(ctx, params, callOpts...)
	if err != nil {
		return nil, translateError(err)
	}
	return a.translateResponse(ctx, msg, rawReq, req, prefilled)
}

// InferStream performs one streaming Messages.New call and returns a
// ChunkStream backed by pkg/inference/stream.Assembler.
func (a *Adapter) InferStream(ctx context.Context, req *types.InferenceRequest, _ provider.HTTPDoer, cr *creds.Credentials, dynamicKeys map[string]string) (provider.ChunkStream, string, error) {
	if err := req.ValidateForSend(); err != nil {
		return nil, "", err
	}
	params, prefilled, err := a.prepareRequest(ctx, req)
	if err != nil {
		return nil, "", err
	}
	rawReq, _ := types.SerializeOrLog(ctx, "anthropic_message_stream_request", params)

	callOpts, err := perCallOptions(ctx, cr, dynamicKeys)
	if err != nil {
		return nil, rawReq, err
	}

	sdkStream := a.messages.NewStreaming(ctx, params, callOpts...)
	return newChunkStream(ctx, sdkStream, prefilled), rawReq, nil
}

// perCallOptions mirrors openai.perCallOptions: a Dynamic credential's
// resolved Authorization header overrides the adapter's static client key
// for this one call. SDK-delegated credentials resolve Google tokens only,
// so they add no option here and the static key is used.
func perCallOptions(ctx context.Context, cr *creds.Credentials, dynamicKeys map[string]string) ([]option.RequestOption, error) {
	if cr == nil || cr.Kind() == creds.KindSDK {
		return nil, nil
	}
	headers, err := cr.GetAuthHeaders(ctx, dynamicKeyName, dynamicKeys)
	if err != nil {
		return nil, err
	}
	key := headers.Get("Authorization")
	if key == "" {
		return nil, nil
	}
	// Anthropic authenticates via x-api-key, not a Bearer Authorization
	// header; GetAuthHeaders' contract returns "Bearer <key>", so the
	// prefix is stripped before use here.
	const prefix = "Bearer "
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		key = key[len(prefix):]
	}
	return []option.RequestOption{option.WithAPIKey(key)}, nil
}

// sdkMessagesClient adapts a real *anthropic.Client to MessagesClient.
type sdkMessagesClient struct {
	client *anthropic.Client
}

func (s sdkMessagesClient) New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error) {
	return s.client.Messages.New(ctx, params, opts...)
}

func (s sdkMessagesClient) NewStreaming(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[anthropic.MessageStreamEventUnion] {
	return s.client.Messages.NewStreaming(ctx, params, opts...)
}
