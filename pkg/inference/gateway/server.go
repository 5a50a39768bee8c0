// Package gateway composes the gateway's per-request seam: adapter
// resolution by model_provider, middleware chains for unary and streaming
// completion, and the trailing sink (C8) write. Generalized from
// features/model/gateway/server.go's UnaryHandler/StreamHandler/
// UnaryMiddleware/StreamMiddleware onion over model.Client to this gateway's
// provider.Adapter/types.InferenceRequest algebra.
package gateway

import (
	"context"
	"net/http"

	"github.com/relaygate/inference-gateway/pkg/inference/creds"
	"github.com/relaygate/inference-gateway/pkg/inference/provider"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

type (
	// UnaryHandler processes one unary inference request and returns the
	// complete response. Both the base provider handler and any
	// UnaryMiddleware share this signature.
	UnaryHandler func(ctx context.Context, req *types.InferenceRequest) (*types.ProviderInferenceResponse, error)

	// StreamHandler processes one streaming inference request, invoking
	// send for each chunk produced. Returning an error from send aborts
	// the stream.
	StreamHandler func(ctx context.Context, req *types.InferenceRequest, send func(types.Chunk) error) error

	// UnaryMiddleware wraps a UnaryHandler to add behavior before, after,
	// or around the handler invocation — logging, metrics, rate limiting,
	// tracing.
	UnaryMiddleware func(next UnaryHandler) UnaryHandler

	// StreamMiddleware wraps a StreamHandler the same way UnaryMiddleware
	// wraps a UnaryHandler, preserving the sequential semantics of send.
	StreamMiddleware func(next StreamHandler) StreamHandler

	// Option configures a Server during construction.
	Option func(*serverConfig)

	serverConfig struct {
		adapters map[string]provider.Adapter
		httpDoer provider.HTTPDoer
		creds    *creds.Credentials
		dynamic  map[string]string
		sink     Sink
		unaryMW  []UnaryMiddleware
		streamMW []StreamMiddleware
	}

	// Server resolves a request's model_provider to an adapter, runs it
	// through the configured middleware chains, and hands the result to
	// the sink for a trailing persist. One Server instance is shared
	// across all requests; it holds no per-request mutable state.
	Server struct {
		adapters map[string]provider.Adapter
		unary    UnaryHandler
		stream   StreamHandler
	}
)

// WithAdapter registers a provider.Adapter under name (e.g. "bedrock",
// "openai"), the same string a caller sets as InferenceRequest's
// model-provider routing key.
func WithAdapter(name string, a provider.Adapter) Option {
	return func(c *serverConfig) {
		if c.adapters == nil {
			c.adapters = map[string]provider.Adapter{}
		}
		c.adapters[name] = a
	}
}

// WithHTTPDoer sets the HTTP transport handed to HTTP-based adapters
// (Vertex). Defaults to http.DefaultClient when unset.
func WithHTTPDoer(d provider.HTTPDoer) Option {
	return func(c *serverConfig) { c.httpDoer = d }
}

// WithCredentials sets the credential resolver (C2) passed to every
// adapter call.
func WithCredentials(cr *creds.Credentials) Option {
	return func(c *serverConfig) { c.creds = cr }
}

// WithDynamicKeys sets the per-call dynamic API key map forwarded to the
// credential resolver's Dynamic branch.
func WithDynamicKeys(keys map[string]string) Option {
	return func(c *serverConfig) { c.dynamic = keys }
}

// WithSink sets the cache & observability sink (C8). A nil Sink (the
// default) makes every call a cache miss and records nothing.
func WithSink(s Sink) Option {
	return func(c *serverConfig) { c.sink = s }
}

// WithUnary appends one or more UnaryMiddleware to the unary completion
// chain. Middleware are applied in registration order, with the first
// middleware forming the outermost layer.
func WithUnary(mw ...UnaryMiddleware) Option {
	return func(c *serverConfig) { c.unaryMW = append(c.unaryMW, mw...) }
}

// WithStream appends one or more StreamMiddleware to the streaming
// completion chain, same ordering rule as WithUnary.
func WithStream(mw ...StreamMiddleware) Option {
	return func(c *serverConfig) { c.streamMW = append(c.streamMW, mw...) }
}

// NewServer constructs a Server from the given options. At least one
// adapter must be registered via WithAdapter or NewServer returns
// ErrNoAdapters.
func NewServer(opts ...Option) (*Server, error) {
	var cfg serverConfig
	for _, o := range opts {
		o(&cfg)
	}
	if len(cfg.adapters) == 0 {
		return nil, ErrNoAdapters
	}
	if cfg.httpDoer == nil {
		cfg.httpDoer = http.DefaultClient
	}

	base := &baseHandler{
		adapters: cfg.adapters,
		httpDoer: cfg.httpDoer,
		creds:    cfg.creds,
		dynamic:  cfg.dynamic,
		sink:     cfg.sink,
	}

	unary := UnaryHandler(base.complete)
	for i := len(cfg.unaryMW) - 1; i >= 0; i-- {
		unary = cfg.unaryMW[i](unary)
	}
	stream := StreamHandler(base.stream)
	for i := len(cfg.streamMW) - 1; i >= 0; i-- {
		stream = cfg.streamMW[i](stream)
	}

	return &Server{adapters: cfg.adapters, unary: unary, stream: stream}, nil
}

// Complete runs req through the unary middleware chain down to the
// resolved adapter, returning its complete response.
func (s *Server) Complete(ctx context.Context, req *types.InferenceRequest) (*types.ProviderInferenceResponse, error) {
	return s.unary(ctx, req)
}

// Stream runs req through the streaming middleware chain, invoking send
// for each chunk the resolved adapter produces.
func (s *Server) Stream(ctx context.Context, req *types.InferenceRequest, send func(types.Chunk) error) error {
	return s.stream(ctx, req, send)
}
