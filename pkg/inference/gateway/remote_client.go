package gateway

import (
	"context"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// RemoteClient exposes the Server's Complete/Stream surface over
// caller-supplied RPC functions operating on the canonical InferenceRequest/
// ProviderInferenceResponse types, so an out-of-scope HTTP or gRPC front
// end can wire this package in without this package depending on
// transport details. Grounded on
// features/model/gateway/remote_client.go's RemoteClient, generalized from
// model.Request/model.Response/model.Streamer to this gateway's types.
type RemoteClient struct {
	doComplete func(ctx context.Context, req *types.InferenceRequest) (*types.ProviderInferenceResponse, error)
	doStream   func(ctx context.Context, req *types.InferenceRequest, send func(types.Chunk) error) error
}

// NewRemoteClient constructs a RemoteClient from normalized RPC functions.
func NewRemoteClient(
	complete func(ctx context.Context, req *types.InferenceRequest) (*types.ProviderInferenceResponse, error),
	stream func(ctx context.Context, req *types.InferenceRequest, send func(types.Chunk) error) error,
) *RemoteClient {
	return &RemoteClient{doComplete: complete, doStream: stream}
}

// Complete delegates to the RPC function supplied at construction.
func (c *RemoteClient) Complete(ctx context.Context, req *types.InferenceRequest) (*types.ProviderInferenceResponse, error) {
	return c.doComplete(ctx, req)
}

// Stream delegates to the RPC function supplied at construction.
func (c *RemoteClient) Stream(ctx context.Context, req *types.InferenceRequest, send func(types.Chunk) error) error {
	return c.doStream(ctx, req, send)
}
