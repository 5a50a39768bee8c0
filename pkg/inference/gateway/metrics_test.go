package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaygate/inference-gateway/pkg/inference/provider"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

func TestMetricsUnaryMiddlewarePassesThroughResponse(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	a := &fakeAdapter{name: "fake", inferFn: func(*types.InferenceRequest) (*types.ProviderInferenceResponse, error) {
		return &types.ProviderInferenceResponse{FinishReason: types.FinishStop, Usage: types.Usage{InputTokens: 5, OutputTokens: 2}}, nil
	}}
	srv, err := NewServer(WithAdapter("fake", a), WithUnary(m.UnaryMiddleware()))
	require.NoError(t, err)

	resp, err := srv.Complete(context.Background(), &types.InferenceRequest{ModelProvider: "fake"})
	require.NoError(t, err)
	require.Equal(t, types.FinishStop, resp.FinishReason)
}

func TestMetricsStreamMiddlewarePassesThroughChunks(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	chunks := []types.Chunk{{Type: types.ChunkTypeText, Text: "hi"}, {Type: types.ChunkTypeStop, FinishReason: types.FinishStop}}
	a := &fakeAdapter{name: "fake", streamFn: func(*types.InferenceRequest) (provider.ChunkStream, error) {
		return &fakeChunkStream{chunks: chunks}, nil
	}}
	srv, err := NewServer(WithAdapter("fake", a), WithStream(m.StreamMiddleware()))
	require.NoError(t, err)

	var received []types.Chunk
	err = srv.Stream(context.Background(), &types.InferenceRequest{ModelProvider: "fake"}, func(c types.Chunk) error {
		received = append(received, c)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, received, 2)
}
