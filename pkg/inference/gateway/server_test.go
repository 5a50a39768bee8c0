package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaygate/inference-gateway/pkg/inference/provider"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

func TestNewServerRequiresAnAdapter(t *testing.T) {
	_, err := NewServer()
	require.ErrorIs(t, err, ErrNoAdapters)
}

func TestCompleteRejectsUnknownProvider(t *testing.T) {
	a := &fakeAdapter{name: "fake", inferFn: func(*types.InferenceRequest) (*types.ProviderInferenceResponse, error) {
		t.Fatal("adapter must not be invoked for an unresolved provider")
		return nil, nil
	}}
	srv, err := NewServer(WithAdapter("fake", a))
	require.NoError(t, err)

	_, err = srv.Complete(context.Background(), &types.InferenceRequest{ModelProvider: "other"})
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestUnaryMiddlewareAppliesInRegistrationOrder(t *testing.T) {
	var order []string
	mw := func(name string) UnaryMiddleware {
		return func(next UnaryHandler) UnaryHandler {
			return func(ctx context.Context, req *types.InferenceRequest) (*types.ProviderInferenceResponse, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	a := &fakeAdapter{name: "fake", inferFn: func(*types.InferenceRequest) (*types.ProviderInferenceResponse, error) {
		order = append(order, "adapter")
		return &types.ProviderInferenceResponse{FinishReason: types.FinishStop}, nil
	}}

	srv, err := NewServer(WithAdapter("fake", a), WithUnary(mw("outer"), mw("inner")))
	require.NoError(t, err)

	_, err = srv.Complete(context.Background(), &types.InferenceRequest{ModelProvider: "fake"})
	require.NoError(t, err)
	require.Equal(t, []string{"outer", "inner", "adapter"}, order)
}

func TestStreamPropagatesChunksUntilEOF(t *testing.T) {
	chunks := []types.Chunk{
		{Type: types.ChunkTypeText, Text: "hel"},
		{Type: types.ChunkTypeText, Text: "lo"},
		{Type: types.ChunkTypeStop, FinishReason: types.FinishStop},
	}
	a := &fakeAdapter{
		name: "fake",
		streamFn: func(*types.InferenceRequest) (provider.ChunkStream, error) {
			return &fakeChunkStream{chunks: chunks}, nil
		},
	}
	srv, err := NewServer(WithAdapter("fake", a))
	require.NoError(t, err)

	var received []types.Chunk
	err = srv.Stream(context.Background(), &types.InferenceRequest{ModelProvider: "fake"}, func(c types.Chunk) error {
		received = append(received, c)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, received, 3)
	require.Equal(t, types.ChunkTypeStop, received[2].Type)
}

func TestRateLimiterBacksOffOn429(t *testing.T) {
	l := newAdaptiveRateLimiter(6000, 6000)
	before := l.currentTPM
	l.observe(types.NewGatewayError("fake", "infer", types.ErrorKindInferenceServer, "rate limited", nil).WithHTTPCode(429))
	require.Less(t, l.currentTPM, before)
}

func TestRateLimiterProbesOnSuccess(t *testing.T) {
	l := newAdaptiveRateLimiter(6000, 6000)
	l.currentTPM = l.minTPM
	l.observe(nil)
	require.Greater(t, l.currentTPM, l.minTPM)
}
