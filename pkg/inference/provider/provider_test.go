package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

func TestUnsupportedBatchReturnsUnsupportedKindWithoutVendorCall(t *testing.T) {
	u := UnsupportedBatch{ProviderName: "openai"}

	_, err := u.StartBatchInference(context.Background(), nil, BatchDeps{})
	require.Error(t, err)
	ge, ok := types.AsGatewayError(err)
	require.True(t, ok)
	require.Equal(t, types.ErrorKindUnsupportedBatch, ge.Kind())
	require.Equal(t, "openai", ge.Provider())

	_, err = u.PollBatchInference(context.Background(), nil, BatchDeps{})
	require.Error(t, err)
	ge, ok = types.AsGatewayError(err)
	require.True(t, ok)
	require.Equal(t, types.ErrorKindUnsupportedBatch, ge.Kind())

	_, err = u.CollectBatch(context.Background(), nil, BatchPollResult{}, BatchDeps{})
	require.Error(t, err)
	ge, ok = types.AsGatewayError(err)
	require.True(t, ok)
	require.Equal(t, types.ErrorKindUnsupportedBatch, ge.Kind())
}
