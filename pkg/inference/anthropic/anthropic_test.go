package anthropic

import (
	"context"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/require"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

type fakeMessagesClient struct {
	message *anthropic.Message
	err     error
}

func (f *fakeMessagesClient) New(context.Context, anthropic.MessageNewParams, ...option.RequestOption) (*anthropic.Message, error) {
	return f.message, f.err
}

func (f *fakeMessagesClient) NewStreaming(context.Context, anthropic.MessageNewParams, ...option.RequestOption) *ssestream.Stream[anthropic.MessageStreamEventUnion] {
	return nil
}

func basicRequest() *types.InferenceRequest {
	return &types.InferenceRequest{
		ModelName: "claude-sonnet-4",
		Messages: []types.Message{
			{Role: types.RoleUser, Content: []types.ContentBlock{types.TextBlock{Text: "hi"}}},
		},
	}
}

func TestInferTranslatesTextResponse(t *testing.T) {
	message := &anthropic.Message{
		StopReason: anthropic.StopReasonEndTurn,
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "hello there"},
		},
		Usage: anthropic.Usage{InputTokens: 3, OutputTokens: 5},
	}
	a, err := New(Options{Messages: &fakeMessagesClient{message: message}})
	require.NoError(t, err)

	resp, err := a.Infer(context.Background(), basicRequest(), nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, types.FinishStop, resp.FinishReason)
	require.Equal(t, types.Usage{InputTokens: 3, OutputTokens: 5}, resp.Usage)
	require.Len(t, resp.Output, 1)
	text, ok := resp.Output[0].(types.TextBlock)
	require.True(t, ok)
	require.Equal(t, "hello there", text.Text)
}

func TestInferMissingUsageIsInferenceServerError(t *testing.T) {
	message := &anthropic.Message{
		StopReason: anthropic.StopReasonEndTurn,
		Content:    []anthropic.ContentBlockUnion{{Type: "text", Text: "x"}},
	}
	a, err := New(Options{Messages: &fakeMessagesClient{message: message}})
	require.NoError(t, err)

	_, err = a.Infer(context.Background(), basicRequest(), nil, nil, nil)
	require.Error(t, err)
	ge, ok := types.AsGatewayError(err)
	require.True(t, ok)
	require.Equal(t, types.ErrorKindInferenceServer, ge.Kind())
}

func TestFinishReasonTable(t *testing.T) {
	cases := map[anthropic.StopReason]types.FinishReason{
		anthropic.StopReasonEndTurn:      types.FinishStop,
		anthropic.StopReasonMaxTokens:    types.FinishLength,
		anthropic.StopReasonStopSequence: types.FinishStopSequence,
		anthropic.StopReasonToolUse:      types.FinishToolCall,
	}
	for in, want := range cases {
		require.Equal(t, want, finishReasonFromStopReason(in), "finish reason %q", in)
	}
}

func TestEncodeToolsNoneOmitsTools(t *testing.T) {
	cfg := &types.ToolConfig{
		ToolsAvailable: []types.ToolDefinition{{Name: "search", Description: "search the web"}},
		ToolChoice:     types.ToolChoiceNone,
	}
	tools, err := encodeTools(cfg)
	require.NoError(t, err)
	require.Nil(t, tools)
}

func TestEncodeToolsSetsDescription(t *testing.T) {
	cfg := &types.ToolConfig{
		ToolsAvailable: []types.ToolDefinition{
			{Name: "search", Description: "search the web", InputSchema: []byte(`{"type":"object"}`)},
		},
		ToolChoice: types.ToolChoiceAuto,
	}
	tools, err := encodeTools(cfg)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	require.Equal(t, "search", tools[0].OfTool.Name)
}

func TestPrepareRequestAppliesJSONPrefillForJSONMode(t *testing.T) {
	a := &Adapter{}
	req := basicRequest()
	req.JSONMode = types.JSONModeOn
	req.FunctionType = types.FunctionTypeJSON

	params, prefilled, err := a.prepareRequest(context.Background(), req)
	require.NoError(t, err)
	require.True(t, prefilled)
	require.NotEmpty(t, params.Messages)
	last := params.Messages[len(params.Messages)-1]
	require.Equal(t, anthropic.MessageParamRoleAssistant, last.Role)
}

func TestTranslateErrorMapsRateLimit(t *testing.T) {
	apiErr := &anthropic.Error{StatusCode: 429}
	ge, ok := types.AsGatewayError(translateError(apiErr))
	require.True(t, ok)
	require.True(t, ge.Retryable())
}

func TestPerCallOptionsNilCredentialsYieldsNoOptions(t *testing.T) {
	_, err := perCallOptions(context.Background(), nil, nil)
	require.NoError(t, err)
}
