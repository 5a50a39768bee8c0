package openai

import (
	"context"

	"github.com/openai/openai-go"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// finishReasonTable maps OpenAI's finish_reason strings to the canonical
// FinishReason, grounded on the shared per-adapter mapping-table pattern
// (bedrock/response.go's finishReasonFromStopReason, vertex/response.go's
// finishReasonFromGemini).
func finishReasonFromOpenAI(r string) types.FinishReason {
	switch r {
	case "stop":
		return types.FinishStop
	case "length":
		return types.FinishLength
	case "tool_calls", "function_call":
		return types.FinishToolCall
	case "content_filter":
		return types.FinishContentFilter
	default:
		return types.FinishUnknown
	}
}

func (a *Adapter) translateResponse(ctx context.Context, completion *openai.ChatCompletion, rawRequest string, req *types.InferenceRequest) (*types.ProviderInferenceResponse, error) {
	if completion == nil || len(completion.Choices) == 0 {
		return nil, types.NewGatewayError(ProviderName, "translate_response", types.ErrorKindInferenceServer,
			"chat completion has no choices", nil)
	}
	choice := completion.Choices[0]

	out := &types.ProviderInferenceResponse{
		RawRequest:    rawRequest,
		System:        req.System,
		InputMessages: req.Messages,
		FinishReason:  finishReasonFromOpenAI(string(choice.FinishReason)),
	}

	if choice.Message.Content != "" {
		out.Output = append(out.Output, types.TextBlock{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		out.Output = append(out.Output, types.ToolCallBlock{
			ID:            tc.ID,
			Name:          tc.Function.Name,
			ArgumentsJSON: rawOrEmptyObject(tc.Function.Arguments),
		})
	}

	out.Usage = types.Usage{
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
	}
	if out.DropsUsage() {
		return nil, types.NewGatewayError(ProviderName, "translate_response", types.ErrorKindInferenceServer,
			"chat completion response is missing usage counts", nil)
	}

	rawResp, isDebug := types.SerializeOrLog(ctx, "openai_chat_completion_response", completion)
	out.RawResponse = rawResp
	out.RawResponseIsDebugForm = isDebug

	return out, nil
}

// rawOrEmptyObject returns s as json.RawMessage, falling back to an empty
// JSON object when the vendor sent an empty arguments string, matching
// bedrock/vertex's "{}" fallback for a call with no arguments.
func rawOrEmptyObject(s string) []byte {
	if s == "" {
		return []byte("{}")
	}
	return []byte(s)
}
