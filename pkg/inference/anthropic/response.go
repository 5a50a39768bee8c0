package anthropic

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/relaygate/inference-gateway/pkg/inference/policy"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// finishReasonFromStopReason maps Anthropic's StopReason to the canonical
// FinishReason, following the same per-adapter table as
// bedrock/response.go's finishReasonFromStopReason and
// openai/response.go's finishReasonFromOpenAI.
func finishReasonFromStopReason(r anthropic.StopReason) types.FinishReason {
	switch r {
	case anthropic.StopReasonEndTurn:
		return types.FinishStop
	case anthropic.StopReasonMaxTokens:
		return types.FinishLength
	case anthropic.StopReasonStopSequence:
		return types.FinishStopSequence
	case anthropic.StopReasonToolUse:
		return types.FinishToolCall
	case anthropic.StopReasonPauseTurn, anthropic.StopReasonRefusal:
		return types.FinishUnknown
	default:
		return types.FinishUnknown
	}
}

// translateResponse converts a unary *anthropic.Message into the canonical
// response shape, walking the Content union the same way processStream
// walks streamed content blocks, but over the already-complete message.
// When prefilled is set, the leading "{" this adapter prepended to the
// assistant turn is restored onto the first text block's front, mirroring
// bedrock/response.go's PrependJSONBrace handling for the Anthropic family.
func (a *Adapter) translateResponse(ctx context.Context, msg *anthropic.Message, rawRequest string, req *types.InferenceRequest, prefilled bool) (*types.ProviderInferenceResponse, error) {
	if msg == nil {
		return nil, types.NewGatewayError(ProviderName, "translate_response", types.ErrorKindInferenceServer,
			"anthropic message response is empty", nil)
	}

	out := &types.ProviderInferenceResponse{
		RawRequest:    rawRequest,
		System:        req.System,
		InputMessages: req.Messages,
		FinishReason:  finishReasonFromStopReason(msg.StopReason),
	}

	firstText := true
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			text := v.Text
			if prefilled && firstText {
				text = policy.PrependJSONBrace(text)
			}
			firstText = false
			out.Output = append(out.Output, types.TextBlock{Text: text})
		case anthropic.ToolUseBlock:
			out.Output = append(out.Output, types.ToolCallBlock{
				ID:            v.ID,
				Name:          v.Name,
				ArgumentsJSON: v.Input,
			})
		case anthropic.ThinkingBlock:
			out.Output = append(out.Output, types.Thought{
				Text:        v.Thinking,
				Signature:   v.Signature,
				ProviderTag: ProviderName,
			})
		case anthropic.RedactedThinkingBlock:
			out.Output = append(out.Output, types.Thought{
				ProviderTag: ProviderName,
			})
		default:
			out.Output = append(out.Output, types.UnknownBlock{
				ProviderName: ProviderName,
				ModelName:    req.ModelName,
				Raw:          block.RawJSON(),
			})
		}
	}

	out.Usage = types.Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	if out.DropsUsage() {
		return nil, types.NewGatewayError(ProviderName, "translate_response", types.ErrorKindInferenceServer,
			"anthropic message response is missing usage counts", nil)
	}

	rawResp, isDebug := types.SerializeOrLog(ctx, "anthropic_message_response", msg)
	out.RawResponse = rawResp
	out.RawResponseIsDebugForm = isDebug

	return out, nil
}
