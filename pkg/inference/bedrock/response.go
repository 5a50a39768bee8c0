package bedrock

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/relaygate/inference-gateway/pkg/inference/policy"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// finishReasonTable maps Bedrock's StopReason to the canonical
// FinishReason, grounded line-for-line on
// original_source/tensorzero-core/src/providers/aws_bedrock.rs's
// aws_stop_reason_to_tensorzero_finish_reason: ContentFiltered and
// GuardrailIntervened both map to ContentFilter, EndTurn to Stop,
// MaxTokens to Length, StopSequence to StopSequence, ToolUse to ToolCall,
// and anything else (Open Question #1, resolved as "keep default") to
// Unknown.
func finishReasonFromStopReason(sr brtypes.StopReason) types.FinishReason {
	switch sr {
	case brtypes.StopReasonContentFiltered:
		return types.FinishContentFilter
	case brtypes.StopReasonGuardrailIntervened:
		return types.FinishContentFilter
	case brtypes.StopReasonEndTurn:
		return types.FinishStop
	case brtypes.StopReasonMaxTokens:
		return types.FinishLength
	case brtypes.StopReasonStopSequence:
		return types.FinishStopSequence
	case brtypes.StopReasonToolUse:
		return types.FinishToolCall
	default:
		return types.FinishUnknown
	}
}

func (a *Adapter) translateResponse(ctx context.Context, out *bedrockruntime.ConverseOutput, parts *requestParts, rawRequest string, req *types.InferenceRequest) (*types.ProviderInferenceResponse, error) {
	if out == nil {
		return nil, types.NewGatewayError(ProviderName, "translate_response", types.ErrorKindInferenceServer,
			"converse output is nil", nil)
	}

	resp := &types.ProviderInferenceResponse{
		RawRequest:    rawRequest,
		System:        req.System,
		InputMessages: req.Messages,
	}

	msg, _ := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if msg != nil {
		firstTextDone := false
		for _, block := range msg.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				text := v.Value
				if parts.prefilled && !firstTextDone {
					text = policy.PrependJSONBrace(text)
				}
				firstTextDone = true
				resp.Output = append(resp.Output, types.TextBlock{Text: text})
			case *brtypes.ContentBlockMemberToolUse:
				var id, name string
				if v.Value.ToolUseId != nil {
					id = *v.Value.ToolUseId
				}
				if v.Value.Name != nil {
					name = *v.Value.Name
				}
				resp.Output = append(resp.Output, types.ToolCallBlock{
					ID:            id,
					Name:          name,
					ArgumentsJSON: decodeDocument(v.Value.Input),
				})
			case *brtypes.ContentBlockMemberReasoningContent:
				switch rc := v.Value.(type) {
				case *brtypes.ReasoningContentBlockMemberReasoningText:
					sig := ""
					if rc.Value.Signature != nil {
						sig = *rc.Value.Signature
					}
					text := ""
					if rc.Value.Text != nil {
						text = *rc.Value.Text
					}
					resp.Output = append(resp.Output, types.Thought{Text: text, Signature: sig})
				default:
					// Redacted or unrecognised reasoning subtype: emit as
					// Unknown on the unary path rather than dropping it
					// silently, per SPEC_FULL.md §4.5(b).
					resp.Output = append(resp.Output, types.UnknownBlock{ProviderName: ProviderName, ModelName: req.ModelName})
				}
			default:
				resp.Output = append(resp.Output, types.UnknownBlock{ProviderName: ProviderName, ModelName: req.ModelName})
			}
		}
	}

	resp.FinishReason = finishReasonFromStopReason(out.StopReason)

	if out.Usage != nil {
		resp.Usage = types.Usage{
			InputTokens:  int(deref(out.Usage.InputTokens)),
			OutputTokens: int(deref(out.Usage.OutputTokens)),
		}
	}
	if resp.DropsUsage() {
		// Invariant 4: a terminal unary response missing usage must
		// surface InferenceServer, since billing/metering depends on it.
		return nil, types.NewGatewayError(ProviderName, "translate_response", types.ErrorKindInferenceServer,
			"converse response is missing usage counts", nil)
	}

	rawResp, isDebug := types.SerializeOrLog(ctx, "bedrock_converse_output", out)
	resp.RawResponse = rawResp
	resp.RawResponseIsDebugForm = isDebug

	return resp, nil
}

func decodeDocument(doc document.Interface) []byte {
	if doc == nil {
		return []byte("{}")
	}
	data, err := doc.MarshalSmithyDocument()
	if err != nil || len(data) == 0 {
		return []byte("{}")
	}
	return data
}

func deref[T ~int32 | ~int64](p *T) T {
	if p == nil {
		return 0
	}
	return *p
}
