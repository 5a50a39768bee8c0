package vertex

import (
	"context"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// finishReasonFromGemini maps Gemini's ten-value finishReason enum to the
// canonical FinishReason, grounded line-for-line on the original source's
// `impl From<GCPVertexGeminiFinishReason> for FinishReason`.
func finishReasonFromGemini(r geminiFinishReason) types.FinishReason {
	switch r {
	case finishStop:
		return types.FinishStop
	case finishMaxTokens:
		return types.FinishLength
	case finishSafety, finishBlocklist, finishProhibitedContent, finishSpii:
		return types.FinishContentFilter
	case finishRecitation, finishMalformedFuncCall:
		return types.FinishToolCall
	default: // Other, FinishReasonUnspecified, and any future value
		return types.FinishUnknown
	}
}

func (a *Adapter) translateResponse(ctx context.Context, resp *geminiResponse, rawRequest string, req *types.InferenceRequest) (*types.ProviderInferenceResponse, error) {
	if len(resp.Candidates) == 0 {
		return nil, types.NewGatewayError(ProviderName, "translate_response", types.ErrorKindInferenceServer,
			"vertex response has no candidates", nil)
	}
	candidate := resp.Candidates[0]

	out := &types.ProviderInferenceResponse{
		RawRequest:    rawRequest,
		System:        req.System,
		InputMessages: req.Messages,
		FinishReason:  finishReasonFromGemini(candidate.FinishReason),
	}

	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			blocks, err := convertResponsePart(part, req.ModelName)
			if err != nil {
				return nil, err
			}
			out.Output = append(out.Output, blocks...)
		}
	}

	if resp.UsageMetadata != nil {
		out.Usage = types.Usage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		}
	}
	if out.DropsUsage() {
		return nil, types.NewGatewayError(ProviderName, "translate_response", types.ErrorKindInferenceServer,
			"vertex response is missing usage counts", nil)
	}

	rawResp, isDebug := types.SerializeOrLog(ctx, "vertex_generate_content_response", resp)
	out.RawResponse = rawResp
	out.RawResponseIsDebugForm = isDebug

	return out, nil
}

// convertResponsePart is the unary-path equivalent of convert_to_output: a
// thought part with non-text content becomes an Unknown block (Vertex
// sometimes attaches a thoughtSignature to an otherwise-empty thought
// part), a thoughtSignature on a non-thought part is split into a
// standalone signature-only Thought immediately preceding the part it
// annotates, and everything else maps one-to-one onto Text/ToolCall/
// Unknown.
func convertResponsePart(part geminiResponseContentPart, modelName string) ([]types.ContentBlock, error) {
	if part.Thought {
		if part.Text != nil {
			return []types.ContentBlock{types.Thought{Text: *part.Text, Signature: part.ThoughtSignature}}, nil
		}
		if part.FunctionCall == nil && len(part.ExecutableCode) == 0 {
			return []types.ContentBlock{types.Thought{Signature: part.ThoughtSignature}}, nil
		}
		return []types.ContentBlock{types.UnknownBlock{ProviderName: ProviderName, ModelName: modelName}}, nil
	}

	var out []types.ContentBlock
	if part.ThoughtSignature != "" {
		out = append(out, types.Thought{Signature: part.ThoughtSignature})
	}

	switch {
	case part.Text != nil:
		out = append(out, types.TextBlock{Text: *part.Text})
	case part.FunctionCall != nil:
		out = append(out, types.ToolCallBlock{
			ID:            newToolCallID(),
			Name:          part.FunctionCall.Name,
			ArgumentsJSON: rawOrEmptyObject(part.FunctionCall.Args),
		})
	case len(part.ExecutableCode) > 0:
		out = append(out, types.UnknownBlock{ProviderName: ProviderName, ModelName: modelName, Raw: part.ExecutableCode})
	default:
		out = append(out, types.UnknownBlock{ProviderName: ProviderName, ModelName: modelName})
	}
	return out, nil
}
