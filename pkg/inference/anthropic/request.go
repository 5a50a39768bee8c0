package anthropic

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"

	"goa.design/clue/log"

	"github.com/relaygate/inference-gateway/pkg/inference/policy"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// prepareRequest translates a canonical InferenceRequest into
// anthropic.MessageNewParams, grounded on createStream's param assembly
// (model/messages/max_tokens/system/tools/thinking). prefilled reports
// whether the Bedrock-family "{"-prefill dance was applied, which the
// direct Anthropic API needs for the same reason Bedrock's Anthropic
// family does: no native json_object response format.
func (a *Adapter) prepareRequest(ctx context.Context, req *types.InferenceRequest) (anthropic.MessageNewParams, bool, error) {
	messages, err := encodeMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, false, err
	}

	maxTokens := int64(defaultMaxTokens)
	if req.Sampling.MaxTokens != nil && *req.Sampling.MaxTokens > 0 {
		maxTokens = int64(*req.Sampling.MaxTokens)
	}

	prefilled := false
	if policy.NeedsJSONPrefill(true, req.JSONMode, req.FunctionType) {
		messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(policy.JSONPrefillAssistantMessage)))
		prefilled = true
	}
	if len(messages) == 0 {
		return anthropic.MessageNewParams{}, false, types.NewGatewayError(ProviderName, "prepare_request", types.ErrorKindInvalidRequest,
			"at least one message survives translation", nil)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.ModelName),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	applySampling(&params, req.Sampling)

	tools, err := encodeTools(req.ToolConfig)
	if err != nil {
		return anthropic.MessageNewParams{}, false, err
	}
	if len(tools) > 0 {
		params.Tools = tools
		applyToolChoice(&params, req.ToolConfig)
	}

	if req.InferenceParamsV2.ThinkingBudgetTokens > 0 {
		budget := int64(req.InferenceParamsV2.ThinkingBudgetTokens)
		if budget < 1024 {
			budget = 1024
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}
	warnUnsupportedParamsV2(ctx, req.InferenceParamsV2)

	return params, prefilled, nil
}

func applySampling(params *anthropic.MessageNewParams, s types.SamplingParams) {
	if s.Temperature != nil {
		params.Temperature = anthropic.Float(*s.Temperature)
	}
	if s.TopP != nil {
		params.TopP = anthropic.Float(*s.TopP)
	}
	if len(s.StopSequences) > 0 {
		params.StopSequences = s.StopSequences
	}
}

// encodeMessages translates canonical messages into Anthropic's
// MessageParam slice, grounded line-for-line on convertMessages: a text
// block becomes NewTextBlock, a tool result becomes NewToolResultBlock,
// and a tool call becomes NewToolUseBlock, with Thought encoded as a raw
// thinking content block (the teacher's file never round-trips reasoning
// content, since the non-beta path has no extended-thinking example
// there; this package adds it following the SDK's Of*-union convention
// used throughout the teacher's beta content blocks).
func encodeMessages(msgs []types.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, m := range msgs {
		var content []anthropic.ContentBlockParamUnion
		for _, c := range m.Content {
			switch v := c.(type) {
			case types.TextBlock:
				if v.Text == "" {
					continue
				}
				content = append(content, anthropic.NewTextBlock(v.Text))
			case types.ToolResultBlock:
				content = append(content, anthropic.NewToolResultBlock(v.ID, v.Result, false))
			case types.ToolCallBlock:
				var input map[string]any
				if len(v.ArgumentsJSON) > 0 {
					if err := json.Unmarshal(v.ArgumentsJSON, &input); err != nil {
						return nil, types.NewGatewayError(ProviderName, "encode_messages", types.ErrorKindTypeConversion,
							"tool call arguments are not a JSON object", err)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(v.ID, input, v.Name))
			case types.Thought:
				content = append(content, anthropic.ContentBlockParamUnion{
					OfThinking: &anthropic.ThinkingBlockParam{Thinking: v.Text, Signature: v.Signature},
				})
			case types.UnknownBlock:
				if v.ProviderName != ProviderName {
					return nil, types.NewGatewayError(ProviderName, "encode_messages", types.ErrorKindUnsupportedContentBlock,
						"unknown content block was produced by provider "+v.ProviderName+", not anthropic", nil)
				}
				continue
			}
		}
		if len(content) == 0 {
			continue
		}
		if m.Role == types.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

// encodeTools translates ToolConfig.ToolsAvailable into Anthropic's
// ToolUnionParam slice, grounded on convertTools: the JSON schema is
// decoded straight into anthropic.ToolInputSchemaParam and
// ToolUnionParamOfTool builds the union, with Description set on the
// resulting OfTool branch. ToolChoiceNone omits tools entirely, matching
// every other adapter's rule for forbidding tool use.
func encodeTools(cfg *types.ToolConfig) ([]anthropic.ToolUnionParam, error) {
	if cfg == nil || len(cfg.ToolsAvailable) == 0 || cfg.ToolChoice == types.ToolChoiceNone {
		return nil, nil
	}
	result := make([]anthropic.ToolUnionParam, 0, len(cfg.ToolsAvailable))
	for _, def := range cfg.ToolsAvailable {
		var schema anthropic.ToolInputSchemaParam
		if len(def.InputSchema) > 0 {
			if err := json.Unmarshal(def.InputSchema, &schema); err != nil {
				return nil, types.NewGatewayError(ProviderName, "encode_tools", types.ErrorKindTypeConversion,
					"tool input_schema for "+def.Name+" is not valid JSON", err)
			}
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, def.Name)
		if toolParam.OfTool == nil {
			return nil, types.NewGatewayError(ProviderName, "encode_tools", types.ErrorKindInternal,
				"tool union missing its tool definition for "+def.Name, nil)
		}
		toolParam.OfTool.Description = anthropic.String(def.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

// applyToolChoice maps the canonical ToolChoiceMode onto Anthropic's
// ToolChoiceUnionParam: Auto is the SDK default (left unset), Required
// maps to ToolChoiceAnyParam, Specific maps to ToolChoiceToolParam naming
// the forced tool.
func applyToolChoice(params *anthropic.MessageNewParams, cfg *types.ToolConfig) {
	switch cfg.ToolChoice {
	case types.ToolChoiceRequired:
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case types.ToolChoiceSpecific:
		if cfg.SpecificTool != "" {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: cfg.SpecificTool}}
		}
	}
}

// warnUnsupportedParamsV2 emits a structured warning for
// inference_params_v2 fields the Messages API does not accept, mirroring
// bedrock/openai's identically-named helper.
func warnUnsupportedParamsV2(ctx context.Context, p types.InferenceParamsV2) {
	if p.ServiceTier != "" {
		log.Warn(ctx, log.KV{K: "msg", V: "anthropic messages api does not support service_tier"}, log.KV{K: "parameter", V: "service_tier"})
	}
	if p.Verbosity != "" {
		log.Warn(ctx, log.KV{K: "msg", V: "anthropic messages api does not support verbosity"}, log.KV{K: "parameter", V: "verbosity"})
	}
}
