package openai

import (
	"context"
	"encoding/json"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"goa.design/clue/log"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// prepareRequest translates a canonical InferenceRequest into the SDK's
// ChatCompletionNewParams, generalizing the teacher's buildChatCompletionParams
// to the full message/tool/sampling algebra.
func (a *Adapter) prepareRequest(ctx context.Context, req *types.InferenceRequest) (openai.ChatCompletionNewParams, error) {
	messages, err := encodeMessages(req.System, req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	if len(messages) == 0 {
		return openai.ChatCompletionNewParams{}, types.NewGatewayError(ProviderName, "prepare_request", types.ErrorKindInvalidRequest,
			"at least one message survives translation", nil)
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.ModelName),
		Messages: messages,
	}
	applySampling(&params, req.Sampling)

	tools, toolChoice, err := encodeToolConfig(req.ToolConfig)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	if len(tools) > 0 {
		params.Tools = tools
		params.ToolChoice = toolChoice
	}

	if err := applyJSONMode(&params, req.JSONMode, req.FunctionType, req.OutputSchema); err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	warnUnsupportedParamsV2(ctx, req.InferenceParamsV2)

	if len(req.ExtraBody) > 0 {
		var extra map[string]any
		if err := json.Unmarshal(req.ExtraBody, &extra); err == nil {
			for k, v := range extra {
				params.SetExtraFields(map[string]any{k: v})
			}
		}
	}

	return params, nil
}

func applySampling(params *openai.ChatCompletionNewParams, s types.SamplingParams) {
	if s.Temperature != nil {
		params.Temperature = openai.Float(*s.Temperature)
	}
	if s.TopP != nil {
		params.TopP = openai.Float(*s.TopP)
	}
	if s.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*s.MaxTokens))
	}
	if s.Seed != nil {
		params.Seed = openai.Int(*s.Seed)
	}
	if s.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*s.PresencePenalty)
	}
	if s.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*s.FrequencyPenalty)
	}
	if len(s.StopSequences) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfStringArray: s.StopSequences,
		}
	}
}

// encodeMessages translates canonical messages to OpenAI's message-union
// shape, splitting the canonical System string into a leading system
// message the way the teacher's convertMessages does, and expanding each
// ToolCallBlock/ToolResultBlock into the assistant tool_calls slice and a
// standalone tool-role message respectively.
func encodeMessages(system string, msgs []types.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}

	for _, m := range msgs {
		switch m.Role {
		case types.RoleUser:
			var text string
			for _, c := range m.Content {
				switch v := c.(type) {
				case types.TextBlock:
					text += v.Text
				case types.ToolResultBlock:
					out = append(out, openai.ToolMessage(v.ID, v.Result))
				case types.UnknownBlock:
					if v.ProviderName != ProviderName {
						return nil, types.NewGatewayError(ProviderName, "encode_messages", types.ErrorKindUnsupportedContentBlock,
							"unknown content block was produced by provider "+v.ProviderName+", not openai", nil)
					}
				}
			}
			if text != "" {
				out = append(out, openai.UserMessage(text))
			}

		case types.RoleAssistant:
			msg, err := encodeAssistantMessage(m)
			if err != nil {
				return nil, err
			}
			if msg != nil {
				out = append(out, *msg)
			}
		}
	}
	return out, nil
}

// encodeAssistantMessage folds one assistant Message's text and tool calls
// into a single ChatCompletionAssistantMessageParam, since OpenAI (unlike
// Bedrock/Vertex) represents both in one message rather than separate
// content blocks.
func encodeAssistantMessage(m types.Message) (*openai.ChatCompletionMessageParamUnion, error) {
	var text string
	var toolCalls []openai.ChatCompletionMessageToolCallUnionParam

	for _, c := range m.Content {
		switch v := c.(type) {
		case types.TextBlock:
			text += v.Text
		case types.Thought:
			// OpenAI's Chat Completions API has no first-class reasoning
			// content block; thoughts are silently dropped on this path
			// (reasoning models surface their own internal trace instead).
			continue
		case types.ToolCallBlock:
			toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: v.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      v.Name,
						Arguments: string(v.ArgumentsJSON),
					},
				},
			})
		case types.UnknownBlock:
			if v.ProviderName != ProviderName {
				return nil, types.NewGatewayError(ProviderName, "encode_messages", types.ErrorKindUnsupportedContentBlock,
					"unknown content block was produced by provider "+v.ProviderName+", not openai", nil)
			}
		}
	}

	if text == "" && len(toolCalls) == 0 {
		return nil, nil
	}

	asst := openai.ChatCompletionAssistantMessageParam{}
	if text != "" {
		asst.Content.OfString = openai.String(text)
	}
	if len(toolCalls) > 0 {
		asst.ToolCalls = toolCalls
	}
	msg := openai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
	return &msg, nil
}

// encodeToolConfig maps the canonical ToolConfig to OpenAI's tools/
// tool_choice pair. ToolChoiceNone omits tools entirely (matching Bedrock's
// rule: the only portable way to forbid tool use), Auto/Required/Specific
// map onto OpenAI's own three-value union.
func encodeToolConfig(cfg *types.ToolConfig) ([]openai.ChatCompletionToolUnionParam, openai.ChatCompletionToolChoiceOptionUnionParam, error) {
	if cfg == nil || len(cfg.ToolsAvailable) == 0 || cfg.ToolChoice == types.ToolChoiceNone {
		return nil, openai.ChatCompletionToolChoiceOptionUnionParam{}, nil
	}

	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(cfg.ToolsAvailable))
	for _, def := range cfg.ToolsAvailable {
		var params shared.FunctionParameters
		if len(def.InputSchema) > 0 {
			_ = json.Unmarshal(def.InputSchema, &params)
		}
		tools = append(tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        def.Name,
			Description: openai.String(def.Description),
			Parameters:  params,
			Strict:      openai.Bool(cfg.Strict),
		}))
	}

	var choice openai.ChatCompletionToolChoiceOptionUnionParam
	switch cfg.ToolChoice {
	case types.ToolChoiceRequired:
		choice.OfAuto = openai.String("required")
	case types.ToolChoiceSpecific:
		if cfg.SpecificTool == "" {
			return nil, choice, types.NewGatewayError(ProviderName, "encode_tool_config", types.ErrorKindInvalidRequest,
				"tool_choice specific requires a tool name", nil)
		}
		choice.OfFunctionToolChoice = &openai.ChatCompletionNamedToolChoiceParam{
			Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: cfg.SpecificTool},
		}
	default:
		choice.OfAuto = openai.String("auto")
	}
	return tools, choice, nil
}

// applyJSONMode sets OpenAI's response_format for JSON-mode requests,
// using json_schema (strict, validated) when the mode is Strict and an
// OutputSchema is supplied, and json_object otherwise, per SPEC_FULL.md §4.5's
// per-provider JSON-mode table — OpenAI needs no prefill dance since it has
// native structured-output support, unlike the Bedrock Anthropic family.
func applyJSONMode(params *openai.ChatCompletionNewParams, mode types.JSONMode, functionType types.FunctionType, schema []byte) error {
	if mode == types.JSONModeOff || functionType != types.FunctionTypeJSON {
		return nil
	}
	if mode == types.JSONModeStrict && len(schema) > 0 {
		var schemaVal map[string]any
		if err := json.Unmarshal(schema, &schemaVal); err != nil {
			return types.NewGatewayError(ProviderName, "apply_json_mode", types.ErrorKindTypeConversion,
				"output_schema is not valid JSON", err)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "response",
					Schema: schemaVal,
					Strict: openai.Bool(true),
				},
			},
		}
		return nil
	}
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
	}
	return nil
}

// warnUnsupportedParamsV2 emits a structured warning for inference_params_v2
// fields the Chat Completions API does not accept directly, mirroring
// bedrock's warnUnsupportedParamsV2.
func warnUnsupportedParamsV2(ctx context.Context, p types.InferenceParamsV2) {
	if p.ReasoningEffort != "" {
		log.Warn(ctx, log.KV{K: "msg", V: "openai adapter does not forward reasoning_effort"},
			log.KV{K: "parameter", V: "reasoning_effort"})
	}
	if p.ThinkingBudgetTokens > 0 {
		log.Warn(ctx, log.KV{K: "msg", V: "openai does not support thinking_budget_tokens"}, log.KV{K: "parameter", V: "thinking_budget_tokens"})
	}
}
