package bedrock

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"goa.design/clue/log"

	"github.com/relaygate/inference-gateway/pkg/inference/policy"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// requestParts holds the translated Bedrock wire shape plus the tool-id
// correlation map Infer/InferStream need to translate the response back.
type requestParts struct {
	messages     []brtypes.Message
	system       []brtypes.SystemContentBlock
	toolConfig   *brtypes.ToolConfiguration
	toolIDToName map[string]string
	prefilled    bool
}

// isAnthropicFamily reports whether modelID names an Anthropic-family
// Bedrock model, the family for which JSON mode requires message
// prefilling per SPEC_FULL.md §4.5(a).
func isAnthropicFamily(modelID string) bool {
	return strings.Contains(modelID, "anthropic.")
}

func (a *Adapter) prepareRequest(ctx context.Context, req *types.InferenceRequest) (*requestParts, error) {
	messages, system, err := encodeMessages(req.Messages, req.Cache)
	if err != nil {
		return nil, err
	}
	if req.System != "" {
		system = append(system, &brtypes.SystemContentBlockMemberText{Value: req.System})
	}
	if len(messages) == 0 {
		return nil, types.NewGatewayError(ProviderName, "prepare_request", types.ErrorKindInvalidRequest,
			"at least one message survives translation", nil)
	}

	toolConfig, toolIDToName, err := encodeToolConfig(req.ToolConfig, req.ModelName)
	if err != nil {
		return nil, err
	}

	prefilled := false
	if policy.NeedsJSONPrefill(isAnthropicFamily(req.ModelName), req.JSONMode, req.FunctionType) {
		messages = append(messages, brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: policy.JSONPrefillAssistantMessage}},
		})
		prefilled = true
	}

	warnUnsupportedParamsV2(ctx, req.InferenceParamsV2)

	return &requestParts{
		messages:     messages,
		system:       system,
		toolConfig:   toolConfig,
		toolIDToName: toolIDToName,
		prefilled:    prefilled,
	}, nil
}

func (a *Adapter) buildConverseInput(parts *requestParts, req *types.InferenceRequest) *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.ModelName),
		Messages: parts.messages,
	}
	if len(parts.system) > 0 {
		input.System = parts.system
	}
	if parts.toolConfig != nil {
		input.ToolConfig = parts.toolConfig
	}
	if cfg := inferenceConfig(req.Sampling); cfg != nil {
		input.InferenceConfig = cfg
	}
	applyExtraBody(input, req.ExtraBody)
	return input
}

func (a *Adapter) buildConverseStreamInput(parts *requestParts, req *types.InferenceRequest) *bedrockruntime.ConverseStreamInput {
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(req.ModelName),
		Messages: parts.messages,
	}
	if len(parts.system) > 0 {
		input.System = parts.system
	}
	if parts.toolConfig != nil {
		input.ToolConfig = parts.toolConfig
	}
	if cfg := inferenceConfig(req.Sampling); cfg != nil {
		input.InferenceConfig = cfg
	}
	if req.InferenceParamsV2.ThinkingBudgetTokens > 0 {
		fields := map[string]any{
			"thinking": map[string]any{
				"type":          "enabled",
				"budget_tokens": req.InferenceParamsV2.ThinkingBudgetTokens,
			},
		}
		input.AdditionalModelRequestFields = document.NewLazyDocument(&fields)
	}
	return input
}

func inferenceConfig(s types.SamplingParams) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	set := false
	if s.MaxTokens != nil {
		cfg.MaxTokens = aws.Int32(int32(*s.MaxTokens)) //nolint:gosec
		set = true
	}
	if s.Temperature != nil {
		cfg.Temperature = aws.Float32(float32(*s.Temperature))
		set = true
	}
	if s.TopP != nil {
		cfg.TopP = aws.Float32(float32(*s.TopP))
		set = true
	}
	if len(s.StopSequences) > 0 {
		cfg.StopSequences = s.StopSequences
		set = true
	}
	if !set {
		return nil
	}
	return &cfg
}

// applyExtraBody merges caller-supplied extra JSON fields into the
// outgoing AdditionalModelRequestFields, matching SPEC_FULL.md §8's "extra
// body injected immediately before send" rule. Bedrock's
// AdditionalModelRequestFields is itself the natural home for arbitrary
// extra vendor fields.
func applyExtraBody(input *bedrockruntime.ConverseInput, extraBody []byte) {
	if len(extraBody) == 0 {
		return
	}
	var fields map[string]any
	if err := decodeExtra(extraBody, &fields); err != nil {
		return
	}
	input.AdditionalModelRequestFields = document.NewLazyDocument(&fields)
}

// encodeMessages translates canonical messages to Bedrock's wire shape,
// dropping any message whose content becomes empty after translation,
// matching SPEC_FULL.md §4.5(a)'s common rules. Canonical messages carry
// only user and assistant roles, so the returned system blocks are always
// empty; prepareRequest adds req.System to the System field when it is
// non-empty.
func encodeMessages(msgs []types.Message, cache types.CacheOptions) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	var system []brtypes.SystemContentBlock
	conversation := make([]brtypes.Message, 0, len(msgs))

	for _, m := range msgs {
		blocks := make([]brtypes.ContentBlock, 0, len(m.Content))
		for _, c := range m.Content {
			switch v := c.(type) {
			case types.TextBlock:
				if v.Text == "" {
					continue
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: v.Text})
			case types.Thought:
				blocks = append(blocks, encodeThought(v))
			case types.ToolCallBlock:
				tb := brtypes.ToolUseBlock{
					ToolUseId: aws.String(v.ID),
					Name:      aws.String(v.Name),
					Input:     toDocument(v.ArgumentsJSON),
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: tb})
			case types.ToolResultBlock:
				blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{
					Value: brtypes.ToolResultBlock{
						ToolUseId: aws.String(v.ID),
						Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: v.Result}},
					},
				})
			case types.UnknownBlock:
				if v.ProviderName != ProviderName {
					return nil, nil, types.NewGatewayError(ProviderName, "encode_messages", types.ErrorKindUnsupportedContentBlock,
						"unknown content block was produced by provider "+v.ProviderName+", not bedrock", nil)
				}
				// Pass through verbatim: round-trip invariant in SPEC_FULL.md §4.1.
				continue
			}
		}
		if len(blocks) == 0 {
			continue
		}
		role := brtypes.ConversationRoleUser
		if m.Role == types.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		conversation = append(conversation, brtypes.Message{Role: role, Content: blocks})
	}
	return conversation, system, nil
}

func encodeThought(t types.Thought) brtypes.ContentBlock {
	if t.Signature != "" {
		return &brtypes.ContentBlockMemberReasoningContent{
			Value: &brtypes.ReasoningContentBlockMemberReasoningText{
				Value: brtypes.ReasoningTextBlock{
					Text:      aws.String(t.Text),
					Signature: aws.String(t.Signature),
				},
			},
		}
	}
	return &brtypes.ContentBlockMemberText{Value: t.Text}
}

// encodeToolConfig builds a Bedrock ToolConfiguration from cfg, mapping
// tool choice per SPEC_FULL.md §4.5's Bedrock table: None omits the tool
// block entirely (the canonical way to forbid tool use on a vendor
// without an explicit "none"), Auto maps to AutoTool, Required to AnyTool,
// Specific(name) to SpecificTool.
func encodeToolConfig(cfg *types.ToolConfig, modelName string) (*brtypes.ToolConfiguration, map[string]string, error) {
	if cfg == nil || len(cfg.ToolsAvailable) == 0 {
		return nil, nil, nil
	}
	if cfg.ToolChoice == types.ToolChoiceNone {
		return nil, nil, nil
	}

	tools := make([]brtypes.Tool, 0, len(cfg.ToolsAvailable))
	idToName := make(map[string]string, len(cfg.ToolsAvailable))
	for _, def := range cfg.ToolsAvailable {
		tools = append(tools, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(def.Name),
				Description: aws.String(def.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: toDocument(def.InputSchema)},
			},
		})
		idToName[def.Name] = def.Name
	}

	tc := &brtypes.ToolConfiguration{Tools: tools}
	switch cfg.ToolChoice {
	case types.ToolChoiceAuto, "":
		// AutoTool is Bedrock's default; omit ToolChoice.
	case types.ToolChoiceRequired:
		tc.ToolChoice = &brtypes.ToolChoiceMemberAny{Value: brtypes.AnyToolChoice{}}
	case types.ToolChoiceSpecific:
		if cfg.SpecificTool == "" {
			return nil, nil, types.NewGatewayError(ProviderName, "encode_tool_config", types.ErrorKindInvalidRequest,
				"tool_choice specific requires a tool name", nil)
		}
		tc.ToolChoice = &brtypes.ToolChoiceMemberTool{Value: brtypes.SpecificToolChoice{Name: aws.String(cfg.SpecificTool)}}
	}
	return tc, idToName, nil
}

func toDocument(raw []byte) document.Interface {
	if len(raw) == 0 {
		m := map[string]any{"type": "object"}
		return document.NewLazyDocument(&m)
	}
	var v any
	if err := decodeExtra(raw, &v); err != nil {
		m := map[string]any{"type": "object"}
		return document.NewLazyDocument(&m)
	}
	return document.NewLazyDocument(&v)
}

// warnUnsupportedParamsV2 emits a structured warning for inference_params_v2
// fields Bedrock's Converse API does not accept directly, pointing callers
// at the vendor-specific equivalent (Bedrock's "thinking" control instead
// of reasoning_effort), per SPEC_FULL.md §8.
func warnUnsupportedParamsV2(ctx context.Context, p types.InferenceParamsV2) {
	if p.ReasoningEffort != "" {
		log.Warn(ctx, log.KV{K: "msg", V: "bedrock does not support reasoning_effort directly; use thinking_budget_tokens instead"},
			log.KV{K: "parameter", V: "reasoning_effort"}, log.KV{K: "tip", V: "thinking"})
	}
	if p.ServiceTier != "" {
		log.Warn(ctx, log.KV{K: "msg", V: "bedrock does not support service_tier"}, log.KV{K: "parameter", V: "service_tier"})
	}
	if p.Verbosity != "" {
		log.Warn(ctx, log.KV{K: "msg", V: "bedrock does not support verbosity"}, log.KV{K: "parameter", V: "verbosity"})
	}
}
