package vertex

import (
	"context"

	"github.com/google/uuid"

	"goa.design/clue/log"

	"github.com/relaygate/inference-gateway/pkg/inference/policy"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// modelsNotSupportingAnyMode lists Gemini models whose function-calling API
// rejects "ANY" mode, matching MODELS_NOT_SUPPORTING_ANY_MODE. Empty
// upstream today; kept as an extension point the way the original source
// keeps it, so a future model regression doesn't require touching the
// mapping logic itself.
var modelsNotSupportingAnyMode = map[string]bool{}

type requestParts struct {
	body      geminiRequest
	prefilled bool
}

func (a *Adapter) prepareRequest(ctx context.Context, req *types.InferenceRequest) (*requestParts, error) {
	contents, err := encodeContents(req.Messages)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, types.NewGatewayError(ProviderName, "prepare_request", types.ErrorKindInvalidRequest,
			"at least one message survives translation", nil)
	}

	body := geminiRequest{
		Contents: contents,
		Labels:   map[string]string{},
	}

	if req.System != "" {
		body.SystemInstruction = &geminiContent{
			Role:  geminiRoleUser,
			Parts: []geminiContentPart{{Text: req.System}},
		}
	}

	if req.ToolConfig != nil && len(req.ToolConfig.ToolsAvailable) > 0 {
		tools, toolConfig, err := encodeToolConfig(req.ToolConfig, req.ModelName)
		if err != nil {
			return nil, err
		}
		body.Tools = tools
		body.ToolConfig = toolConfig
	}

	body.GenerationConfig = encodeGenerationConfig(req)

	warnUnsupportedParamsV2(ctx, req.InferenceParamsV2)

	return &requestParts{body: body}, nil
}

// encodeContents translates canonical messages to Gemini's role/parts
// shape. A Thought with a signature becomes a standalone thought part
// immediately preceding its successor, matching the original source's "we
// emit a Thought block with just the signature, immediately before the
// original part" note; on encode we fold it back onto the next part's
// thoughtSignature field instead, since that is the shape Gemini's own API
// expects back. A signed thought must be immediately followed by an
// attachable content block: another thought, an unknown block, or the end
// of the message all reject with InferenceServer, matching
// convert_thought_block's three match arms in the original source.
func encodeContents(msgs []types.Message) ([]geminiContent, error) {
	out := make([]geminiContent, 0, len(msgs))
	for _, m := range msgs {
		parts := make([]geminiContentPart, 0, len(m.Content))
		var pendingSignature string
		for _, c := range m.Content {
			switch v := c.(type) {
			case types.TextBlock:
				if v.Text == "" {
					continue
				}
				p := geminiContentPart{Text: v.Text}
				if pendingSignature != "" {
					p.ThoughtSignature = pendingSignature
					pendingSignature = ""
				}
				parts = append(parts, p)
			case types.Thought:
				if pendingSignature != "" {
					return nil, types.NewGatewayError(ProviderName, "encode_contents", types.ErrorKindInferenceServer,
						"thought block with signature cannot be followed by another thought block", nil)
				}
				if v.Signature != "" {
					pendingSignature = v.Signature
				}
				if v.Text != "" {
					p := geminiContentPart{Thought: true, Text: v.Text, ThoughtSignature: v.Signature}
					pendingSignature = ""
					parts = append(parts, p)
				}
			case types.ToolCallBlock:
				p := geminiContentPart{
					FunctionCall: &geminiFunctionCall{Name: v.Name, Args: rawOrEmptyObject(v.ArgumentsJSON)},
				}
				if pendingSignature != "" {
					p.ThoughtSignature = pendingSignature
					pendingSignature = ""
				}
				parts = append(parts, p)
			case types.ToolResultBlock:
				p := geminiContentPart{
					FunctionResponse: &geminiFunctionResponse{
						Name:     v.Name,
						Response: rawOrEmptyObject([]byte(v.Result)),
					},
				}
				if pendingSignature != "" {
					p.ThoughtSignature = pendingSignature
					pendingSignature = ""
				}
				parts = append(parts, p)
			case types.UnknownBlock:
				if v.ProviderName != ProviderName {
					return nil, types.NewGatewayError(ProviderName, "encode_contents", types.ErrorKindUnsupportedContentBlock,
						"unknown content block was produced by provider "+v.ProviderName+", not vertex", nil)
				}
				if pendingSignature != "" {
					return nil, types.NewGatewayError(ProviderName, "encode_contents", types.ErrorKindInferenceServer,
						"thought block with signature cannot be followed by an unknown block", nil)
				}
				continue
			}
		}
		if pendingSignature != "" {
			return nil, types.NewGatewayError(ProviderName, "encode_contents", types.ErrorKindInferenceServer,
				"thought block with signature must be followed by a content block", nil)
		}
		if len(parts) == 0 {
			continue
		}
		role := geminiRoleUser
		if m.Role == types.RoleAssistant {
			role = geminiRoleModel
		}
		out = append(out, geminiContent{Role: role, Parts: parts})
	}
	return out, nil
}

func rawOrEmptyObject(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}

// encodeToolConfig builds Gemini's tools + toolConfig, grounded on
// GCPVertexGeminiToolConfig::from_tool_config's full branch table: None
// maps to mode NONE; Auto maps to ANY when allowed_tools is non-empty (a
// bare AUTO with allowedFunctionNames set is rejected by Gemini) and AUTO
// otherwise; Required and Specific both map to ANY (Specific additionally
// constrains allowedFunctionNames to the one named tool), all subject to
// the modelsNotSupportingAnyMode downgrade-to-AUTO escape hatch.
func encodeToolConfig(cfg *types.ToolConfig, modelName string) ([]geminiTool, *geminiToolConfig, error) {
	decls := make([]geminiFunctionDeclaration, 0, len(cfg.ToolsAvailable))
	for _, def := range cfg.ToolsAvailable {
		cleaned, err := policy.StripSchemaNoise(def.InputSchema)
		if err != nil {
			return nil, nil, err
		}
		decls = append(decls, geminiFunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  cleaned,
		})
	}
	tools := []geminiTool{{FunctionDeclarations: decls}}

	allowed := allowedFunctionNames(cfg)
	anySupported := !modelsNotSupportingAnyMode[modelName]

	var mode geminiFunctionCallingMode
	switch cfg.ToolChoice {
	case types.ToolChoiceNone:
		mode = modeNone
		allowed = nil
	case types.ToolChoiceRequired:
		if anySupported {
			mode = modeAny
		} else {
			mode = modeAuto
		}
	case types.ToolChoiceSpecific:
		if cfg.SpecificTool == "" {
			return nil, nil, types.NewGatewayError(ProviderName, "encode_tool_config", types.ErrorKindInvalidRequest,
				"tool_choice specific requires a tool name", nil)
		}
		allowed = []string{cfg.SpecificTool}
		if anySupported {
			mode = modeAny
		} else {
			mode = modeAuto
		}
	default: // types.ToolChoiceAuto, ""
		if len(allowed) > 0 && anySupported {
			mode = modeAny
		} else {
			mode = modeAuto
		}
	}

	return tools, &geminiToolConfig{FunctionCallingConfig: geminiFunctionCallingConfig{
		Mode:                 mode,
		AllowedFunctionNames: allowed,
	}}, nil
}

func allowedFunctionNames(cfg *types.ToolConfig) []string {
	if len(cfg.AllowedTools) == 0 {
		return nil
	}
	names := make([]string, 0, len(cfg.AllowedTools))
	for name := range cfg.AllowedTools {
		names = append(names, name)
	}
	return names
}

func encodeGenerationConfig(req *types.InferenceRequest) *geminiGenerationConfig {
	s := req.Sampling
	cfg := &geminiGenerationConfig{
		Temperature:      s.Temperature,
		MaxOutputTokens:  s.MaxTokens,
		TopP:             s.TopP,
		PresencePenalty:  s.PresencePenalty,
		FrequencyPenalty: s.FrequencyPenalty,
	}
	if len(s.StopSequences) > 0 {
		cfg.StopSequences = s.StopSequences
	}
	if s.Seed != nil {
		seed := *s.Seed
		cfg.Seed = &seed
	}
	if req.InferenceParamsV2.ThinkingBudgetTokens > 0 {
		cfg.ThinkingConfig = &geminiThinkingConfig{ThinkingBudget: req.InferenceParamsV2.ThinkingBudgetTokens}
	}
	switch req.JSONMode {
	case types.JSONModeOn:
		cfg.ResponseMimeType = "application/json"
	case types.JSONModeStrict:
		cfg.ResponseMimeType = "application/json"
		if len(req.OutputSchema) > 0 {
			if cleaned, err := policy.StripSchemaNoise(req.OutputSchema); err == nil {
				cfg.ResponseSchema = cleaned
			}
		}
	}
	return cfg
}

// warnUnsupportedParamsV2 emits a structured warning for inference_params_v2
// fields Gemini's generateContent API does not accept directly, matching
// SPEC_FULL.md §8's Vertex tip ("use thinking_budget").
func warnUnsupportedParamsV2(ctx context.Context, p types.InferenceParamsV2) {
	if p.ReasoningEffort != "" {
		log.Warn(ctx, log.KV{K: "msg", V: "vertex does not support reasoning_effort directly; use thinking_budget_tokens instead"},
			log.KV{K: "parameter", V: "reasoning_effort"}, log.KV{K: "tip", V: "thinking_budget"})
	}
	if p.ServiceTier != "" {
		log.Warn(ctx, log.KV{K: "msg", V: "vertex does not support service_tier"}, log.KV{K: "parameter", V: "service_tier"})
	}
	if p.Verbosity != "" {
		log.Warn(ctx, log.KV{K: "msg", V: "vertex does not support verbosity"}, log.KV{K: "parameter", V: "verbosity"})
	}
}

// newToolCallID synthesizes a tool-call id since Gemini does not supply
// one, matching the original source's Uuid::now_v7 usage generalized to
// google/uuid's time-ordered v7.
func newToolCallID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
