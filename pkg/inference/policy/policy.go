// Package policy implements the gateway's tool-choice and JSON-mode
// policies (C9): the ToolChoiceMapper interface, the
// Bedrock-family "{"-prefill/prepend for JSON mode, the Vertex JSON
// schema cleanup tree rewrites (grounded on
// original_source/tensorzero-core/src/providers/gcp_vertex_gemini/mod.rs's
// GCPVertexGeminiToolConfig::from_tool_config and
// process_jsonschema_for_gcp_vertex_gemini/capitalize_types), and
// output_schema compile/conformance validation for Strict JSON mode
// (schema_validate.go).
package policy

import (
	"encoding/json"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// ToolChoiceMapper translates a provider-neutral ToolConfig into a
// vendor-specific tool configuration value for modelName. No adapter
// package implements it; each maps ToolConfig in its own encodeToolConfig
// function.
type ToolChoiceMapper interface {
	Map(cfg *types.ToolConfig, modelName string) (any, error)
}

// JSONPrefillAssistantMessage is the synthetic assistant message appended
// to a request for vendors whose JSON mode requires message prefilling
// (the Anthropic family on Bedrock), per SPEC_FULL.md §4.5(a).
const JSONPrefillAssistantMessage = "Here is the JSON requested:\n{"

// NeedsJSONPrefill reports whether the model, per isAnthropicFamily,
// belongs to a family that requires the "{"-prefill/prepend JSON-mode dance, and mode/functionType
// actually request JSON output.
func NeedsJSONPrefill(isAnthropicFamily bool, mode types.JSONMode, functionType types.FunctionType) bool {
	if !isAnthropicFamily || functionType != types.FunctionTypeJSON {
		return false
	}
	return mode == types.JSONModeOn || mode == types.JSONModeStrict
}

// PrependJSONBrace reprocesses a decoded first text block for the
// prefill-JSON-mode response path: the vendor response picks up where the
// synthetic "{" prefix left off, so the adapter must prepend it back
// before the result is treated as valid JSON.
func PrependJSONBrace(firstBlockText string) string {
	return "{" + firstBlockText
}

// StripSchemaNoise recursively removes "$schema" and "additionalProperties"
// keys from a JSON schema tree, matching
// process_jsonschema_for_gcp_vertex_gemini. It does not mutate schema; it
// returns a new value. Idempotent: StripSchemaNoise(StripSchemaNoise(s))
// == StripSchemaNoise(s).
func StripSchemaNoise(schema json.RawMessage) (json.RawMessage, error) {
	if len(schema) == 0 {
		return schema, nil
	}
	var v any
	if err := json.Unmarshal(schema, &v); err != nil {
		return nil, types.NewGatewayError("policy", "strip_schema_noise", types.ErrorKindTypeConversion,
			"schema is not valid JSON", err)
	}
	stripped := stripSchemaNoiseValue(v)
	out, err := json.Marshal(stripped)
	if err != nil {
		return nil, types.NewGatewayError("policy", "strip_schema_noise", types.ErrorKindSerialization,
			"failed to re-marshal stripped schema", err)
	}
	return out, nil
}

func stripSchemaNoiseValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			if k == "$schema" || k == "additionalProperties" {
				continue
			}
			out[k] = stripSchemaNoiseValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = stripSchemaNoiseValue(vv)
		}
		return out
	default:
		return val
	}
}

// CapitalizeTypes recursively uppercases every "type" string value in
// schema, matching capitalize_types/capitalize_type — used for the
// supervised-fine-tuning export schema variant. Idempotent for the same
// reason: an already-uppercase "type" value is unchanged by a second pass.
func CapitalizeTypes(schema json.RawMessage) (json.RawMessage, error) {
	if len(schema) == 0 {
		return schema, nil
	}
	var v any
	if err := json.Unmarshal(schema, &v); err != nil {
		return nil, types.NewGatewayError("policy", "capitalize_types", types.ErrorKindTypeConversion,
			"schema is not valid JSON", err)
	}
	capitalizeTypesValue(v)
	out, err := json.Marshal(v)
	if err != nil {
		return nil, types.NewGatewayError("policy", "capitalize_types", types.ErrorKindSerialization,
			"failed to re-marshal capitalized schema", err)
	}
	return out, nil
}

func capitalizeTypesValue(v any) {
	switch val := v.(type) {
	case map[string]any:
		if t, ok := val["type"].(string); ok {
			val["type"] = upper(t)
		}
		for _, vv := range val {
			capitalizeTypesValue(vv)
		}
	case []any:
		for _, vv := range val {
			capitalizeTypesValue(vv)
		}
	}
}

func upper(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'a' && c <= 'z' {
			out[i] = c - ('a' - 'A')
		}
	}
	return string(out)
}
