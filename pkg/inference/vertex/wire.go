// Package vertex implements the Google Vertex Gemini generateContent /
// streamGenerateContent adapter (C5), generalized from
// digitallysavvy-go-ai/pkg/providers/googlevertex/provider.go (which stubs
// LanguageModel — this package implements it) using
// original_source/tensorzero-core/src/providers/gcp_vertex_gemini/mod.rs
// for exact wire semantics: the request/response JSON shapes, the
// tool-choice mapping table, and the finish-reason table are not specified
// by spec.md itself and are taken line-for-line from that file.
package vertex

import "encoding/json"

// ProviderName identifies this adapter in logs, metrics, and sink rows.
const ProviderName = "vertex"

// geminiRole is Gemini's two-value role enumeration: user messages map to
// "user", assistant messages map to "model".
type geminiRole string

const (
	geminiRoleUser  geminiRole = "user"
	geminiRoleModel geminiRole = "model"
)

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type geminiFunctionResponse struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

// geminiContentPart is the outgoing content-part shape: thought/
// thoughtSignature sit alongside exactly one of text/functionCall/
// functionResponse, matching GCPVertexGeminiContentPart's flattened union.
type geminiContentPart struct {
	Thought          bool                     `json:"thought,omitempty"`
	ThoughtSignature string                   `json:"thoughtSignature,omitempty"`
	Text             string                   `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall      `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse  `json:"functionResponse,omitempty"`
}

type geminiContent struct {
	Role  geminiRole          `json:"role"`
	Parts []geminiContentPart `json:"parts"`
}

type geminiFunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

// geminiFunctionCallingMode mirrors GCPVertexGeminiFunctionCallingMode.
type geminiFunctionCallingMode string

const (
	modeAuto geminiFunctionCallingMode = "AUTO"
	modeAny  geminiFunctionCallingMode = "ANY"
	modeNone geminiFunctionCallingMode = "NONE"
)

type geminiFunctionCallingConfig struct {
	Mode                 geminiFunctionCallingMode `json:"mode"`
	AllowedFunctionNames []string                  `json:"allowedFunctionNames,omitempty"`
}

type geminiToolConfig struct {
	FunctionCallingConfig geminiFunctionCallingConfig `json:"functionCallingConfig"`
}

type geminiThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type geminiGenerationConfig struct {
	StopSequences     []string              `json:"stopSequences,omitempty"`
	Temperature       *float64              `json:"temperature,omitempty"`
	ThinkingConfig    *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
	MaxOutputTokens   *int                  `json:"maxOutputTokens,omitempty"`
	TopP              *float64              `json:"topP,omitempty"`
	PresencePenalty   *float64              `json:"presencePenalty,omitempty"`
	FrequencyPenalty  *float64              `json:"frequencyPenalty,omitempty"`
	Seed              *int64                `json:"seed,omitempty"`
	ResponseMimeType  string                `json:"responseMimeType,omitempty"`
	ResponseSchema    json.RawMessage       `json:"responseSchema,omitempty"`
}

// geminiRequest is the full :generateContent/:streamGenerateContent request
// body, matching GCPVertexGeminiRequest field-for-field.
type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	ToolConfig        *geminiToolConfig       `json:"toolConfig,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Labels            map[string]string       `json:"labels,omitempty"`
}

type geminiResponseFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type geminiResponseContentPart struct {
	Thought          bool                        `json:"thought,omitempty"`
	ThoughtSignature string                      `json:"thoughtSignature,omitempty"`
	Text             *string                     `json:"text,omitempty"`
	FunctionCall     *geminiResponseFunctionCall `json:"functionCall,omitempty"`
	ExecutableCode   json.RawMessage             `json:"executableCode,omitempty"`
}

type geminiResponseContent struct {
	Parts []geminiResponseContentPart `json:"parts"`
}

// geminiFinishReason mirrors GCPVertexGeminiFinishReason's ten variants.
type geminiFinishReason string

const (
	finishUnspecified        geminiFinishReason = "FINISH_REASON_UNSPECIFIED"
	finishStop               geminiFinishReason = "STOP"
	finishMaxTokens          geminiFinishReason = "MAX_TOKENS"
	finishSafety             geminiFinishReason = "SAFETY"
	finishRecitation         geminiFinishReason = "RECITATION"
	finishOther              geminiFinishReason = "OTHER"
	finishBlocklist          geminiFinishReason = "BLOCKLIST"
	finishProhibitedContent  geminiFinishReason = "PROHIBITED_CONTENT"
	finishSpii               geminiFinishReason = "SPII"
	finishMalformedFuncCall  geminiFinishReason = "MALFORMED_FUNCTION_CALL"
)

type geminiResponseCandidate struct {
	Content      *geminiResponseContent `json:"content,omitempty"`
	FinishReason geminiFinishReason     `json:"finishReason,omitempty"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiResponseCandidate `json:"candidates"`
	UsageMetadata *geminiUsageMetadata      `json:"usageMetadata,omitempty"`
}
