package types

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"goa.design/clue/log"
)

// BorrowStopSequences returns sampling.StopSequences without copying when the
// caller only needs to read them, matching the teacher's convention of
// avoiding unnecessary allocation on the hot request-translation path.
func BorrowStopSequences(sampling SamplingParams) []string {
	return sampling.StopSequences
}

// SerializeOrLog marshals v to JSON for use as a raw_request/raw_response
// value. If marshaling fails (should only happen for vendor SDK types that
// refuse a structured serialisation) it logs at debug level and falls back
// to a "{"debug": "<...>"}" form, matching SPEC_FULL.md §4/§9's handling of
// vendor SDK opacity. The second return value reports whether the debug
// fallback was used.
func SerializeOrLog(ctx context.Context, what string, v any) (string, bool) {
	data, err := json.Marshal(v)
	if err == nil {
		return string(data), false
	}
	log.Debug(ctx, log.KV{K: "what", V: what}, log.KV{K: "error", V: err.Error()}, log.KV{K: "msg", V: "serialize_or_log: falling back to debug form"})
	debug, marshalErr := json.Marshal(map[string]string{"debug": fmt.Sprintf("%+v", v)})
	if marshalErr != nil {
		return fmt.Sprintf(`{"debug":%q}`, fmt.Sprintf("%+v", v)), true
	}
	return string(debug), true
}

// ValidateForSend checks, before a request is handed to any adapter, that
// it has at least one message and that every tool call carries a unique,
// non-empty id and object-valued arguments. It never mutates req.
func (req *InferenceRequest) ValidateForSend() error {
	if len(req.Messages) == 0 {
		return NewGatewayError("gateway", "validate", ErrorKindInvalidRequest, "messages are required", nil)
	}
	seenIDs := make(map[string]struct{})
	for mi, msg := range req.Messages {
		for bi, block := range msg.Content {
			tc, ok := block.(ToolCallBlock)
			if !ok {
				continue
			}
			if tc.ID == "" {
				return NewGatewayError("gateway", "validate", ErrorKindInvalidRequest,
					fmt.Sprintf("message %d block %d: tool call missing id", mi, bi), nil)
			}
			if _, dup := seenIDs[tc.ID]; dup {
				return NewGatewayError("gateway", "validate", ErrorKindInvalidRequest,
					fmt.Sprintf("duplicate tool call id %q", tc.ID), nil)
			}
			seenIDs[tc.ID] = struct{}{}
			if err := validateToolArgumentsObject(tc.ArgumentsJSON); err != nil {
				return NewGatewayError("gateway", "validate", ErrorKindInvalidRequest,
					fmt.Sprintf("tool call %q: %s", tc.ID, err), err)
			}
		}
	}
	return nil
}

// validateToolArgumentsObject enforces invariant 3: ArgumentsJSON must parse
// as a JSON object, never an array or scalar.
func validateToolArgumentsObject(raw json.RawMessage) error {
	if len(raw) == 0 {
		return errors.New("tool call arguments must be a JSON object, got empty payload")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("tool call arguments are not valid JSON: %w", err)
	}
	if _, ok := v.(map[string]any); !ok {
		return fmt.Errorf("tool call arguments must be a JSON object, got %T", v)
	}
	return nil
}

// DropsUsage reports whether a ProviderInferenceResponse is missing usage on
// a terminal unary response, which must surface InferenceServer per
// invariant 4 (a cached response is the one documented exception and
// carries zero counts by construction, not by omission).
func (resp *ProviderInferenceResponse) DropsUsage() bool {
	return resp.Usage.InputTokens == 0 && resp.Usage.OutputTokens == 0
}
