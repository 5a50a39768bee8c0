package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MarshalJSON encodes a Message while preserving the concrete ContentBlock
// types stored in Content via an explicit Kind discriminator, so a round
// trip through the cache/sink (C8) does not lose type information when
// Content is stored as an interface slice.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias struct {
		Role    ConversationRole `json:"Role"`
		Content []any            `json:"Content"`
	}
	if len(m.Content) == 0 {
		return json.Marshal(alias{Role: m.Role})
	}
	content := make([]any, 0, len(m.Content))
	for i, b := range m.Content {
		enc, err := encodeContentBlock(b)
		if err != nil {
			return nil, fmt.Errorf("encode content[%d]: %w", i, err)
		}
		content = append(content, enc)
	}
	return json.Marshal(alias{Role: m.Role, Content: content})
}

// UnmarshalJSON decodes a Message while materialising concrete ContentBlock
// implementations stored in the Content slice.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role    ConversationRole  `json:"Role"`
		Content []json.RawMessage `json:"Content"`
	}
	var tmp alias
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	m.Role = tmp.Role
	if len(tmp.Content) == 0 {
		m.Content = nil
		return nil
	}
	m.Content = make([]ContentBlock, 0, len(tmp.Content))
	for i, raw := range tmp.Content {
		block, err := decodeContentBlock(raw)
		if err != nil {
			return fmt.Errorf("decode content[%d]: %w", i, err)
		}
		m.Content = append(m.Content, block)
	}
	return nil
}

func encodeContentBlock(b ContentBlock) (any, error) {
	switch v := b.(type) {
	case TextBlock:
		return struct {
			Kind string `json:"Kind"`
			TextBlock
		}{Kind: "text", TextBlock: v}, nil
	case ToolCallBlock:
		return struct {
			Kind string `json:"Kind"`
			ToolCallBlock
		}{Kind: "tool_call", ToolCallBlock: v}, nil
	case ToolResultBlock:
		return struct {
			Kind string `json:"Kind"`
			ToolResultBlock
		}{Kind: "tool_result", ToolResultBlock: v}, nil
	case *File:
		return struct {
			Kind string `json:"Kind"`
			*File
		}{Kind: "file", File: v}, nil
	case Thought:
		return struct {
			Kind string `json:"Kind"`
			Thought
		}{Kind: "thought", Thought: v}, nil
	case CitationsBlock:
		return struct {
			Kind string `json:"Kind"`
			CitationsBlock
		}{Kind: "citations", CitationsBlock: v}, nil
	case UnknownBlock:
		return struct {
			Kind string `json:"Kind"`
			UnknownBlock
		}{Kind: "unknown", UnknownBlock: v}, nil
	default:
		return nil, fmt.Errorf("unknown content block type %T", b)
	}
}

func decodeContentBlock(raw json.RawMessage) (ContentBlock, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode content block object: %w", err)
	}
	if len(obj) == 0 {
		return nil, errors.New("empty content block payload")
	}
	kindRaw, ok := obj["Kind"]
	if !ok {
		return nil, errors.New("content block missing Kind discriminator")
	}
	var kind string
	if err := json.Unmarshal(kindRaw, &kind); err != nil {
		return nil, fmt.Errorf("decode Kind: %w", err)
	}
	switch kind {
	case "text":
		var t TextBlock
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode TextBlock: %w", err)
		}
		return t, nil
	case "tool_call":
		var tc ToolCallBlock
		if err := json.Unmarshal(raw, &tc); err != nil {
			return nil, fmt.Errorf("decode ToolCallBlock: %w", err)
		}
		if tc.ID == "" {
			return nil, errors.New("ToolCallBlock requires ID")
		}
		return tc, nil
	case "tool_result":
		var tr ToolResultBlock
		if err := json.Unmarshal(raw, &tr); err != nil {
			return nil, fmt.Errorf("decode ToolResultBlock: %w", err)
		}
		if tr.ID == "" {
			return nil, errors.New("ToolResultBlock requires ID")
		}
		return tr, nil
	case "file":
		var f File
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode File: %w", err)
		}
		return &f, nil
	case "thought":
		var th Thought
		if err := json.Unmarshal(raw, &th); err != nil {
			return nil, fmt.Errorf("decode Thought: %w", err)
		}
		return th, nil
	case "citations":
		var c CitationsBlock
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode CitationsBlock: %w", err)
		}
		return c, nil
	case "unknown":
		var u UnknownBlock
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, fmt.Errorf("decode UnknownBlock: %w", err)
		}
		return u, nil
	default:
		return nil, fmt.Errorf("unknown content block kind %q", kind)
	}
}
