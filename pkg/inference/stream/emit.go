package stream

import (
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// EmitText emits a text fragment at content-block index idx. Empty
// fragments are filtered, matching the teacher's
// `if delta.Value == "" { return nil }` guard in chunkProcessor.Handle.
func (a *Assembler) EmitText(idx int, text string) error {
	if text == "" {
		return nil
	}
	a.pendingUnsignedThought = false
	return a.emit(types.Chunk{Type: types.ChunkTypeText, Text: text})
}

// EmitToolStart opens a tool-call buffer at content-block index idx,
// keyed by the vendor-issued id and canonical name, mirroring
// chunkProcessor's ContentBlockStart/ToolUse handling.
func (a *Assembler) EmitToolStart(idx int, id, name string) error {
	a.pendingUnsignedThought = false
	a.toolBuffers[idx] = &toolBuffer{id: id, name: name}
	return nil
}

// EmitToolDelta appends a raw JSON fragment to the tool-call buffer at idx
// and emits a ChunkTypeToolCallDelta. Per Open Question #2, an empty
// fragment is still emitted rather than filtered — the chunk stream must
// stay reassemblable from any prefix.
func (a *Assembler) EmitToolDelta(idx int, fragment string) error {
	tb := a.toolBuffers[idx]
	if tb == nil {
		return types.NewGatewayError("stream", "emit_tool_delta", types.ErrorKindTypeConversion,
			"tool call delta at an index with no open tool buffer", nil)
	}
	tb.fragments = append(tb.fragments, fragment)
	return a.emit(types.Chunk{
		Type:           types.ChunkTypeToolCallDelta,
		ToolCallID:     tb.id,
		ToolCallName:   tb.name,
		ArgumentsDelta: fragment,
	})
}

// EmitToolStop finalizes the tool-call buffer at idx and emits the
// complete ToolCallBlock, defaulting to an empty JSON object when no
// fragments were ever delivered (matching toolBuffer.finalInput's "{}"
// fallback).
func (a *Assembler) EmitToolStop(idx int) error {
	tb := a.toolBuffers[idx]
	if tb == nil {
		return nil
	}
	delete(a.toolBuffers, idx)

	joined := tb.joined()
	if joined == "" {
		joined = "{}"
	}
	call := types.ToolCallBlock{ID: tb.id, Name: tb.name, ArgumentsJSON: []byte(joined)}
	return a.emit(types.Chunk{Type: types.ChunkTypeToolCall, ToolCallID: tb.id, ToolCallName: tb.name, ToolCall: &call})
}

// EmitThoughtDelta streams incremental reasoning text for UX, buffering it
// at idx for the final signed Thought emitted by EmitThoughtStop.
func (a *Assembler) EmitThoughtDelta(idx int, text string) error {
	if text == "" {
		return nil
	}
	tb := a.thoughtBuffers[idx]
	if tb == nil {
		tb = &thoughtBuffer{}
		a.thoughtBuffers[idx] = tb
	}
	tb.text.WriteString(text)
	return a.emit(types.Chunk{Type: types.ChunkTypeThought, Text: text})
}

// EmitThoughtRedacted appends redacted reasoning bytes at idx. Redacted
// content is never streamed incrementally, and EmitThoughtStop does not
// copy the bytes into FinalThought.
func (a *Assembler) EmitThoughtRedacted(idx int, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	tb := a.thoughtBuffers[idx]
	if tb == nil {
		tb = &thoughtBuffer{}
		a.thoughtBuffers[idx] = tb
	}
	tb.redacted = append(tb.redacted, data...)
	return nil
}

// EmitThoughtSignature records the vendor-issued signature for the
// reasoning buffer at idx, to be echoed back verbatim on a later turn
// (invariant 2).
func (a *Assembler) EmitThoughtSignature(idx int, signature string) error {
	if signature == "" {
		return nil
	}
	tb := a.thoughtBuffers[idx]
	if tb == nil {
		tb = &thoughtBuffer{}
		a.thoughtBuffers[idx] = tb
	}
	tb.signature = signature
	return nil
}

// EmitThoughtStop finalizes the reasoning buffer at idx and emits the
// terminal chunk of that thought's sequence carrying FinalThought.
// When redacted content was recorded, the thought is emitted even with empty
// text and never marks a pending unsigned thought; the redacted bytes
// themselves are not carried into FinalThought. A plaintext thought with
// no signature is still emitted (so UX previews are not lost) but flips
// pendingUnsignedThought, which EmitUnknown consults per Open Question #3.
func (a *Assembler) EmitThoughtStop(idx int) error {
	tb := a.thoughtBuffers[idx]
	if tb == nil {
		return nil
	}
	delete(a.thoughtBuffers, idx)

	if len(tb.redacted) > 0 {
		final := types.Thought{Signature: tb.signature, Text: tb.text.String()}
		a.pendingUnsignedThought = false
		return a.emit(types.Chunk{Type: types.ChunkTypeThought, FinalThought: &final})
	}
	text := tb.text.String()
	if text == "" {
		return nil
	}
	final := types.Thought{Text: text, Signature: tb.signature}
	a.pendingUnsignedThought = tb.signature == ""
	return a.emit(types.Chunk{Type: types.ChunkTypeThought, FinalThought: &final})
}

// EmitUnknown surfaces a provider-specific block this package cannot
// translate. When the Assembler was constructed with
// discardUnknownChunks=true, it is dropped instead of surfaced, per
// SPEC_FULL.md §9. An Unknown block arriving immediately after an
// unsigned thought is refused (Open Question #3): that sequence means the
// provider's wire format changed in a way this package does not
// understand, and silently dropping the thought would violate invariant 2.
func (a *Assembler) EmitUnknown(block types.UnknownBlock) error {
	if a.pendingUnsignedThought {
		a.pendingUnsignedThought = false
		return types.NewGatewayError("stream", "emit_unknown", types.ErrorKindTypeConversion,
			"unknown content block immediately follows an unsigned thought; refusing to silently drop the thought", nil)
	}
	if a.discardUnknowns {
		return nil
	}
	return a.emit(types.Chunk{Type: types.ChunkTypeUnknown, Unknown: &block})
}

// EmitUsage records a usage delta both in the chunk stream and in the
// metadata snapshot returned by Metadata, matching recordUsage's dual
// bookkeeping.
func (a *Assembler) EmitUsage(usage types.Usage) error {
	a.SetMetadata("usage", usage)
	return a.emit(types.Chunk{Type: types.ChunkTypeUsage, UsageDelta: &usage})
}

// Finish clears any open buffers and emits the single terminal stop chunk.
// A thought buffer still open when Finish is called (signature never
// arrived) is dropped silently; a tool buffer still open is finalized as
// if EmitToolStop had been called, so a vendor that omits the
// content-block-stop event before message-stop does not lose the call.
func (a *Assembler) Finish(reason types.FinishReason) error {
	for idx := range a.toolBuffers {
		if err := a.EmitToolStop(idx); err != nil {
			return err
		}
	}
	a.toolBuffers = map[int]*toolBuffer{}
	a.thoughtBuffers = map[int]*thoughtBuffer{}
	return a.emit(types.Chunk{Type: types.ChunkTypeStop, FinishReason: reason})
}
