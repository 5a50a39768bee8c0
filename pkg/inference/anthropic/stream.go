package anthropic

import (
	"context"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/relaygate/inference-gateway/pkg/inference/policy"
	"github.com/relaygate/inference-gateway/pkg/inference/provider"
	streampkg "github.com/relaygate/inference-gateway/pkg/inference/stream"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// streamBufSize matches bedrock/openai's Assembler channel capacity.
const streamBufSize = 32

// newChunkStream wires an Anthropic Messages SSE stream into
// pkg/inference/stream.Assembler, grounded on processStream's event-type
// switch (message_start/content_block_start/content_block_delta/
// content_block_stop/message_delta/message_stop/error), generalized the
// same way bedrock/openai generalize their own vendor event loops.
func newChunkStream(ctx context.Context, sdkStream *ssestream.Stream[anthropic.MessageStreamEventUnion], prefilled bool) provider.ChunkStream {
	h := &streamHandler{sdkStream: sdkStream}
	a := streampkg.Run(ctx, streamBufSize, false, h.next, handleEvent)
	if prefilled {
		blockState(a).bracePrefix = true
	}
	return &closingAssembler{Assembler: a, sdkStream: sdkStream}
}

type closingAssembler struct {
	*streampkg.Assembler
	sdkStream *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

func (c *closingAssembler) Close() error {
	_ = c.Assembler.Close()
	return c.sdkStream.Close()
}

type streamHandler struct {
	sdkStream *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

func (h *streamHandler) next(ctx context.Context) (any, error) {
	if !h.sdkStream.Next() {
		if err := h.sdkStream.Err(); err != nil {
			return nil, translateError(err)
		}
		return nil, io.EOF
	}
	return h.sdkStream.Current(), nil
}

// blockIdxState stashes per-stream content-block bookkeeping on the
// Assembler's metadata map: which index is currently a thinking block
// (content_block_stop carries no type, so the opener must record it) and
// whether the leading "{" of a JSON-prefilled response is still waiting to
// be restored onto the first text delta, following the same metadata pattern openai/stream.go
// introduced for its own per-stream index tracking.
type blockIdxState struct {
	thinkingIdx map[int64]bool
	bracePrefix bool
	stopReason  anthropic.StopReason
}

const blockIdxMetaKey = "anthropic_block_idx_state"

func blockState(a *streampkg.Assembler) *blockIdxState {
	if v, ok := a.Metadata()[blockIdxMetaKey].(*blockIdxState); ok {
		return v
	}
	s := &blockIdxState{thinkingIdx: map[int64]bool{}}
	a.SetMetadata(blockIdxMetaKey, s)
	return s
}

// handleEvent translates one MessageStreamEventUnion into Emit* calls.
func handleEvent(a *streampkg.Assembler, event any) error {
	e, ok := event.(anthropic.MessageStreamEventUnion)
	if !ok {
		return nil
	}
	state := blockState(a)

	switch e.Type {
	case "message_start":
		start := e.AsMessageStart()
		if start.Message.Usage.InputTokens > 0 {
			if err := a.EmitUsage(types.Usage{InputTokens: int(start.Message.Usage.InputTokens)}); err != nil {
				return err
			}
		}

	case "content_block_start":
		start := e.AsContentBlockStart()
		idx := int(start.Index)
		switch start.ContentBlock.Type {
		case "tool_use":
			toolUse := start.ContentBlock.AsToolUse()
			return a.EmitToolStart(idx, toolUse.ID, toolUse.Name)
		case "thinking":
			state.thinkingIdx[start.Index] = true
		}

	case "content_block_delta":
		delta := e.AsContentBlockDelta()
		idx := int(delta.Index)
		switch delta.Delta.Type {
		case "text_delta":
			if delta.Delta.Text != "" {
				text := delta.Delta.Text
				if state.bracePrefix {
					text = policy.PrependJSONBrace(text)
					state.bracePrefix = false
				}
				return a.EmitText(idx, text)
			}
		case "thinking_delta":
			if delta.Delta.Thinking != "" {
				return a.EmitThoughtDelta(idx, delta.Delta.Thinking)
			}
		case "signature_delta":
			if delta.Delta.Signature != "" {
				return a.EmitThoughtSignature(idx, delta.Delta.Signature)
			}
		case "input_json_delta":
			if delta.Delta.PartialJSON != "" {
				return a.EmitToolDelta(idx, delta.Delta.PartialJSON)
			}
		}

	case "content_block_stop":
		stop := e.AsContentBlockStop()
		idx := int(stop.Index)
		if state.thinkingIdx[stop.Index] {
			delete(state.thinkingIdx, stop.Index)
			return a.EmitThoughtStop(idx)
		}
		return a.EmitToolStop(idx)

	case "message_delta":
		delta := e.AsMessageDelta()
		if delta.Delta.StopReason != "" {
			state.stopReason = delta.Delta.StopReason
		}
		if delta.Usage.OutputTokens > 0 {
			if err := a.EmitUsage(types.Usage{OutputTokens: int(delta.Usage.OutputTokens)}); err != nil {
				return err
			}
		}

	case "message_stop":
		return a.Finish(finishReasonFromStopReason(state.stopReason))

	case "error":
		return translateError(errStreamEvent{e})
	}
	return nil
}

// errStreamEvent satisfies the error interface for a server-sent "error"
// event so it can flow through the same translateError path as a
// transport-level failure.
type errStreamEvent struct {
	event anthropic.MessageStreamEventUnion
}

func (e errStreamEvent) Error() string {
	if msg := e.event.Error.Message; msg != "" {
		return msg
	}
	return "anthropic stream error event"
}
