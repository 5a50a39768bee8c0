package openai

import (
	"context"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/relaygate/inference-gateway/pkg/inference/provider"
	streampkg "github.com/relaygate/inference-gateway/pkg/inference/stream"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// streamBufSize matches bedrock's Assembler channel capacity.
const streamBufSize = 32

// newChunkStream wires an OpenAI chat-completion SSE stream into
// pkg/inference/stream.Assembler, the same way bedrock.newChunkStream wires
// the AWS event stream: a thin NextEventFunc pulls one chunk at a time and
// handleEvent turns it into Emit* calls.
func newChunkStream(ctx context.Context, sdkStream *ssestream.Stream[openai.ChatCompletionChunk]) provider.ChunkStream {
	h := &streamHandler{sdkStream: sdkStream}
	a := streampkg.Run(ctx, streamBufSize, false, h.next, handleEvent)
	return &closingAssembler{Assembler: a, sdkStream: sdkStream}
}

type closingAssembler struct {
	*streampkg.Assembler
	sdkStream *ssestream.Stream[openai.ChatCompletionChunk]
}

func (c *closingAssembler) Close() error {
	_ = c.Assembler.Close()
	return c.sdkStream.Close()
}

type streamHandler struct {
	sdkStream *ssestream.Stream[openai.ChatCompletionChunk]
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

// handleEvent translates one ChatCompletionChunk into Emit* calls. Unlike
// Bedrock/Vertex, OpenAI has no explicit content-block-start/stop events:
// a tool call's first delta carries its id/name, subsequent deltas carry
// only index and an arguments fragment, and the chunk with a non-empty
// FinishReason closes everything out.
func handleEvent(a *streampkg.Assembler, event any) error {
	chunk, ok := event.(openai.ChatCompletionChunk)
	if !ok {
		return nil
	}

	h := chunkHandlerState(a)

	if chunk.Usage.TotalTokens > 0 {
		if err := a.EmitUsage(types.Usage{
			InputTokens:  int(chunk.Usage.PromptTokens),
			OutputTokens: int(chunk.Usage.CompletionTokens),
		}); err != nil {
			return err
		}
	}

	if len(chunk.Choices) == 0 {
		return nil
	}
	choice := chunk.Choices[0]

	if choice.Delta.Content != "" {
		if err := a.EmitText(0, choice.Delta.Content); err != nil {
			return err
		}
	}

	for _, tc := range choice.Delta.ToolCalls {
		idx := int(tc.Index)
		if !h.opened(tc.Index) {
			h.markOpened(tc.Index)
			if err := a.EmitToolStart(idx+1, tc.ID, tc.Function.Name); err != nil {
				return err
			}
		}
		if tc.Function.Arguments != "" {
			if err := a.EmitToolDelta(idx+1, tc.Function.Arguments); err != nil {
				return err
			}
		}
	}

	if choice.FinishReason != "" {
		for idx := range h.seenToolIdx {
			if err := a.EmitToolStop(int(idx) + 1); err != nil {
				return err
			}
		}
		return a.Finish(finishReasonFromOpenAI(string(choice.FinishReason)))
	}
	return nil
}

// toolIdxState lets handleEvent (a package-level HandleEventFunc, per
// stream.HandleEventFunc's signature) keep the tool-call-index bookkeeping
// that belongs to one stream without a closure capturing streamHandler;
// it is stashed on the Assembler's metadata map under a private key since
// Assembler itself is vendor-neutral and has no notion of OpenAI's index
// scheme.
type toolIdxState struct {
	seenToolIdx map[int64]bool
}

const toolIdxMetaKey = "openai_tool_idx_state"

func chunkHandlerState(a *streampkg.Assembler) *toolIdxState {
	if v, ok := a.Metadata()[toolIdxMetaKey].(*toolIdxState); ok {
		return v
	}
	s := &toolIdxState{seenToolIdx: map[int64]bool{}}
	a.SetMetadata(toolIdxMetaKey, s)
	return s
}

func (s *toolIdxState) opened(idx int64) bool {
	return s.seenToolIdx[idx]
}

func (s *toolIdxState) markOpened(idx int64) {
	s.seenToolIdx[idx] = true
}
