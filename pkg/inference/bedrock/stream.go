package bedrock

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/relaygate/inference-gateway/pkg/inference/provider"
	streampkg "github.com/relaygate/inference-gateway/pkg/inference/stream"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// streamBufSize matches the teacher's bedrockStreamer channel capacity.
const streamBufSize = 32

// newChunkStream wires a Bedrock ConverseStreamEventStream into
// pkg/inference/stream.Assembler, generalizing the teacher's chunkProcessor
// (features/model/bedrock/stream.go) from model.Chunk to types.Chunk.
// toolIDToName is unused on the streaming path (Bedrock echoes both id and
// name on ContentBlockStart) but is accepted for interface symmetry with the
// unary path and future vendors that only echo an id.
func newChunkStream(ctx context.Context, evStream *bedrockruntime.ConverseStreamEventStream, _ map[string]string) provider.ChunkStream {
	h := &streamHandler{evStream: evStream}
	a := streampkg.Run(ctx, streamBufSize, false, h.next, handleEvent)
	h.assembler = a
	return &closingAssembler{Assembler: a, evStream: evStream}
}

// closingAssembler ensures the underlying AWS event stream is closed
// alongside the Assembler, matching bedrockStreamer.Close's dual cleanup.
type closingAssembler struct {
	*streampkg.Assembler
	evStream *bedrockruntime.ConverseStreamEventStream
}

func (c *closingAssembler) Close() error {
	_ = c.Assembler.Close()
	return c.evStream.Close()
}

// streamHandler adapts the AWS SDK's channel-based event stream to
// stream.NextEventFunc.
type streamHandler struct {
	evStream  *bedrockruntime.ConverseStreamEventStream
	assembler *streampkg.Assembler
}

func (h *streamHandler) next(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case event, ok := <-h.evStream.Events():
		if !ok {
			if err := h.evStream.Err(); err != nil {
				return nil, translateConverseError(err)
			}
			return nil, io.EOF
		}
		return event, nil
	}
}

// handleEvent translates one Bedrock stream event into Emit* calls,
// grounded on chunkProcessor.Handle.
func handleEvent(a *streampkg.Assembler, event any) error {
	switch ev := event.(type) {
	case *brtypes.ConverseStreamOutputMemberMessageStart:
		return nil

	case *brtypes.ConverseStreamOutputMemberContentBlockStart:
		idx := int(ev.Value.ContentBlockIndex)
		start, ok := ev.Value.Start.(*brtypes.ContentBlockStartMemberToolUse)
		if !ok || start == nil {
			return nil
		}
		if start.Value.ToolUseId == nil || *start.Value.ToolUseId == "" {
			return types.NewGatewayError(ProviderName, "stream_content_block_start", types.ErrorKindInferenceServer,
				"tool use block missing tool_use_id", nil)
		}
		if start.Value.Name == nil || *start.Value.Name == "" {
			return types.NewGatewayError(ProviderName, "stream_content_block_start", types.ErrorKindInferenceServer,
				"tool use block missing name", nil)
		}
		return a.EmitToolStart(idx, *start.Value.ToolUseId, *start.Value.Name)

	case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
		idx := int(ev.Value.ContentBlockIndex)
		switch delta := ev.Value.Delta.(type) {
		case *brtypes.ContentBlockDeltaMemberText:
			return a.EmitText(idx, delta.Value)
		case *brtypes.ContentBlockDeltaMemberToolUse:
			if delta.Value.Input == nil {
				return nil
			}
			return a.EmitToolDelta(idx, *delta.Value.Input)
		case *brtypes.ContentBlockDeltaMemberReasoningContent:
			switch v := delta.Value.(type) {
			case *brtypes.ReasoningContentBlockDeltaMemberText:
				return a.EmitThoughtDelta(idx, v.Value)
			case *brtypes.ReasoningContentBlockDeltaMemberRedactedContent:
				return a.EmitThoughtRedacted(idx, v.Value)
			case *brtypes.ReasoningContentBlockDeltaMemberSignature:
				return a.EmitThoughtSignature(idx, v.Value)
			}
			return nil
		default:
			return nil
		}

	case *brtypes.ConverseStreamOutputMemberContentBlockStop:
		idx := int(ev.Value.ContentBlockIndex)
		if err := a.EmitThoughtStop(idx); err != nil {
			return err
		}
		return a.EmitToolStop(idx)

	case *brtypes.ConverseStreamOutputMemberMessageStop:
		return a.Finish(finishReasonFromStopReason(ev.Value.StopReason))

	case *brtypes.ConverseStreamOutputMemberMetadata:
		if ev.Value.Usage == nil {
			return nil
		}
		return a.EmitUsage(types.Usage{
			InputTokens:  int(deref(ev.Value.Usage.InputTokens)),
			OutputTokens: int(deref(ev.Value.Usage.OutputTokens)),
		})

	default:
		return nil
	}
}
