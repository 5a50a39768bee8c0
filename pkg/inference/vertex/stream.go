package vertex

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/relaygate/inference-gateway/pkg/inference/provider"
	streampkg "github.com/relaygate/inference-gateway/pkg/inference/stream"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

const streamBufSize = 32

// sseScanner decodes the "data: {...}" lines produced by
// streamGenerateContent?alt=sse, one full geminiResponse object per event,
// matching stream_gcp_vertex_gemini's use of reqwest_eventsource over the
// same wire format.
type sseScanner struct {
	scanner *bufio.Scanner
	body    io.ReadCloser
}

func newSSEScanner(body io.ReadCloser) *sseScanner {
	return &sseScanner{scanner: bufio.NewScanner(body), body: body}
}

// next returns the decoded payload of the following "data: " line, skipping
// blank lines and SSE comments, or io.EOF once the body is exhausted.
func (s *sseScanner) next() ([]byte, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		return []byte(strings.TrimSpace(data)), nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, types.NewGatewayError(ProviderName, "stream_scan", types.ErrorKindInferenceServer,
			"failed reading streamGenerateContent body", err)
	}
	return nil, io.EOF
}

// toolCallState tracks the continuation rule from
// content_part_to_tensorzero_chunk: a function-call part with the same name
// as the one currently open is a continuation of the same call (only its
// arguments fragment is new); a different (or first) name opens a new
// buffer at the next index.
type toolCallState struct {
	open     bool
	idx      int
	lastName string
}

// thoughtState tracks the single open "running" thought buffer used for
// text-bearing thought parts, plus a counter for standalone
// thoughtSignature-only parts, which the original source gives a fresh
// synthetic id each time they appear so they never merge with the running
// thought.
type thoughtState struct {
	open     bool
	idx      int
	nextIdx  int
	sigOnly  int
}

func newChunkStream(ctx context.Context, body io.ReadCloser) provider.ChunkStream {
	s := newSSEScanner(body)
	h := &vertexStreamHandler{scanner: s}
	a := streampkg.Run(ctx, streamBufSize, false, h.next, h.handle)
	return &bodyClosingAssembler{Assembler: a, body: body}
}

type bodyClosingAssembler struct {
	*streampkg.Assembler
	body io.ReadCloser
}

func (b *bodyClosingAssembler) Close() error {
	_ = b.Assembler.Close()
	return b.body.Close()
}

type vertexStreamHandler struct {
	scanner *sseScanner
	tool    toolCallState
	thought thoughtState
	done    bool
}

func (h *vertexStreamHandler) next(ctx context.Context) (any, error) {
	if h.done {
		return nil, io.EOF
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	data, err := h.scanner.next()
	if err != nil {
		return nil, err
	}
	var gr geminiResponse
	if err := json.Unmarshal(data, &gr); err != nil {
		return nil, types.NewGatewayError(ProviderName, "stream_decode", types.ErrorKindInferenceServer,
			"streamGenerateContent event is not valid JSON", err)
	}
	return &gr, nil
}

func (h *vertexStreamHandler) handle(a *streampkg.Assembler, event any) error {
	gr := event.(*geminiResponse)

	if gr.UsageMetadata != nil && (gr.UsageMetadata.PromptTokenCount > 0 || gr.UsageMetadata.CandidatesTokenCount > 0) {
		if err := a.EmitUsage(types.Usage{
			InputTokens:  gr.UsageMetadata.PromptTokenCount,
			OutputTokens: gr.UsageMetadata.CandidatesTokenCount,
		}); err != nil {
			return err
		}
	}

	if len(gr.Candidates) == 0 {
		return nil
	}
	candidate := gr.Candidates[0]

	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if err := h.handlePart(a, part); err != nil {
				return err
			}
		}
	}

	if candidate.FinishReason == "" {
		return nil
	}
	if err := h.closeOpenThought(a); err != nil {
		return err
	}
	h.done = true
	return a.Finish(finishReasonFromGemini(candidate.FinishReason))
}

func (h *vertexStreamHandler) handlePart(a *streampkg.Assembler, part geminiResponseContentPart) error {
	if part.Thought {
		if part.Text == nil || *part.Text == "" {
			if part.ThoughtSignature != "" {
				return h.emitStandaloneSignature(a, part.ThoughtSignature)
			}
			return nil
		}
		if !h.thought.open {
			h.thought.idx = h.thought.nextIdx
			h.thought.nextIdx++
			h.thought.open = true
		}
		if err := a.EmitThoughtDelta(h.thought.idx, *part.Text); err != nil {
			return err
		}
		if part.ThoughtSignature != "" {
			return a.EmitThoughtSignature(h.thought.idx, part.ThoughtSignature)
		}
		return nil
	}

	// A thoughtSignature riding on a non-thought part annotates the part
	// that follows it (see the original source's note on merging these
	// back on encode); since our running thought buffer has already been
	// flushed by the time any non-thought content appears, surface it as
	// its own standalone signature-only thought first.
	if part.ThoughtSignature != "" {
		if err := h.closeOpenThought(a); err != nil {
			return err
		}
		if err := h.emitStandaloneSignature(a, part.ThoughtSignature); err != nil {
			return err
		}
	} else if err := h.closeOpenThought(a); err != nil {
		return err
	}

	switch {
	case part.Text != nil:
		return a.EmitText(0, *part.Text)
	case part.FunctionCall != nil:
		return h.handleFunctionCall(a, part.FunctionCall)
	case len(part.ExecutableCode) > 0:
		return types.NewGatewayError(ProviderName, "stream_handle_part", types.ErrorKindUnsupportedContentBlock,
			"executableCode is not supported in vertex streaming responses", nil)
	default:
		return a.EmitUnknown(types.UnknownBlock{ProviderName: ProviderName})
	}
}

func (h *vertexStreamHandler) closeOpenThought(a *streampkg.Assembler) error {
	if !h.thought.open {
		return nil
	}
	h.thought.open = false
	return a.EmitThoughtStop(h.thought.idx)
}

func (h *vertexStreamHandler) emitStandaloneSignature(a *streampkg.Assembler, signature string) error {
	h.thought.sigOnly--
	idx := h.thought.sigOnly
	if err := a.EmitThoughtSignature(idx, signature); err != nil {
		return err
	}
	return a.EmitThoughtStop(idx)
}

func (h *vertexStreamHandler) handleFunctionCall(a *streampkg.Assembler, fc *geminiResponseFunctionCall) error {
	if fc.Name != "" && fc.Name != h.tool.lastName {
		if h.tool.open {
			if err := a.EmitToolStop(h.tool.idx); err != nil {
				return err
			}
		}
		h.tool.idx++
		h.tool.lastName = fc.Name
		h.tool.open = true
		if err := a.EmitToolStart(h.tool.idx, newToolCallID(), fc.Name); err != nil {
			return err
		}
	}
	if !h.tool.open {
		return types.NewGatewayError(ProviderName, "stream_handle_function_call", types.ErrorKindInferenceServer,
			"function call argument fragment arrived with no open tool call", nil)
	}
	args := fc.Args
	if len(args) == 0 {
		args = []byte("{}")
	}
	return a.EmitToolDelta(h.tool.idx, string(args))
}
