// Package stream implements the gateway's streaming engine (C6): a single
// Assembler that owns tool-call buffering, thought buffering, and usage
// aggregation so every vendor adapter reuses the same ordering and
// continuity rules instead of reimplementing them. It is factored out of
// the teacher's bedrockStreamer/chunkProcessor pair
// (features/model/bedrock/stream.go), which inlined this logic for
// Bedrock alone; here it is vendor-neutral and every adapter's decoder
// only supplies a NextEvent function and a Handle callback.
package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// NextEventFunc fetches the next raw vendor event, returning io.EOF when
// the vendor stream ends cleanly.
type NextEventFunc func(ctx context.Context) (event any, err error)

// HandleEventFunc translates one vendor event into zero or more Emit* calls
// on a.
type HandleEventFunc func(a *Assembler, event any) error

// Assembler implements provider.ChunkStream, accumulating tool-call and
// thought fragments keyed by content-block index and emitting types.Chunk
// values over a buffered channel, mirroring bedrockStreamer's
// channel-plus-goroutine shape.
type Assembler struct {
	ctx    context.Context
	cancel context.CancelFunc

	chunks chan types.Chunk

	errMu    sync.Mutex
	errSet   bool
	finalErr error

	metaMu   sync.RWMutex
	metadata map[string]any

	toolBuffers     map[int]*toolBuffer
	thoughtBuffers  map[int]*thoughtBuffer
	discardUnknowns bool

	// pendingUnsignedThought is set when the most recently finalized
	// thought had text but no signature. An Unknown block arriving
	// immediately after is a provider-wire-format change this package
	// does not understand (Open Question #3: still an error rather than
	// silently dropping the thought).
	pendingUnsignedThought bool
}

type toolBuffer struct {
	id        string
	name      string
	fragments []string
}

func (tb *toolBuffer) joined() string {
	if len(tb.fragments) == 0 {
		return ""
	}
	return strings.Join(tb.fragments, "")
}

type thoughtBuffer struct {
	text      strings.Builder
	redacted  []byte
	signature string
}

// Run starts an Assembler pumping events from next through handle into a
// buffered chunk channel, the same goroutine shape as bedrockStreamer.run.
// discardUnknownChunks controls whether an adapter-reported UnknownBlock
// chunk is dropped with a warning (true) or surfaced to the caller (false),
// per SPEC_FULL.md §9.
func Run(ctx context.Context, bufSize int, discardUnknownChunks bool, next NextEventFunc, handle HandleEventFunc) *Assembler {
	cctx, cancel := context.WithCancel(ctx)
	a := &Assembler{
		ctx:             cctx,
		cancel:          cancel,
		chunks:          make(chan types.Chunk, bufSize),
		toolBuffers:     make(map[int]*toolBuffer),
		thoughtBuffers:  make(map[int]*thoughtBuffer),
		discardUnknowns: discardUnknownChunks,
	}
	go a.run(next, handle)
	return a
}

func (a *Assembler) run(next NextEventFunc, handle HandleEventFunc) {
	defer close(a.chunks)
	for {
		select {
		case <-a.ctx.Done():
			a.setErr(a.ctx.Err())
			return
		default:
		}

		event, err := next(a.ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				a.setErr(nil)
			} else {
				a.setErr(err)
			}
			return
		}
		if err := handle(a, event); err != nil {
			a.setErr(err)
			return
		}
	}
}

// Recv returns the next assembled chunk, or io.EOF once the vendor stream
// ends cleanly, or the terminal error otherwise.
func (a *Assembler) Recv() (types.Chunk, error) {
	select {
	case chunk, ok := <-a.chunks:
		if ok {
			return chunk, nil
		}
		if err := a.err(); err != nil {
			return types.Chunk{}, err
		}
		return types.Chunk{}, io.EOF
	case <-a.ctx.Done():
		err := a.ctx.Err()
		a.setErr(err)
		return types.Chunk{}, err
	}
}

// Close cancels the underlying event pump. Safe to call more than once.
func (a *Assembler) Close() error {
	a.cancel()
	return nil
}

// Metadata returns a snapshot of provider-specific metadata collected
// during the stream (e.g. final usage, citations).
func (a *Assembler) Metadata() map[string]any {
	a.metaMu.RLock()
	defer a.metaMu.RUnlock()
	if len(a.metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(a.metadata))
	for k, v := range a.metadata {
		out[k] = v
	}
	return out
}

// SetMetadata records a key in the metadata snapshot returned by Metadata.
func (a *Assembler) SetMetadata(key string, value any) {
	a.metaMu.Lock()
	defer a.metaMu.Unlock()
	if a.metadata == nil {
		a.metadata = make(map[string]any)
	}
	a.metadata[key] = value
}

func (a *Assembler) setErr(err error) {
	a.errMu.Lock()
	defer a.errMu.Unlock()
	if a.errSet {
		return
	}
	a.errSet = true
	a.finalErr = err
}

func (a *Assembler) err() error {
	a.errMu.Lock()
	defer a.errMu.Unlock()
	return a.finalErr
}

func (a *Assembler) emit(c types.Chunk) error {
	select {
	case <-a.ctx.Done():
		return a.ctx.Err()
	case a.chunks <- c:
		return nil
	}
}
