package gateway

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/relaygate/inference-gateway/pkg/inference/creds"
	"github.com/relaygate/inference-gateway/pkg/inference/provider"
	"github.com/relaygate/inference-gateway/pkg/inference/sink"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// fakeAdapter implements provider.Adapter entirely with caller-supplied
// closures, the same no-live-vendor-call pattern the teacher's
// client_test.go fakes use for model.Client.
type fakeAdapter struct {
	provider.UnsupportedBatch

	name     string
	inferFn  func(req *types.InferenceRequest) (*types.ProviderInferenceResponse, error)
	streamFn func(req *types.InferenceRequest) (provider.ChunkStream, error)
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Infer(_ context.Context, req *types.InferenceRequest, _ provider.HTTPDoer, _ *creds.Credentials, _ map[string]string) (*types.ProviderInferenceResponse, error) {
	return f.inferFn(req)
}

func (f *fakeAdapter) InferStream(_ context.Context, req *types.InferenceRequest, _ provider.HTTPDoer, _ *creds.Credentials, _ map[string]string) (provider.ChunkStream, string, error) {
	cs, err := f.streamFn(req)
	return cs, "", err
}

// fakeChunkStream replays a fixed slice of chunks, mirroring the teacher's
// fakeStreamer test doubles.
type fakeChunkStream struct {
	chunks []types.Chunk
	idx    int
}

func (f *fakeChunkStream) Recv() (types.Chunk, error) {
	if f.idx >= len(f.chunks) {
		return types.Chunk{}, io.EOF
	}
	c := f.chunks[f.idx]
	f.idx++
	return c, nil
}

func (f *fakeChunkStream) Close() error             { return nil }
func (f *fakeChunkStream) Metadata() map[string]any { return nil }

// fakeStore is an in-memory sink.Store recording every row inserted, so
// e2e scenarios can assert a ChatInference/JsonInference row was written
// without a live Mongo instance.
type fakeStore struct {
	mu         sync.Mutex
	chatRows   []sink.ChatInferenceRow
	jsonRows   []sink.JsonInferenceRow
	modelRows  []sink.ModelInferenceRow
	batchRows  []sink.BatchRequestRow
}

func newFakeStore() *fakeStore { return &fakeStore{} }

func (s *fakeStore) InsertChatInference(_ context.Context, row sink.ChatInferenceRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatRows = append(s.chatRows, row)
	return nil
}

func (s *fakeStore) InsertJSONInference(_ context.Context, row sink.JsonInferenceRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jsonRows = append(s.jsonRows, row)
	return nil
}

func (s *fakeStore) InsertModelInference(_ context.Context, row sink.ModelInferenceRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelRows = append(s.modelRows, row)
	return nil
}

func (s *fakeStore) InsertTag(context.Context, sink.InferenceTagRow) error { return nil }

func (s *fakeStore) InsertBatchRequest(_ context.Context, row sink.BatchRequestRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchRows = append(s.batchRows, row)
	return nil
}

func (s *fakeStore) UpdateBatchRequestStatus(context.Context, string, types.BatchStatus, []string) error {
	return nil
}

func (s *fakeStore) snapshot() (chat []sink.ChatInferenceRow, model []sink.ModelInferenceRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sink.ChatInferenceRow(nil), s.chatRows...), append([]sink.ModelInferenceRow(nil), s.modelRows...)
}

// fakeCache is an in-memory sink.Cache, standing in for Redis.
type fakeCache struct {
	mu    sync.Mutex
	store map[string]string
}

func newFakeCache() *fakeCache { return &fakeCache{store: map[string]string{}} }

func (c *fakeCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store[key], nil
}

func (c *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = value
	return nil
}
