package sink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

type fakeStore struct {
	mu              sync.Mutex
	chatRows        []ChatInferenceRow
	jsonRows        []JsonInferenceRow
	modelRows       []ModelInferenceRow
	tagRows         []InferenceTagRow
	batchRows       []BatchRequestRow
	insertErr       error
	batchStatusSeen map[string]types.BatchStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{batchStatusSeen: map[string]types.BatchStatus{}}
}

func (f *fakeStore) InsertChatInference(_ context.Context, row ChatInferenceRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.chatRows = append(f.chatRows, row)
	return nil
}

func (f *fakeStore) InsertJSONInference(_ context.Context, row JsonInferenceRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jsonRows = append(f.jsonRows, row)
	return nil
}

func (f *fakeStore) InsertModelInference(_ context.Context, row ModelInferenceRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modelRows = append(f.modelRows, row)
	return nil
}

func (f *fakeStore) InsertTag(_ context.Context, row InferenceTagRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tagRows = append(f.tagRows, row)
	return nil
}

func (f *fakeStore) InsertBatchRequest(_ context.Context, row BatchRequestRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchRows = append(f.batchRows, row)
	return nil
}

func (f *fakeStore) UpdateBatchRequestStatus(_ context.Context, batchID string, status types.BatchStatus, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchStatusSeen[batchID] = status
	return nil
}

func (f *fakeStore) snapshot() (chat []ChatInferenceRow, model []ModelInferenceRow, tags []InferenceTagRow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ChatInferenceRow(nil), f.chatRows...),
		append([]ModelInferenceRow(nil), f.modelRows...),
		append([]InferenceTagRow(nil), f.tagRows...)
}

type fakeCache struct {
	mu    sync.Mutex
	store map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: map[string]string{}}
}

func (f *fakeCache) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store[key], nil
}

func (f *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[key] = value
	return nil
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestFingerprintIsDeterministic(t *testing.T) {
	in := FingerprintInput{
		FunctionName:   "chat",
		ModelProvider:  "openai",
		CanonicalInput: []byte(`{"a":1}`),
	}
	a, err := Fingerprint(in)
	require.NoError(t, err)
	b, err := Fingerprint(in)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestFingerprintDiffersOnExtraBody(t *testing.T) {
	base := FingerprintInput{FunctionName: "chat", ModelProvider: "openai", CanonicalInput: []byte(`{}`)}
	withExtra := base
	withExtra.ExtraBody = []byte(`{"foo":"bar"}`)

	a, err := Fingerprint(base)
	require.NoError(t, err)
	b, err := Fingerprint(withExtra)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestRecordChatInferenceOrdersWrites(t *testing.T) {
	store := newFakeStore()
	client, err := New(Options{Store: store})
	require.NoError(t, err)

	resp := &types.ProviderInferenceResponse{
		Output:       []types.ContentBlock{types.TextBlock{Text: "hi"}},
		FinishReason: types.FinishStop,
		Usage:        types.Usage{InputTokens: 1, OutputTokens: 2},
	}
	client.RecordChatInference(context.Background(), ChatInferenceInput{
		InferenceID:   "inf-1",
		ModelName:     "gpt-4o",
		ModelProvider: "openai",
		Tags:          map[string]string{"env": "test"},
		Response:      resp,
	})

	waitForCondition(t, func() bool {
		chat, model, tags := store.snapshot()
		return len(chat) == 1 && len(model) == 1 && len(tags) == 1
	})

	chat, model, tags := store.snapshot()
	require.Equal(t, "inf-1", chat[0].ID)
	require.Equal(t, "inf-1", model[0].InferenceID)
	require.Equal(t, "env", tags[0].Key)
}

func TestCacheRoundTrip(t *testing.T) {
	cache := newFakeCache()
	client, err := New(Options{Cache: cache})
	require.NoError(t, err)

	resp := &types.ProviderInferenceResponse{
		Output:       []types.ContentBlock{types.TextBlock{Text: "hello"}},
		FinishReason: types.FinishStop,
		RawResponse:  `{"raw":true}`,
	}
	require.NoError(t, client.StoreCache(context.Background(), "fp-1", resp, time.Minute))

	result, ok, err := client.Lookup(context.Background(), "fp-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.FinishStop, result.FinishReason)
	require.Len(t, result.Output, 1)
	text, ok := result.Output[0].(types.TextBlock)
	require.True(t, ok)
	require.Equal(t, "hello", text.Text)
}

func TestCacheLookupMissReturnsFalse(t *testing.T) {
	cache := newFakeCache()
	client, err := New(Options{Cache: cache})
	require.NoError(t, err)

	_, ok, err := client.Lookup(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLookupWithNilCacheIsAlwaysMiss(t *testing.T) {
	client, err := New(Options{})
	require.NoError(t, err)

	_, ok, err := client.Lookup(context.Background(), "anything")
	require.NoError(t, err)
	require.False(t, ok)
}
