package sink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// Cache is the narrow Redis seam this package needs, mirroring
// RedisCache's Get/Set shape but trimmed to the fingerprint-keyed
// lookup this sink performs — tests substitute a fake or a miniredis-
// backed real client rather than a mocked interface.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// redisCache adapts redis.UniversalClient (so a single node or a cluster
// client both satisfy Cache), grounded on cache_redis.go's makeKey/Get/Set
// pair, trimmed to what fingerprint lookups need.
type redisCache struct {
	client redis.UniversalClient
	prefix string
}

// RedisOptions configures NewRedisCache.
type RedisOptions struct {
	Client redis.UniversalClient
	Prefix string
}

const defaultKeyPrefix = "inference-gateway"

// NewRedisCache wraps an already-constructed redis.UniversalClient (a
// *redis.Client, *redis.ClusterClient, or a miniredis-backed client in
// tests) as a Cache.
func NewRedisCache(opts RedisOptions) (Cache, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &redisCache{client: opts.Client, prefix: prefix}, nil
}

func (c *redisCache) makeKey(key string) string {
	return c.prefix + ":cache:" + key
}

func (c *redisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, c.makeKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

func (c *redisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.client.Set(ctx, c.makeKey(key), value, ttl).Err()
}

// cachedDoc is the JSON envelope stored under a fingerprint key. Output is
// wrapped in a types.Message so its existing MarshalJSON/UnmarshalJSON
// Kind-discriminator round trip (json.go) handles the ContentBlock union
// without this package needing its own copy of that switch.
type cachedDoc struct {
	Output       types.Message      `json:"output"`
	FinishReason types.FinishReason `json:"finish_reason"`
	RawResponse  string             `json:"raw_response"`
}

// Lookup resolves a fingerprint against the cache, returning ok=false on a
// miss (key absent or past maxAge) without treating either as an error.
// Callers reconstruct a zero-usage ProviderInferenceResponse from the
// result per the cache-hit contract: InputTokens/OutputTokens/Latency/TTFT
// all read zero, and the caller is responsible for marking the persisted
// ModelInference row Cached=true.
func (s *Client) Lookup(ctx context.Context, fingerprint string) (result CachedResult, ok bool, err error) {
	if s.cache == nil {
		return CachedResult{}, false, nil
	}
	raw, err := s.cache.Get(ctx, fingerprint)
	if err != nil {
		return CachedResult{}, false, err
	}
	if raw == "" {
		return CachedResult{}, false, nil
	}

	var doc cachedDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return CachedResult{}, false, types.NewGatewayError("sink", "cache_lookup", types.ErrorKindSerialization,
			"cached value is not valid JSON", err)
	}

	return CachedResult{
		Output:       doc.Output.Content,
		FinishReason: doc.FinishReason,
		RawResponse:  doc.RawResponse,
	}, true, nil
}

// StoreCache writes resp under fingerprint with a maxAge TTL, serializing the
// same three fields Lookup reconstructs.
func (s *Client) StoreCache(ctx context.Context, fingerprint string, resp *types.ProviderInferenceResponse, maxAge time.Duration) error {
	if s.cache == nil {
		return nil
	}
	doc := cachedDoc{
		Output:       types.Message{Role: types.RoleAssistant, Content: resp.Output},
		FinishReason: resp.FinishReason,
		RawResponse:  resp.RawResponse,
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return types.NewGatewayError("sink", "cache_store", types.ErrorKindSerialization,
			"failed to marshal cache document", err)
	}
	return s.cache.Set(ctx, fingerprint, string(encoded), maxAge)
}
