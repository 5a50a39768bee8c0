// Command gatewayd wires the four provider adapters, the adaptive rate
// limiter, tracing middleware, and the Mongo/Redis-backed sink into one
// gateway.Server. It serves nothing on its own — a front end (HTTP, gRPC, or
// an in-process caller) talks to the returned Server or wraps it in a
// gateway.RemoteClient; per SPEC_FULL.md's composition-root scope, this is
// that root, grounded on cmd/demo/main.go's New-everything-then-hand-off
// shape and registry/cmd/registry/main.go's envOr/Redis-dial pattern for
// environment-driven configuration.
//
// # Configuration
//
// Environment variables:
//
//	GATEWAY_MONGO_URI        - Mongo connection URI (default: "mongodb://localhost:27017")
//	GATEWAY_MONGO_DATABASE   - Mongo database name (default: "inference_gateway")
//	GATEWAY_REDIS_ADDR       - Redis address for the response cache (default: "localhost:6379")
//	GATEWAY_REDIS_PASSWORD   - Redis password (optional)
//	GATEWAY_RATE_LIMIT_REDIS_ADDR - Redis address for cluster rate-limit coordination (optional; falls back to GATEWAY_REDIS_ADDR)
//	GATEWAY_NODE_NAME        - Cluster node name the rate limiter coordinates under (default: "gatewayd")
//	AWS_REGION               - AWS region bedrockruntime.NewFromConfig resolves against (default: "us-east-1")
//	VERTEX_PROJECT            - GCP project ID for the Vertex adapter (required to enable Vertex)
//	VERTEX_LOCATION           - GCP region for the Vertex adapter (default: "us-central1")
//	OPENAI_API_KEY            - static OpenAI API key (required to enable OpenAI)
//	ANTHROPIC_API_KEY         - static Anthropic API key (required to enable Anthropic)
//	GATEWAY_RATE_LIMIT_TPM    - initial tokens-per-minute budget per provider (default: 60000)
//	GATEWAY_RATE_LIMIT_MAX_TPM - ceiling tokens-per-minute budget per provider (default: same as initial)
//	GATEWAY_DEBUG             - any non-empty value enables debug-level logging
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/clue/log"
	"goa.design/pulse/rmap"

	"github.com/relaygate/inference-gateway/pkg/inference/anthropic"
	"github.com/relaygate/inference-gateway/pkg/inference/bedrock"
	"github.com/relaygate/inference-gateway/pkg/inference/creds"
	"github.com/relaygate/inference-gateway/pkg/inference/gateway"
	"github.com/relaygate/inference-gateway/pkg/inference/openai"
	"github.com/relaygate/inference-gateway/pkg/inference/sink"
	"github.com/relaygate/inference-gateway/pkg/inference/vertex"
)

func main() {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if os.Getenv("GATEWAY_DEBUG") != "" {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	if err := run(ctx); err != nil {
		log.Fatal(ctx, err)
	}
}

func run(ctx context.Context) error {
	mongoURI := envOr("GATEWAY_MONGO_URI", "mongodb://localhost:27017")
	mongoDatabase := envOr("GATEWAY_MONGO_DATABASE", "inference_gateway")
	redisAddr := envOr("GATEWAY_REDIS_ADDR", "localhost:6379")
	redisPassword := os.Getenv("GATEWAY_REDIS_PASSWORD")
	rateLimitRedisAddr := envOr("GATEWAY_RATE_LIMIT_REDIS_ADDR", redisAddr)
	nodeName := envOr("GATEWAY_NODE_NAME", "gatewayd")
	awsRegion := envOr("AWS_REGION", "us-east-1")
	initialTPM := envFloatOr("GATEWAY_RATE_LIMIT_TPM", 60000)
	maxTPM := envFloatOr("GATEWAY_RATE_LIMIT_MAX_TPM", initialTPM)

	// Connect to Mongo for the observability store (C8). mongo-driver/v2's
	// Connect no longer blocks on the initial handshake, so a Ping
	// confirms reachability the way mongo_test.go's v1-driver ctx-taking
	// Connect used to do implicitly.
	mongoClient, err := mongodriver.Connect(options.Client().ApplyURI(mongoURI))
	if err != nil {
		return fmt.Errorf("connect to mongo: %w", err)
	}
	if err := mongoClient.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(ctx); err != nil {
			log.Printf(ctx, "disconnect mongo: %v", err)
		}
	}()
	store, err := sink.NewMongoStore(sink.MongoOptions{Client: mongoClient, Database: mongoDatabase})
	if err != nil {
		return fmt.Errorf("build mongo store: %w", err)
	}

	// Connect to Redis for the response cache (C8) and, separately, for
	// cluster-coordinated rate limiting (two keyspaces, two clients, same
	// node unless GATEWAY_RATE_LIMIT_REDIS_ADDR names another).
	cacheRDB := redis.NewClient(&redis.Options{Addr: redisAddr, Password: redisPassword})
	defer func() {
		if err := cacheRDB.Close(); err != nil {
			log.Printf(ctx, "close redis (cache): %v", err)
		}
	}()
	if err := cacheRDB.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis (cache): %w", err)
	}
	cache, err := sink.NewRedisCache(sink.RedisOptions{Client: cacheRDB})
	if err != nil {
		return fmt.Errorf("build redis cache: %w", err)
	}

	rateLimitRDB := cacheRDB
	if rateLimitRedisAddr != redisAddr {
		rateLimitRDB = redis.NewClient(&redis.Options{Addr: rateLimitRedisAddr, Password: redisPassword})
		defer func() {
			if err := rateLimitRDB.Close(); err != nil {
				log.Printf(ctx, "close redis (rate limit): %v", err)
			}
		}()
		if err := rateLimitRDB.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis (rate limit): %w", err)
		}
	}
	rateLimitMap, err := rmap.Join(ctx, "gatewayd-ratelimit-"+nodeName, rateLimitRDB)
	if err != nil {
		return fmt.Errorf("join rate limit cluster map: %w", err)
	}

	sinkClient, err := sink.New(sink.Options{Store: store, Cache: cache})
	if err != nil {
		return fmt.Errorf("build sink client: %w", err)
	}

	// Construct every adapter the corresponding environment variables
	// enable. A gateway can run with any subset registered; NewServer only
	// requires at least one.
	var opts []gateway.Option

	if bedrockAdapter, err := newBedrockAdapter(ctx, awsRegion); err != nil {
		return fmt.Errorf("build bedrock adapter: %w", err)
	} else if bedrockAdapter != nil {
		opts = append(opts, gateway.WithAdapter(bedrock.ProviderName, bedrockAdapter))
	}

	if project := os.Getenv("VERTEX_PROJECT"); project != "" {
		location := envOr("VERTEX_LOCATION", "us-central1")
		vertexAdapter, err := vertex.New(project, location)
		if err != nil {
			return fmt.Errorf("build vertex adapter: %w", err)
		}
		opts = append(opts, gateway.WithAdapter(vertex.ProviderName, vertexAdapter))
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		openaiAdapter, err := openai.New(openai.Options{APIKey: apiKey})
		if err != nil {
			return fmt.Errorf("build openai adapter: %w", err)
		}
		opts = append(opts, gateway.WithAdapter(openai.ProviderName, openaiAdapter))
	}

	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		anthropicAdapter, err := anthropic.New(anthropic.Options{APIKey: apiKey})
		if err != nil {
			return fmt.Errorf("build anthropic adapter: %w", err)
		}
		opts = append(opts, gateway.WithAdapter(anthropic.ProviderName, anthropicAdapter))
	}

	metrics, err := gateway.NewMetrics()
	if err != nil {
		return fmt.Errorf("build metrics recorder: %w", err)
	}

	// Credentials are resolved per adapter call; SDK-delegated resolution
	// covers Vertex's Google Application Default Credentials path, and is
	// a safe no-op for adapters (OpenAI, Anthropic) whose API key was
	// already baked into their SDK client at construction above.
	opts = append(opts,
		gateway.WithCredentials(creds.NewSDK(awsRegion)),
		gateway.WithSink(sinkClient),
		gateway.WithUnary(
			gateway.TracingUnaryMiddleware(),
			metrics.UnaryMiddleware(),
			gateway.NewAdaptiveRateLimiter(ctx, rateLimitMap, "gatewayd", initialTPM, maxTPM).UnaryMiddleware(),
		),
		gateway.WithStream(
			gateway.TracingStreamMiddleware(),
			metrics.StreamMiddleware(),
			gateway.NewAdaptiveRateLimiter(ctx, rateLimitMap, "gatewayd-stream", initialTPM, maxTPM).StreamMiddleware(),
		),
	)

	srv, err := gateway.NewServer(opts...)
	if err != nil {
		return fmt.Errorf("build gateway server: %w", err)
	}

	log.Print(ctx, log.KV{K: "msg", V: "gatewayd composition root ready; no transport is served by this command"})
	_ = srv
	return nil
}

// newBedrockAdapter loads the AWS SDK's default credential chain for
// awsRegion and returns a Bedrock adapter over it. It never returns an
// error for a missing region; AWS_REGION defaults to us-east-1 so Bedrock
// is always enabled unless config.LoadDefaultConfig itself fails (e.g. a
// malformed shared config file).
func newBedrockAdapter(ctx context.Context, awsRegion string) (*bedrock.Adapter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	runtime := bedrockruntime.NewFromConfig(cfg)
	return bedrock.New(runtime)
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envFloatOr(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
