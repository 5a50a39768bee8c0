package sink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// MongoOptions configures NewMongoStore, mirroring
// features/runlog/mongo/clients/mongo.Options.
type MongoOptions struct {
	Client   *mongodriver.Client
	Database string
	Timeout  time.Duration
}

const defaultTimeout = 5 * time.Second

// mongoStore is the concrete, narrow-interface-backed implementation of
// the five observability tables, grounded on
// features/runlog/mongo/clients/mongo/client.go's collection/cursor
// wrapper over the real driver.
type mongoStore struct {
	chatInference  collection
	jsonInference  collection
	modelInference collection
	inferenceTag   collection
	batchRequest   collection
	mongo          *mongodriver.Client
	timeout        time.Duration
}

// NewMongoStore builds the five-table Mongo backing store.
func NewMongoStore(opts MongoOptions) (Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	db := opts.Client.Database(opts.Database)
	return &mongoStore{
		chatInference:  mongoCollection{coll: db.Collection("chat_inference")},
		jsonInference:  mongoCollection{coll: db.Collection("json_inference")},
		modelInference: mongoCollection{coll: db.Collection("model_inference")},
		inferenceTag:   mongoCollection{coll: db.Collection("inference_tag")},
		batchRequest:   mongoCollection{coll: db.Collection("batch_request")},
		mongo:          opts.Client,
		timeout:        timeout,
	}, nil
}

func (s *mongoStore) Ping(ctx context.Context) error {
	return s.mongo.Ping(ctx, readpref.Primary())
}

func (s *mongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *mongoStore) InsertChatInference(ctx context.Context, row ChatInferenceRow) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.chatInference.InsertOne(ctx, chatInferenceDoc(row))
}

func (s *mongoStore) InsertJSONInference(ctx context.Context, row JsonInferenceRow) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.jsonInference.InsertOne(ctx, jsonInferenceDoc(row))
}

func (s *mongoStore) InsertModelInference(ctx context.Context, row ModelInferenceRow) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.modelInference.InsertOne(ctx, modelInferenceDoc(row))
}

func (s *mongoStore) InsertTag(ctx context.Context, row InferenceTagRow) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.inferenceTag.InsertOne(ctx, inferenceTagDoc(row))
}

func (s *mongoStore) InsertBatchRequest(ctx context.Context, row BatchRequestRow) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.batchRequest.InsertOne(ctx, batchRequestDoc(row))
}

func (s *mongoStore) UpdateBatchRequestStatus(ctx context.Context, batchID string, status types.BatchStatus, errs []string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.batchRequest.UpdateOne(ctx,
		bson.M{"batch_id": batchID},
		bson.M{"$set": bson.M{"status": string(status), "errors": errs, "updated_at": time.Now().UTC()}},
	)
}

// collection narrows *mongodriver.Collection to the operations this
// package needs, so tests can substitute a fake for the Mongo driver.
type collection interface {
	InsertOne(ctx context.Context, document any) error
	UpdateOne(ctx context.Context, filter, update any) error
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) InsertOne(ctx context.Context, document any) error {
	_, err := c.coll.InsertOne(ctx, document)
	return err
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter, update any) error {
	_, err := c.coll.UpdateOne(ctx, filter, update, options.UpdateOne())
	return err
}

// chatInferenceDoc/jsonInferenceDoc/... convert rows to bson documents.
// Kept as free functions (rather than methods on the row types) so
// pkg/inference/types stays free of a Mongo dependency.

type chatInferenceDocT struct {
	ID           bson.ObjectID     `bson:"_id,omitempty"`
	InferenceID  string            `bson:"inference_id"`
	FunctionName string            `bson:"function_name"`
	VariantName  string            `bson:"variant_name"`
	EpisodeID    string            `bson:"episode_id"`
	Input        string            `bson:"input"`
	Output       []byte            `bson:"output"`
	ToolConfig   []byte            `bson:"tool_config,omitempty"`
	Tags         map[string]string `bson:"tags,omitempty"`
	Timestamp    time.Time         `bson:"timestamp"`
}

func chatInferenceDoc(row ChatInferenceRow) chatInferenceDocT {
	return chatInferenceDocT{
		InferenceID:  row.ID,
		FunctionName: row.FunctionName,
		VariantName:  row.VariantName,
		EpisodeID:    row.EpisodeID,
		Input:        string(row.Input),
		Output:       marshalOutput(row.Output),
		ToolConfig:   marshalToolConfig(row.ToolConfig),
		Tags:         row.Tags,
		Timestamp:    row.Timestamp.UTC(),
	}
}

type jsonInferenceDocT struct {
	ID           bson.ObjectID     `bson:"_id,omitempty"`
	InferenceID  string            `bson:"inference_id"`
	FunctionName string            `bson:"function_name"`
	VariantName  string            `bson:"variant_name"`
	EpisodeID    string            `bson:"episode_id"`
	Input        string            `bson:"input"`
	Output       string            `bson:"output"`
	OutputSchema string            `bson:"output_schema,omitempty"`
	Tags         map[string]string `bson:"tags,omitempty"`
	Timestamp    time.Time         `bson:"timestamp"`
}

func jsonInferenceDoc(row JsonInferenceRow) jsonInferenceDocT {
	return jsonInferenceDocT{
		InferenceID:  row.ID,
		FunctionName: row.FunctionName,
		VariantName:  row.VariantName,
		EpisodeID:    row.EpisodeID,
		Input:        string(row.Input),
		Output:       string(row.Output),
		OutputSchema: string(row.OutputSchema),
		Tags:         row.Tags,
		Timestamp:    row.Timestamp.UTC(),
	}
}

type modelInferenceDocT struct {
	ID             bson.ObjectID `bson:"_id,omitempty"`
	InferenceID    string        `bson:"inference_id"`
	ModelName      string        `bson:"model_name"`
	ModelProvider  string        `bson:"model_provider"`
	RawRequest     string        `bson:"raw_request"`
	RawResponse    string        `bson:"raw_response"`
	InputTokens    int           `bson:"input_tokens"`
	OutputTokens   int           `bson:"output_tokens"`
	ResponseTimeMs int64         `bson:"response_time_ms"`
	TTFTMs         int64         `bson:"ttft_ms"`
	FinishReason   string        `bson:"finish_reason"`
	Cached         bool          `bson:"cached"`
	Timestamp      time.Time     `bson:"timestamp"`
}

func modelInferenceDoc(row ModelInferenceRow) modelInferenceDocT {
	return modelInferenceDocT{
		InferenceID:    row.InferenceID,
		ModelName:      row.ModelName,
		ModelProvider:  row.ModelProvider,
		RawRequest:     row.RawRequest,
		RawResponse:    row.RawResponse,
		InputTokens:    row.InputTokens,
		OutputTokens:   row.OutputTokens,
		ResponseTimeMs: row.ResponseTimeMs,
		TTFTMs:         row.TTFTMs,
		FinishReason:   string(row.FinishReason),
		Cached:         row.Cached,
		Timestamp:      row.Timestamp.UTC(),
	}
}

type inferenceTagDocT struct {
	ID          bson.ObjectID `bson:"_id,omitempty"`
	InferenceID string        `bson:"inference_id"`
	Key         string        `bson:"key"`
	Value       string        `bson:"value"`
	Timestamp   time.Time     `bson:"timestamp"`
}

func inferenceTagDoc(row InferenceTagRow) inferenceTagDocT {
	return inferenceTagDocT{
		InferenceID: row.InferenceID,
		Key:         row.Key,
		Value:       row.Value,
		Timestamp:   row.Timestamp.UTC(),
	}
}

type batchRequestDocT struct {
	ID            bson.ObjectID `bson:"_id,omitempty"`
	BatchID       string        `bson:"batch_id"`
	FunctionName  string        `bson:"function_name"`
	VariantName   string        `bson:"variant_name"`
	ModelProvider string        `bson:"model_provider"`
	ModelName     string        `bson:"model_name"`
	Status        string        `bson:"status"`
	Errors        []string      `bson:"errors,omitempty"`
	CreatedAt     time.Time     `bson:"created_at"`
	UpdatedAt     time.Time     `bson:"updated_at"`
}

func batchRequestDoc(row BatchRequestRow) batchRequestDocT {
	return batchRequestDocT{
		BatchID:       row.BatchID,
		FunctionName:  row.FunctionName,
		VariantName:   row.VariantName,
		ModelProvider: row.ModelProvider,
		ModelName:     row.ModelName,
		Status:        string(row.Status),
		Errors:        row.Errors,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

func marshalOutput(blocks []types.ContentBlock) []byte {
	if len(blocks) == 0 {
		return nil
	}
	encoded, err := json.Marshal(blocks)
	if err != nil {
		return nil
	}
	return encoded
}

func marshalToolConfig(cfg *types.ToolConfig) []byte {
	if cfg == nil {
		return nil
	}
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return nil
	}
	return encoded
}
