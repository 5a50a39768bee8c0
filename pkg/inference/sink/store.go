package sink

import (
	"context"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// Store is the narrow persistence seam the Mongo-backed observability
// tables implement, generalized from features/runlog/mongo.Client's
// single-collection Append/List pair to this package's five tables.
// Unit tests substitute a fake Store rather than a live database.
type Store interface {
	InsertChatInference(ctx context.Context, row ChatInferenceRow) error
	InsertJSONInference(ctx context.Context, row JsonInferenceRow) error
	InsertModelInference(ctx context.Context, row ModelInferenceRow) error
	InsertTag(ctx context.Context, row InferenceTagRow) error
	InsertBatchRequest(ctx context.Context, row BatchRequestRow) error
	UpdateBatchRequestStatus(ctx context.Context, batchID string, status types.BatchStatus, errs []string) error
}
