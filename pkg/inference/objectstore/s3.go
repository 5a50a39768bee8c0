package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithy "github.com/aws/smithy-go"

	"github.com/relaygate/inference-gateway/pkg/inference/creds"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// s3Store is the s3:// backend, adapted from
// haasonsaas-nexus/internal/artifacts/s3_store.go's PutObject/GetObject
// pair and its NotFound detection, narrowed to one bound bucket/key per
// Store instance rather than an artifactID-keyed store.
type s3Store struct {
	client *s3.Client
	bucket string
	key    string
}

func newS3Store(ctx context.Context, bucket, key string, cr *creds.Credentials) (Store, error) {
	cfg, err := cr.GetBedrockConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &s3Store{client: s3.NewFromConfig(cfg), bucket: bucket, key: key}, nil
}

func (s *s3Store) Put(ctx context.Context, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &s.key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return types.NewGatewayError("objectstore", "s3_put", types.ErrorKindInferenceServer,
			"s3 put object failed for s3://"+s.bucket+"/"+s.key, err)
	}
	return nil
}

func (s *s3Store) Get(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &s.key,
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, types.NewGatewayError("objectstore", "s3_get", types.ErrorKindInvalidRequest,
				"s3://"+s.bucket+"/"+s.key+" does not exist", err)
		}
		return nil, types.NewGatewayError("objectstore", "s3_get", types.ErrorKindInferenceServer,
			"s3 get object failed for s3://"+s.bucket+"/"+s.key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func isS3NotFound(err error) bool {
	var notFound *s3types.NotFound
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && strings.EqualFold(apiErr.ErrorCode(), "NotFound")
}
