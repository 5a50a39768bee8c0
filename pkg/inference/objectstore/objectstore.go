// Package objectstore is the gateway's object-storage facade (C3): a
// narrow Put/Get interface over gs:// and s3:// URIs, used by multimodal
// File content-block resolution and by the batch engine's JSONL exchange.
// Nothing outside this package ever imports an AWS or GCS SDK type.
package objectstore

import (
	"context"
	"strings"

	"github.com/relaygate/inference-gateway/pkg/inference/creds"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// Store is a single bound object: Put writes its bytes, Get reads them
// back. Every Store is scoped to one bucket/key pair resolved by
// MakeStore.
type Store interface {
	Put(ctx context.Context, data []byte) error
	Get(ctx context.Context) ([]byte, error)
}

// MakeStore parses uri (gs://bucket/path or s3://bucket/path) and returns a
// Store bound to that object, plus the resolved path component (everything
// after the bucket). cr supplies the backend's credentials; dynamicKeys is
// forwarded to cr unchanged and only consulted when cr is Dynamic.
func MakeStore(ctx context.Context, uri string, cr *creds.Credentials, dynamicKeys map[string]string) (Store, string, error) {
	scheme, bucket, key, err := splitURI(uri)
	if err != nil {
		return nil, "", err
	}

	switch scheme {
	case "s3":
		store, err := newS3Store(ctx, bucket, key, cr)
		if err != nil {
			return nil, "", err
		}
		return store, key, nil
	case "gs":
		store, err := newGCSStore(ctx, bucket, key, cr, dynamicKeys)
		if err != nil {
			return nil, "", err
		}
		return store, key, nil
	default:
		return nil, "", types.NewGatewayError("objectstore", "make_store", types.ErrorKindInvalidRequest,
			"unsupported object storage scheme "+scheme+"://, expected gs:// or s3://", nil)
	}
}

func splitURI(uri string) (scheme, bucket, key string, err error) {
	parts := strings.SplitN(uri, "://", 2)
	if len(parts) != 2 {
		return "", "", "", types.NewGatewayError("objectstore", "make_store", types.ErrorKindInvalidRequest,
			"object storage URI must be of the form scheme://bucket/path, got "+uri, nil)
	}
	rest := parts[1]
	bucketAndKey := strings.SplitN(rest, "/", 2)
	if len(bucketAndKey) != 2 || bucketAndKey[0] == "" || bucketAndKey[1] == "" {
		return "", "", "", types.NewGatewayError("objectstore", "make_store", types.ErrorKindInvalidRequest,
			"object storage URI must include both a bucket and a path, got "+uri, nil)
	}
	return parts[0], bucketAndKey[0], bucketAndKey[1], nil
}
