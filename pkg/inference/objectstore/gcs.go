package objectstore

import (
	"context"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/relaygate/inference-gateway/pkg/inference/creds"
	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// gcsStore is the gs:// backend. Credentials are injected as a single
// Authorization header yielded by the SDK-delegated branch of the
// credential resolver, wrapped into the storage client's HTTP transport —
// more than one header from that branch is a fatal misuse, per spec.md
// §4.3, since this path only ever expects an OAuth2 bearer token.
type gcsStore struct {
	client *storage.Client
	bucket string
	object string
}

func newGCSStore(ctx context.Context, bucket, object string, cr *creds.Credentials, dynamicKeys map[string]string) (Store, error) {
	headers, err := cr.GetAuthHeaders(ctx, "https://storage.googleapis.com/", dynamicKeys)
	if err != nil {
		return nil, err
	}
	if len(headers) > 1 {
		return nil, types.NewGatewayError("objectstore", "gcs_auth", types.ErrorKindInternal,
			"credential resolver yielded more than one header for a GCS bearer-token transport", nil)
	}

	client, err := storage.NewClient(ctx, option.WithHTTPClient(&http.Client{
		Transport: staticHeaderTransport{headers: headers},
	}))
	if err != nil {
		return nil, types.NewGatewayError("objectstore", "gcs_auth", types.ErrorKindGCPCredentials,
			"failed to construct GCS client", err)
	}
	return &gcsStore{client: client, bucket: bucket, object: object}, nil
}

func (s *gcsStore) Put(ctx context.Context, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return types.NewGatewayError("objectstore", "gcs_put", types.ErrorKindInferenceServer,
			"gcs write failed for gs://"+s.bucket+"/"+s.object, err)
	}
	if err := w.Close(); err != nil {
		return types.NewGatewayError("objectstore", "gcs_put", types.ErrorKindInferenceServer,
			"gcs writer close failed for gs://"+s.bucket+"/"+s.object, err)
	}
	return nil
}

func (s *gcsStore) Get(ctx context.Context) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, types.NewGatewayError("objectstore", "gcs_get", types.ErrorKindInvalidRequest,
				"gs://"+s.bucket+"/"+s.object+" does not exist", err)
		}
		return nil, types.NewGatewayError("objectstore", "gcs_get", types.ErrorKindInferenceServer,
			"gcs reader open failed for gs://"+s.bucket+"/"+s.object, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// staticHeaderTransport injects a fixed set of headers (at most one,
// enforced by the caller) onto every outgoing request before handing it to
// next, which defaults to http.DefaultTransport when nil.
type staticHeaderTransport struct {
	headers http.Header
	next    http.RoundTripper
}

func (t staticHeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		clone.Header[k] = v
	}
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(clone)
}
