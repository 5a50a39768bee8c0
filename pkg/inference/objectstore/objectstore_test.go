package objectstore

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitURI(t *testing.T) {
	cases := []struct {
		uri        string
		scheme     string
		bucket     string
		key        string
		wantErr    bool
	}{
		{uri: "s3://my-bucket/path/to/object.jsonl", scheme: "s3", bucket: "my-bucket", key: "path/to/object.jsonl"},
		{uri: "gs://my-bucket/a/b/c", scheme: "gs", bucket: "my-bucket", key: "a/b/c"},
		{uri: "not-a-uri", wantErr: true},
		{uri: "s3://bucket-only", wantErr: true},
		{uri: "s3:///missing-bucket", wantErr: true},
	}

	for _, tt := range cases {
		t.Run(tt.uri, func(t *testing.T) {
			scheme, bucket, key, err := splitURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.scheme, scheme)
			require.Equal(t, tt.bucket, bucket)
			require.Equal(t, tt.key, key)
		})
	}
}

func TestMakeStoreRejectsUnknownScheme(t *testing.T) {
	_, _, err := MakeStore(context.Background(), "ftp://bucket/key", nil, nil)
	require.Error(t, err)
}

func TestStaticHeaderTransportInjectsHeader(t *testing.T) {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer tok")

	var captured *http.Request
	transport := staticHeaderTransport{
		headers: headers,
		next: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			captured = req
			return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
		}),
	}

	req, err := http.NewRequest(http.MethodGet, "https://storage.googleapis.com/", nil)
	require.NoError(t, err)

	_, err = transport.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, "Bearer tok", captured.Header.Get("Authorization"))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
