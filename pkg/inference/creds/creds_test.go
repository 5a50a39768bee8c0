package creds

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

func testServiceAccountJSON(t *testing.T) ([]byte, *rsa.PublicKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	sa := gcpServiceAccount{
		Type:         "service_account",
		ProjectID:    "test-project",
		PrivateKeyID: "kid-123",
		PrivateKey:   string(pemBytes),
		ClientEmail:  "svc@test-project.iam.gserviceaccount.com",
	}
	raw, err := json.Marshal(sa)
	require.NoError(t, err)
	return raw, &key.PublicKey
}

func TestStaticGCPSignsVerifiableAudienceJWT(t *testing.T) {
	saJSON, pub := testServiceAccountJSON(t)
	c, err := NewStaticGCP(saJSON)
	require.NoError(t, err)

	headers, err := c.GetAuthHeaders(context.Background(), "https://vertex.example/v1/models", nil)
	require.NoError(t, err)

	auth := headers.Get("Authorization")
	require.Contains(t, auth, "Bearer ")
	tokenStr := auth[len("Bearer "):]

	token, err := jwt.ParseWithClaims(tokenStr, &selfSignedClaims{}, func(t *jwt.Token) (any, error) {
		return pub, nil
	})
	require.NoError(t, err)
	claims := token.Claims.(*selfSignedClaims)
	require.Equal(t, "svc@test-project.iam.gserviceaccount.com", claims.Issuer)
	require.Equal(t, "kid-123", token.Header["kid"])
}

func TestNewStaticGCPRejectsMalformedServiceAccount(t *testing.T) {
	_, err := NewStaticGCP([]byte(`{"client_email":"x@y.com"}`))
	require.Error(t, err)
}

func TestDynamicMissingKeyReturnsAPIKeyMissing(t *testing.T) {
	c := NewDynamic("openai")
	_, err := c.GetAuthHeaders(context.Background(), "", map[string]string{"anthropic": "sk-other"})
	require.Error(t, err)

	ge, ok := types.AsGatewayError(err)
	require.True(t, ok)
	require.Equal(t, "api_key_missing", string(ge.Kind()))
}

func TestDynamicResolvesSuppliedKey(t *testing.T) {
	c := NewDynamic("openai")
	headers, err := c.GetAuthHeaders(context.Background(), "", map[string]string{"openai": "sk-test"})
	require.NoError(t, err)
	require.Equal(t, "Bearer sk-test", headers.Get("Authorization"))
}

func TestWithFallbackTriesFallbackOnDefaultFailure(t *testing.T) {
	failing := NewDynamic("missing")
	working := NewDynamic("present")

	c := NewWithFallback(failing, working)
	headers, err := c.GetAuthHeaders(context.Background(), "", map[string]string{"present": "sk-fallback"})
	require.NoError(t, err)
	require.Equal(t, "Bearer sk-fallback", headers.Get("Authorization"))
}

func TestWithFallbackPropagatesFallbackErrorUnchanged(t *testing.T) {
	failing1 := NewDynamic("missing1")
	failing2 := NewDynamic("missing2")

	c := NewWithFallback(failing1, failing2)
	_, err := c.GetAuthHeaders(context.Background(), "", map[string]string{})
	require.Error(t, err)

	ge, ok := types.AsGatewayError(err)
	require.True(t, ok)
	require.Equal(t, "api_key_missing", string(ge.Kind()))
}

func TestNoneReturnsEmptyHeaders(t *testing.T) {
	c := NewNone()
	headers, err := c.GetAuthHeaders(context.Background(), "", nil)
	require.NoError(t, err)
	require.Empty(t, headers)
}
