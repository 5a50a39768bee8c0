package creds

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"goa.design/clue/log"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// selfSignedClaims is the minimal claim set Google's audience-scoped
// self-signed JWT auth expects: iss and sub both carry the service
// account's client_email, aud carries the callee's URL/audience.
type selfSignedClaims struct {
	jwt.RegisteredClaims
}

// GetAuthHeaders resolves the Authorization header (and, for Dynamic
// credentials, the header for a named caller-supplied key) needed to call
// a Vertex-style audience-scoped endpoint. dynamicKeys is only consulted by
// Dynamic credentials; it is ignored otherwise.
func (c *Credentials) GetAuthHeaders(ctx context.Context, audience string, dynamicKeys map[string]string) (http.Header, error) {
	switch c.kind {
	case KindNone:
		return http.Header{}, nil

	case KindStatic:
		if c.gcpSA == nil {
			return nil, internalErr("get_auth_headers", "static credentials were configured for AWS, not GCP auth headers")
		}
		token, err := c.signAudienceJWT(audience)
		if err != nil {
			return nil, err
		}
		h := http.Header{}
		h.Set("Authorization", "Bearer "+token)
		return h, nil

	case KindDynamic:
		key, ok := dynamicKeys[c.dynamicKeyName]
		if !ok || key == "" {
			return nil, types.NewGatewayError("creds", "get_auth_headers", types.ErrorKindAPIKeyMissing,
				"dynamic credential key \""+c.dynamicKeyName+"\" was not supplied", nil)
		}
		h := http.Header{}
		h.Set("Authorization", "Bearer "+key)
		return h, nil

	case KindSDK:
		return c.sdkGoogleAuthHeaders(ctx, audience)

	case KindWithFallback:
		h, err := c.fallbackDefault.GetAuthHeaders(ctx, audience, dynamicKeys)
		if err == nil {
			return h, nil
		}
		log.Warn(ctx, log.KV{K: "msg", V: "credential resolver: default failed, trying fallback"}, log.KV{K: "error", V: err.Error()})
		return c.fallbackAlt.GetAuthHeaders(ctx, audience, dynamicKeys)

	default:
		return nil, internalErr("get_auth_headers", "unknown credential kind")
	}
}

// signAudienceJWT mints a self-signed RS256 JWT scoped to audience, the
// auth flow Google's client libraries use to call audience-specific
// endpoints (such as a Vertex regional endpoint) without an OAuth token
// exchange round trip.
func (c *Credentials) signAudienceJWT(audience string) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(c.gcpSA.PrivateKey))
	if err != nil {
		return "", types.NewGatewayError("vertex", "sign_jwt", types.ErrorKindGCPCredentials,
			"private_key is not a valid RSA PEM block", err)
	}

	now := time.Now()
	claims := selfSignedClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.gcpSA.ClientEmail,
			Subject:   c.gcpSA.ClientEmail,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = c.gcpSA.PrivateKeyID

	signed, err := token.SignedString(key)
	if err != nil {
		return "", types.NewGatewayError("vertex", "sign_jwt", types.ErrorKindGCPCredentials,
			"failed to sign audience JWT", err)
	}
	return signed, nil
}
