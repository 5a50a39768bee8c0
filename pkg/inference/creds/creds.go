// Package creds implements the gateway's credential resolver (C2): a small
// sum type with a Static (service-account or AWS key) branch, a Dynamic
// (per-call key) branch, an SDK-delegated branch, a None branch for
// no-credential providers, and a WithFallback wrapper that retries a second
// resolver on any failure of the first. This is the one place in the
// gateway where a failed operation is silently retried (spec.md §7's stated
// exception) — every other package treats retries as the caller's concern.
package creds

import (
	"encoding/json"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// Kind identifies which credential-resolution strategy a Credentials value
// implements.
type Kind string

const (
	KindStatic       Kind = "static"
	KindDynamic      Kind = "dynamic"
	KindSDK          Kind = "sdk"
	KindNone         Kind = "none"
	KindWithFallback Kind = "with_fallback"
)

// gcpServiceAccount is the subset of a GCP service-account JSON key file
// needed to mint a self-signed audience JWT.
type gcpServiceAccount struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey  string `json:"private_key"`
	ClientEmail string `json:"client_email"`
}

// Credentials is a provider-agnostic credential resolver. The zero value is
// not valid; use one of the New* constructors.
type Credentials struct {
	kind Kind

	// Static/GCP
	gcpSA *gcpServiceAccount

	// Static/AWS
	awsAccessKeyID     string
	awsSecretAccessKey string
	awsSessionToken    string

	// Static/AWS and SDK both need a region for GetBedrockConfig.
	awsRegion string

	// Dynamic
	dynamicKeyName string

	// WithFallback
	fallbackDefault *Credentials
	fallbackAlt     *Credentials
}

// NewStaticGCP parses a GCP service-account JSON key and returns Static
// credentials that sign a self-signed RS256 audience JWT on each
// GetAuthHeaders call, grounded on the HS256 signing shape of
// haasonsaas-nexus/internal/auth/jwt.go generalized to RS256.
func NewStaticGCP(serviceAccountJSON []byte) (*Credentials, error) {
	var sa gcpServiceAccount
	if err := json.Unmarshal(serviceAccountJSON, &sa); err != nil {
		return nil, types.NewGatewayError("vertex", "parse_service_account", types.ErrorKindGCPCredentials,
			"service account JSON is malformed", err)
	}
	if sa.PrivateKey == "" || sa.ClientEmail == "" || sa.PrivateKeyID == "" {
		return nil, types.NewGatewayError("vertex", "parse_service_account", types.ErrorKindGCPCredentials,
			"service account JSON is missing private_key, private_key_id, or client_email", nil)
	}
	return &Credentials{kind: KindStatic, gcpSA: &sa}, nil
}

// NewStaticAWS returns Static credentials carrying a fixed AWS access key
// pair, for GetBedrockConfig.
func NewStaticAWS(accessKeyID, secretAccessKey, sessionToken, region string) *Credentials {
	return &Credentials{
		kind:               KindStatic,
		awsAccessKeyID:     accessKeyID,
		awsSecretAccessKey: secretAccessKey,
		awsSessionToken:    sessionToken,
		awsRegion:          region,
	}
}

// NewDynamic returns Dynamic credentials that resolve keyName against the
// per-call dynamicKeys map passed to GetAuthHeaders.
func NewDynamic(keyName string) *Credentials {
	return &Credentials{kind: KindDynamic, dynamicKeyName: keyName}
}

// NewSDK returns SDK-delegated credentials: GetBedrockConfig defers to
// aws-sdk-go-v2's default credential chain, and GetAuthHeaders defers to
// Google Application Default Credentials.
func NewSDK(region string) *Credentials {
	return &Credentials{kind: KindSDK, awsRegion: region}
}

// NewNone returns credentials for providers that require no authentication
// (e.g. a local model server).
func NewNone() *Credentials {
	return &Credentials{kind: KindNone}
}

// NewWithFallback wraps two resolvers: Default is tried first; on any
// error, the failure is logged at warn level and Fallback is tried in its
// place, with the fallback's own error (if any) propagated unchanged.
func NewWithFallback(def, fallback *Credentials) *Credentials {
	return &Credentials{
		kind:            KindWithFallback,
		fallbackDefault: def,
		fallbackAlt:     fallback,
	}
}

// Kind reports which resolution strategy c implements.
func (c *Credentials) Kind() Kind { return c.kind }

func internalErr(operation, msg string) error {
	return types.NewGatewayError("creds", operation, types.ErrorKindInternal, msg, nil)
}
