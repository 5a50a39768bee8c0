package creds

import (
	"context"
	"net/http"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/aws"
	"golang.org/x/oauth2/google"

	"goa.design/clue/log"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// GetBedrockConfig returns a region-scoped aws.Config for the Bedrock
// adapter. Static credentials use a fixed access-key pair; SDK credentials
// defer entirely to aws-sdk-go-v2's default chain (environment, shared
// config file, EC2/ECS metadata, ...), grounded on the
// config.LoadDefaultConfig usage in
// haasonsaas-nexus/internal/artifacts/s3_store.go.
func (c *Credentials) GetBedrockConfig(ctx context.Context) (aws.Config, error) {
	switch c.kind {
	case KindStatic:
		if c.awsAccessKeyID == "" {
			return aws.Config{}, internalErr("get_bedrock_config", "static credentials were configured for GCP, not AWS")
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(c.awsRegion),
			awsconfig.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
				c.awsAccessKeyID, c.awsSecretAccessKey, c.awsSessionToken)),
		)
		if err != nil {
			return aws.Config{}, types.NewGatewayError("bedrock", "get_bedrock_config", types.ErrorKindInternal,
				"failed to build static AWS config", err)
		}
		return cfg, nil

	case KindSDK:
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.awsRegion))
		if err != nil {
			return aws.Config{}, types.NewGatewayError("bedrock", "get_bedrock_config", types.ErrorKindInternal,
				"failed to load default AWS config", err)
		}
		return cfg, nil

	case KindNone:
		return aws.Config{}, internalErr("get_bedrock_config", "None credentials cannot authenticate a Bedrock call")

	case KindWithFallback:
		cfg, err := c.fallbackDefault.GetBedrockConfig(ctx)
		if err == nil {
			return cfg, nil
		}
		log.Warn(ctx, log.KV{K: "msg", V: "credential resolver: default failed, trying fallback"}, log.KV{K: "error", V: err.Error()})
		return c.fallbackAlt.GetBedrockConfig(ctx)

	default:
		return aws.Config{}, internalErr("get_bedrock_config", "unknown credential kind")
	}
}

// sdkGoogleAuthHeaders delegates to Google Application Default Credentials
// for an OAuth2 access token scoped to the cloud-platform API, used by the
// SDK-delegated branch of GetAuthHeaders.
func (c *Credentials) sdkGoogleAuthHeaders(ctx context.Context, _ string) (http.Header, error) {
	const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
	creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
	if err != nil {
		return nil, types.NewGatewayError("vertex", "get_auth_headers", types.ErrorKindGCPCredentials,
			"failed to locate application default credentials", err)
	}
	token, err := creds.TokenSource.Token()
	if err != nil {
		return nil, types.NewGatewayError("vertex", "get_auth_headers", types.ErrorKindGCPCredentials,
			"failed to mint access token from default credentials", err)
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token.AccessToken)
	return h, nil
}
