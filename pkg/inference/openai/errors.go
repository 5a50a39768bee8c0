package openai

import (
	"errors"

	"github.com/openai/openai-go"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// translateError maps an error returned by the OpenAI SDK into a
// *types.GatewayError, classifying by HTTP status the way
// bedrock/errors.go classifies smithy API errors by fault.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		kind := types.ErrorKindInferenceServer
		retryable := apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != 429 {
			kind = types.ErrorKindInferenceClient
		}
		return types.NewGatewayError(ProviderName, "chat_completion", kind, apiErr.Error(), err).
			WithHTTPCode(apiErr.StatusCode).
			WithRetryable(retryable)
	}

	return types.NewGatewayError(ProviderName, "chat_completion", types.ErrorKindInferenceServer,
		"chat completion call failed", err)
}
