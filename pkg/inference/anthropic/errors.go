package anthropic

import (
	"errors"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// retryableStatusCodes mirrors isRetryableError's status-code set: rate
// limiting, overload, and server faults are worth a retry, anything else
// the caller sent wrong is not.
var retryableStatusCodes = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	529: true,
}

// translateError maps an error returned by the Anthropic SDK into a
// *types.GatewayError, classifying by HTTP status the way wrapError does,
// pulling the request ID out of *anthropic.Error the same way.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		kind := types.ErrorKindInferenceServer
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != 429 {
			kind = types.ErrorKindInferenceClient
		}
		ge := types.NewGatewayError(ProviderName, "messages", kind, apiErr.Error(), err).
			WithHTTPCode(apiErr.StatusCode).
			WithRetryable(retryableStatusCodes[apiErr.StatusCode])
		if reqID := apiErr.RequestID; reqID != "" {
			ge = ge.WithRequestID(reqID)
		}
		return ge
	}

	return types.NewGatewayError(ProviderName, "messages", types.ErrorKindInferenceServer,
		"messages call failed", err)
}
