package bedrock

import (
	"encoding/json"
	"errors"

	"github.com/aws/smithy-go"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// decodeExtra unmarshals raw JSON into out, returning a GatewayError rather
// than the bare encoding/json error so callers can surface a consistent
// kind.
func decodeExtra(raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return types.NewGatewayError(ProviderName, "decode_extra", types.ErrorKindTypeConversion,
			"extra body is not valid JSON", err)
	}
	return nil
}

// throttlingErrorCodes lists the Bedrock API error codes that mean the
// caller should back off and retry, grounded on the teacher's isRateLimited
// check in features/model/bedrock/client.go.
var throttlingErrorCodes = map[string]bool{
	"ThrottlingException":       true,
	"TooManyRequestsException":  true,
	"ServiceUnavailableException": true,
	"ModelTimeoutException":     true,
}

// translateConverseError maps an error returned by the AWS SDK's Converse
// or ConverseStream call into a *types.GatewayError, classifying smithy API
// errors by code into client vs. server kinds so callers can decide whether
// to retry.
func translateConverseError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		kind := types.ErrorKindInferenceServer
		retryable := throttlingErrorCodes[apiErr.ErrorCode()]
		if !retryable && apiErr.ErrorFault() == smithy.FaultClient {
			kind = types.ErrorKindInferenceClient
		}
		return types.NewGatewayError(ProviderName, "converse", kind, apiErr.ErrorMessage(), err).
			WithRetryable(retryable)
	}

	return types.NewGatewayError(ProviderName, "converse", types.ErrorKindInferenceServer,
		"converse call failed", err)
}
