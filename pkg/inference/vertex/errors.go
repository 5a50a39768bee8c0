package vertex

import (
	"net/http"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// translateHTTPError classifies a failed generateContent/streamGenerateContent
// call by status code, grounded on handle_gcp_vertex_gemini_error: 401, 400,
// 413, and 429 are the caller's fault (InferenceClient); everything else
// (404, 403, 500, 529 Overloaded, ...) is treated uniformly as a server-side
// failure, matching the original's single catch-all arm.
func translateHTTPError(statusCode int, body []byte) error {
	message := string(body)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusTooManyRequests:
		return types.NewGatewayError(ProviderName, "generate_content", types.ErrorKindInferenceClient, message, nil).
			WithHTTPCode(statusCode).
			WithRetryable(statusCode == http.StatusTooManyRequests)
	default:
		return types.NewGatewayError(ProviderName, "generate_content", types.ErrorKindInferenceServer, message, nil).
			WithHTTPCode(statusCode).
			WithRetryable(true)
	}
}
