package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a gateway failure into the taxonomy every adapter and
// the sink must use, matching the disposition table in SPEC_FULL.md §16.
type ErrorKind string

const (
	// ErrorKindInvalidRequest indicates the caller-provided request failed
	// local validation (empty message list, non-object tool arguments,
	// unknown content type). No vendor call is made; no sink write occurs.
	ErrorKindInvalidRequest ErrorKind = "invalid_request"

	// ErrorKindInferenceClient indicates the vendor returned a 4xx, or a
	// local SDK builder failed before send.
	ErrorKindInferenceClient ErrorKind = "inference_client"

	// ErrorKindInferenceServer indicates the vendor returned a 5xx, the
	// stream was malformed, or required usage was missing from a terminal
	// unary response.
	ErrorKindInferenceServer ErrorKind = "inference_server"

	// ErrorKindAPIKeyMissing indicates a dynamic credential key was
	// requested but not supplied.
	ErrorKindAPIKeyMissing ErrorKind = "api_key_missing"

	// ErrorKindGCPCredentials indicates a credential parsing or signing
	// failure on the Vertex path.
	ErrorKindGCPCredentials ErrorKind = "gcp_credentials"

	// ErrorKindUnsupportedBatch indicates the adapter has no batch
	// operations.
	ErrorKindUnsupportedBatch ErrorKind = "unsupported_batch"

	// ErrorKindUnsupportedContentBlock indicates the adapter cannot
	// render an Unknown block or an unsupported file type.
	ErrorKindUnsupportedContentBlock ErrorKind = "unsupported_content_block"

	// ErrorKindTypeConversion indicates an internal translation failure.
	// Considered a bug.
	ErrorKindTypeConversion ErrorKind = "type_conversion"

	// ErrorKindSerialization indicates a marshal/unmarshal failure on
	// otherwise-valid data. Considered a bug.
	ErrorKindSerialization ErrorKind = "serialization"

	// ErrorKindInternal indicates an invariant violation.
	ErrorKindInternal ErrorKind = "internal"
)

// HTTPStatusClass returns 4 or 5, identifying whether callers should surface
// this error as a 4xx or 5xx, per SPEC_FULL.md §16.
func (k ErrorKind) HTTPStatusClass() int {
	switch k {
	case ErrorKindInvalidRequest, ErrorKindInferenceClient, ErrorKindAPIKeyMissing,
		ErrorKindUnsupportedBatch, ErrorKindUnsupportedContentBlock:
		return 4
	default:
		return 5
	}
}

// GatewayError is a structured failure crossing adapter/sink/gateway package
// boundaries, generalised from the teacher's ProviderError.
type GatewayError struct {
	provider  string
	operation string
	kind      ErrorKind
	httpCode  int
	message   string
	requestID string
	retryable bool
	cause     error
}

// NewGatewayError constructs a GatewayError. provider and kind are required.
func NewGatewayError(provider, operation string, kind ErrorKind, message string, cause error) *GatewayError {
	if provider == "" {
		panic("types: provider is required")
	}
	if kind == "" {
		panic("types: error kind is required")
	}
	return &GatewayError{provider: provider, operation: operation, kind: kind, message: message, cause: cause}
}

// WithHTTPCode attaches the vendor HTTP status code, when known.
func (e *GatewayError) WithHTTPCode(code int) *GatewayError { e.httpCode = code; return e }

// WithRequestID attaches the vendor request id, when known.
func (e *GatewayError) WithRequestID(id string) *GatewayError { e.requestID = id; return e }

// WithRetryable marks whether retrying without changing the request might
// succeed.
func (e *GatewayError) WithRetryable(v bool) *GatewayError { e.retryable = v; return e }

// Provider returns the originating provider's name (e.g. "bedrock").
func (e *GatewayError) Provider() string { return e.provider }

// Operation returns the provider operation name, when known.
func (e *GatewayError) Operation() string { return e.operation }

// Kind returns the coarse-grained error classification.
func (e *GatewayError) Kind() ErrorKind { return e.kind }

// HTTPCode returns the vendor HTTP status code, or 0 if unknown.
func (e *GatewayError) HTTPCode() int { return e.httpCode }

// RequestID returns the vendor request id, or "" if unknown.
func (e *GatewayError) RequestID() string { return e.requestID }

// Retryable reports whether retrying the call unchanged might succeed.
func (e *GatewayError) Retryable() bool { return e.retryable }

func (e *GatewayError) Error() string {
	op := e.operation
	if op == "" {
		op = "request"
	}
	msg := e.message
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	if msg == "" {
		msg = "gateway error"
	}
	return fmt.Sprintf("%s %s(%s): %s", e.provider, e.kind, op, msg)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As chains.
func (e *GatewayError) Unwrap() error { return e.cause }

// AsGatewayError returns the first GatewayError in err's chain, if any.
func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}
