package gateway

import "errors"

// ErrNoAdapters indicates NewServer was called without registering any
// provider adapter via WithAdapter.
var ErrNoAdapters = errors.New("inference gateway: at least one adapter is required")

// ErrUnknownProvider indicates a request's ModelProvider does not match
// any adapter registered with the Server.
var ErrUnknownProvider = errors.New("inference gateway: unknown model provider")
