package ai

import "errors"

// Sentinel kinds for AI adapter errors.
var (
	ErrMissingAPIKey       = errors.New("ai api key is not configured")
	ErrEmptyResponse       = errors.New("ai response has no content")
	ErrCircuitOpen         = errors.New("ai circuit breaker open")
	ErrUnsupportedProvider = errors.New("unsupported ai provider")
)
