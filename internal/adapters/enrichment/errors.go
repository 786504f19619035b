package enrichment

import "errors"

// Sentinel kinds for enrichment errors.
var (
	ErrUpstreamStatus   = errors.New("upstream returned non-success status")
	ErrUpstreamResponse = errors.New("upstream response could not be decoded")
	ErrNotConfigured    = errors.New("upstream base url is not configured")
)
