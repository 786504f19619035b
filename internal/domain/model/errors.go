package model

import "errors"

// Sentinel kinds for domain model errors.
var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrNotFound       = errors.New("not found")
)
