package fitreview

import "errors"

// Sentinel kinds for fit-review errors.
var (
	ErrMalformedOutput = errors.New("fit review output is not valid JSON")
	ErrInvalidOutput   = errors.New("fit review output violates the contract")
	ErrMissingIDs      = errors.New("fit review input has no application id")
)
