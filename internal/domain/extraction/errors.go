package extraction

import "errors"

// Sentinel kinds for extraction errors.
var (
	ErrMalformedOutput = errors.New("extraction output is not a JSON object")
	ErrEmptyText       = errors.New("no résumé text to extract from")
)
