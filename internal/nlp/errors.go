package nlp

import "errors"

var (
	// ErrMalformedResponse marks model output that failed the parse boundary.
	// Retrying the same prompt is not expected to help.
	ErrMalformedResponse = errors.New("malformed model response")
	ErrEmptyResponse     = errors.New("empty model response")
)
