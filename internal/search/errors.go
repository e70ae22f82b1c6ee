package search

import (
	"errors"
	"fmt"

	"github.com/bull/filmsearch/internal/retry"
)

var (
	// ErrEmptyQuery means the query carried neither named entities nor
	// semantic intent, so there is nothing to search for.
	ErrEmptyQuery = errors.New("query has no searchable content")

	// ErrUpstreamUnavailable matches every *UpstreamError.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// UpstreamError reports a pipeline stage whose dependency failed after retries
// or returned output that could not be parsed.
type UpstreamError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s unavailable after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstreamUnavailable }

func upstream(stage string, err error) error {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	attempts := 1
	var ex *retry.ExhaustedError
	if errors.As(err, &ex) {
		attempts = ex.Attempts
	}
	return &UpstreamError{Stage: stage, Attempts: attempts, Err: err}
}
