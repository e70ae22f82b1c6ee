// Package retry wraps individual upstream calls with bounded, linearly
// backed-off retries.
//
// After the n-th failed attempt the wrapper waits n*BaseDelay before trying
// again, so with MaxAttempts=4 and BaseDelay=2s the waits are 2s, 4s and 6s.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bull/filmsearch/internal/metrics"
)

const (
	DefaultMaxAttempts = 4
	DefaultBaseDelay   = 2 * time.Second
)

// ErrRetriesExhausted matches every *ExhaustedError.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ExhaustedError reports an operation that failed on every attempt.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error // last error returned by the operation
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempts failed: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

func (e *ExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }

// Policy bounds a retried call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *slog.Logger
}

// DefaultPolicy returns four attempts with a two second linear step.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

// Permanent marks err as not worth retrying. Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do calls fn until it succeeds, returns a permanent error, ctx is done, or
// MaxAttempts calls have failed. On exhaustion the result is an
// *ExhaustedError wrapping the last failure.
func Do[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attempts := 0
	permanent := false
	var lastErr error
	operation := func() (T, error) {
		attempts++
		v, err := fn(ctx)
		if err != nil {
			lastErr = err
			var perm *backoff.PermanentError
			if errors.As(err, &perm) {
				permanent = true
			}
		}
		return v, err
	}

	notify := func(err error, delay time.Duration) {
		metrics.UpstreamRetries.WithLabelValues(op).Inc()
		logger.Warn("Retrying upstream call",
			"op", op,
			"attempt", attempts,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", err,
		)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{step: p.BaseDelay}, uint64(maxAttempts-1)),
		ctx,
	)

	v, err := backoff.RetryNotifyWithData(operation, b, notify)
	if err == nil {
		return v, nil
	}

	var zero T
	if permanent || ctx.Err() != nil {
		return zero, err
	}

	metrics.UpstreamExhausted.WithLabelValues(op).Inc()
	logger.Error("Upstream call failed after retries", "op", op, "attempts", attempts, "error", lastErr)
	return zero, &ExhaustedError{Op: op, Attempts: attempts, Err: lastErr}
}

// linearBackOff waits step, 2*step, 3*step, ... between attempts.
type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.step
}

func (b *linearBackOff) Reset() { b.attempt = 0 }
