package shared

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTransient marks failures worth retrying: rate limits, timeouts,
	// unreachable services.
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks failures that will not go away on retry, such as
	// bad credentials or a rejected request.
	ErrPermanent = errors.New("permanent failure")
	// ErrRetriesExhausted is returned once the retry window for a transient
	// failure has run out.
	ErrRetriesExhausted = errors.New("retry window expired")

	ErrTrackNotFound     = errors.New("track not found in library")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrLibraryClosed     = errors.New("library database is closed")
)

// TransientError is a retryable failure, optionally carrying the delay the
// server asked for.
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %s)", e.Err, e.RetryAfter)
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() []error {
	return []error{ErrTransient, e.Err}
}

// Transient wraps err as a retryable failure.
func Transient(err error, retryAfter time.Duration) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err, RetryAfter: retryAfter}
}

// Permanent wraps err so that errors.Is(err, ErrPermanent) holds.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || IsRetryableHTTPError(err)
}

// RetryAfter returns the server suggested delay carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var te *TransientError
	if errors.As(err, &te) && te.RetryAfter > 0 {
		return te.RetryAfter, true
	}
	return 0, false
}
