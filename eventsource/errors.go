package eventsource

import (
	"errors"
	"fmt"
)

var (
	// ErrNilBody is reported when a successful response carries no body.
	ErrNilBody = errors.New("eventsource: response body is nil")
	// ErrStreamEnded is reported when the server closes the stream and the
	// Source was created WithStreamEndError.
	ErrStreamEnded = errors.New("eventsource: stream ended")
	// ErrIdleTimeout is reported when no bytes arrive within the configured
	// idle timeout.
	ErrIdleTimeout = errors.New("eventsource: idle timeout")

	// errClosed is the cancellation cause used by Close. Failures carrying it
	// are intentional and never surfaced.
	errClosed = errors.New("eventsource: closed")
)

// HTTPStatusError is reported when the server answers with a non-2xx status.
type HTTPStatusError struct {
	StatusCode int
	Status     string
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("eventsource: unexpected HTTP status %d", e.StatusCode)
}
