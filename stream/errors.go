package stream

import (
	"errors"
	"fmt"
)

// ErrInvalidBaseURL is returned by NewClient when the base URL is not an
// absolute http(s) URL.
var ErrInvalidBaseURL = errors.New("stream: base URL must be an absolute http or https URL")

// DecodeError reports a payload that could not be decoded. It never tears
// down the stream.
type DecodeError struct {
	Payload string
	Err     error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("stream: decode payload: %v", e.Err)
}

// Unwrap implements the unwrap interface for error chains.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
