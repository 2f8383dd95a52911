package invoice

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPayload is returned when a backend response carries no invoice object.
	ErrEmptyPayload = errors.New("empty invoice payload")

	// ErrUnknownProducer is returned for a producer without an alias table.
	ErrUnknownProducer = errors.New("unknown invoice producer")

	// ErrMalformedPayload is returned when the payload is not a JSON object.
	ErrMalformedPayload = errors.New("malformed invoice payload")
)

// NormalizeError wraps errors with the producer whose payload failed.
type NormalizeError struct {
	// Op is the operation that failed (e.g., "Normalize", "Decode").
	Op string

	// Producer is the backend endpoint family that produced the payload.
	Producer Producer

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *NormalizeError) Error() string {
	return fmt.Sprintf("invoice: %s failed (producer: %s): %v", e.Op, e.Producer, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *NormalizeError) Unwrap() error {
	return e.Err
}

// NewNormalizeError creates a new NormalizeError.
func NewNormalizeError(op string, producer Producer, err error) *NormalizeError {
	return &NormalizeError{
		Op:       op,
		Producer: producer,
		Err:      err,
	}
}
