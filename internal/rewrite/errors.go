package rewrite

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySelection is returned when no text node was selected.
	ErrEmptySelection = errors.New("select at least one element to edit")

	// ErrEmptyInstruction is returned when the edit instruction is blank.
	ErrEmptyInstruction = errors.New("describe how the selected elements should change")

	// ErrUnknownNode is returned for ids that are not part of the document.
	ErrUnknownNode = errors.New("unknown text node")

	// ErrEmptyRewrite is returned when a replacement text is blank.
	ErrEmptyRewrite = errors.New("empty rewrite")

	// ErrNoCompletion is returned when the completion service answers with
	// no choices.
	ErrNoCompletion = errors.New("completion service returned no answer")
)

// RewriteError wraps a failed rewrite with the node it was for.
type RewriteError struct {
	// Op is the operation that failed (e.g., "Apply", "Rewrite").
	Op string

	// Err is the underlying error.
	Err error

	// Details names the node or request that failed.
	Details string
}

// Error implements the error interface.
func (e *RewriteError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("rewrite: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("rewrite: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *RewriteError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors.
func (e *RewriteError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRewriteError creates a new RewriteError.
func NewRewriteError(op string, err error, details string) *RewriteError {
	return &RewriteError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}
