// Package diffuserr defines the typed error kinds that cross the pipeline's
// Run/RunBatch boundary, matching the taxonomy in the core design.
package diffuserr

import (
	"errors"
	"fmt"
)

// Kind classifies an error raised while preparing or running a generation.
type Kind string

const (
	ModelLoadFailed      Kind = "model_load_failed"
	InferenceFailed      Kind = "inference_failed"
	ShapeMismatch        Kind = "shape_mismatch"
	UnsupportedDiffuser  Kind = "unsupported_diffuser"
	UnsupportedScheduler Kind = "unsupported_scheduler"
	InvalidOptions       Kind = "invalid_options"
	Cancelled            Kind = "cancelled"
	ResourceExhausted    Kind = "resource_exhausted"
)

// Error wraps an inner error with a Kind so callers can branch on the
// failure class without parsing message text.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}

	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an *Error of the given kind wrapping err.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf creates an *Error of the given kind from a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}

	return false
}

// KindOf extracts the Kind from err, defaulting to InferenceFailed when err
// is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return InferenceFailed
}
