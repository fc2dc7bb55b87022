package match

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures so the API layer can map them to
// responses without string matching.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindRateLimited     Kind = "rate_limited"
	KindUpstreamTimeout Kind = "upstream_timeout"
	KindUpstreamFailure Kind = "upstream_failure"
	KindNotFound        Kind = "not_found"
	KindInternal        Kind = "internal"
)

// Error is a stage-tagged pipeline error.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind and the pipeline stage it occurred in.
func E(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// Validationf builds a validation error from a format string.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the classification from err, defaulting to internal.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindInternal
}
