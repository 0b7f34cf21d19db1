// Package apierr defines the error taxonomy shared across stages, the
// orchestrator, and the persistence layer. Every collaborator that can
// fail classifies its error into one of the Kinds below so the
// orchestrator can decide whether to retry, fail the workflow, or
// surface a business-rule outcome without retrying.
package apierr

import "fmt"

type Kind string

const (
	KindTransient  Kind = "transient"  // network blip, timeout, 5xx — retry with backoff
	KindConflict   Kind = "conflict"   // unique constraint, optimistic lock — retry outside tx
	KindValidation Kind = "validation" // malformed input — do not retry, surface to caller
	KindBusiness   Kind = "business"   // rule violation (e.g. totals mismatch) — do not retry
	KindFatal      Kind = "fatal"      // programmer error / invariant broken — do not retry
)

type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("apierr(%s)", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

// Retryable reports whether an error of this kind is ever eligible for
// automatic retry by the orchestrator or queue substrate.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Kind == KindTransient || e.Kind == KindConflict
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to KindTransient for unclassified errors so
// unexpected failures still get retried rather than silently dropped.
func KindOf(err error) Kind {
	var ae *Error
	if As(err, &ae) {
		return ae.Kind
	}
	return KindTransient
}

// As is a thin indirection over errors.As kept local so this package
// doesn't need to import "errors" just for one call site in KindOf.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
