// Package errors provides the closed error taxonomy every Strata accessor
// maps its native failures into, plus retryability classification and
// context chaining.
//
// Backends translate their own failure vocabulary (HTTP statuses, SDK error
// codes, errno values) into a Kind at the accessor boundary; layers above
// only ever see taxonomy errors. Layers may wrap an error with added context
// but must preserve its kind and retryability unless reclassification is the
// layer's explicit purpose.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind is one of the closed set of error kinds.
type Kind string

const (
	// KindNotFound: the path does not exist.
	KindNotFound Kind = "NotFound"
	// KindAlreadyExists: the destination exists and overwrite was not allowed.
	KindAlreadyExists Kind = "AlreadyExists"
	// KindPermissionDenied: the backend rejected the caller's credentials or ACL.
	KindPermissionDenied Kind = "PermissionDenied"
	// KindUnsupported: the operation is not advertised by the accessor's
	// capability set.
	KindUnsupported Kind = "Unsupported"
	// KindInvalidArgument: the request arguments are malformed.
	KindInvalidArgument Kind = "InvalidArgument"
	// KindRateLimited: the backend asked the caller to slow down.
	KindRateLimited Kind = "RateLimited"
	// KindServiceUnavailable: the backend is temporarily unable to serve.
	KindServiceUnavailable Kind = "ServiceUnavailable"
	// KindNetworkError: the request failed before a backend verdict arrived.
	KindNetworkError Kind = "NetworkError"
	// KindRangeNotSatisfiable: the requested byte range is outside the object.
	KindRangeNotSatisfiable Kind = "RangeNotSatisfiable"
	// KindAlreadyClosed: a writer was reused after Close or Abort.
	KindAlreadyClosed Kind = "AlreadyClosed"
	// KindCancelled: the caller's context was cancelled or timed out.
	KindCancelled Kind = "Cancelled"
	// KindUnexpected: catch-all for unmapped backend faults.
	KindUnexpected Kind = "Unexpected"
)

// RetryableByDefault returns the fixed retryability classification of a
// kind. Only transient backend conditions are retryable; Unexpected is
// conservatively non-retryable to avoid masking bugs.
func RetryableByDefault(kind Kind) bool {
	switch kind {
	case KindRateLimited, KindServiceUnavailable, KindNetworkError:
		return true
	default:
		return false
	}
}

// Error is the structured error carried across the accessor boundary. It is
// constructed per call and treated as immutable once it leaves the
// constructor chain; layers add context via the With methods while the error
// is still theirs, and must not change Kind or Retryable afterwards.
type Error struct {
	// Kind is the taxonomy classification.
	Kind Kind
	// Message is the human-readable description.
	Message string

	// Scheme identifies the source backend, e.g. "s3".
	Scheme string
	// Operation is the accessor operation that failed, e.g. "read".
	Operation string
	// Path is the object path involved, when there is one.
	Path string

	// Retryable mirrors the kind's default classification unless a layer
	// explicitly reclassified.
	Retryable bool

	// Attempts is set by the retry layer when it exhausts its budget.
	Attempts int

	// Context holds extra key/value annotations added by layers.
	Context map[string]string

	// Cause is the wrapped lower-level error, if any.
	Cause error
}

// New creates an Error of the given kind with the kind's default
// retryability.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Retryable: RetryableByDefault(kind),
	}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Error implements the error interface. Annotations render outer-to-inner:
// operation context first, then kind and message, then the cause chain.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Scheme != "" || e.Operation != "" {
		b.WriteString("[")
		b.WriteString(e.Scheme)
		if e.Operation != "" {
			b.WriteString(":")
			b.WriteString(e.Operation)
		}
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Path != "" {
		fmt.Fprintf(&b, " (path=%s)", e.Path)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " (attempts=%d)", e.Attempts)
	}
	for k, v := range e.Context {
		fmt.Fprintf(&b, " (%s=%s)", k, v)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches two taxonomy errors by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithScheme records the source backend. Existing annotations win: a layer
// re-annotating an error that already names its backend is a no-op.
func (e *Error) WithScheme(scheme string) *Error {
	if e.Scheme == "" {
		e.Scheme = scheme
	}
	return e
}

// WithOperation records the failing operation.
func (e *Error) WithOperation(op string) *Error {
	if e.Operation == "" {
		e.Operation = op
	}
	return e
}

// WithPath records the object path.
func (e *Error) WithPath(path string) *Error {
	if e.Path == "" {
		e.Path = path
	}
	return e
}

// WithContext adds a key/value annotation.
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithCause records the wrapped lower-level error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithAttempts records how many attempts the retry layer made.
func (e *Error) WithAttempts(n int) *Error {
	e.Attempts = n
	return e
}

// SetRetryable explicitly reclassifies retryability. Only layers whose
// stated purpose is reclassification should call this.
func (e *Error) SetRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsKind reports whether err is a taxonomy error of the given kind anywhere
// in its chain.
func IsKind(err error, kind Kind) bool {
	var se *Error
	if stderrors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first taxonomy error in err's chain, or
// KindUnexpected when there is none.
func KindOf(err error) Kind {
	var se *Error
	if stderrors.As(err, &se) {
		return se.Kind
	}
	return KindUnexpected
}

// IsRetryable reports whether err carries a retryable classification.
func IsRetryable(err error) bool {
	var se *Error
	if stderrors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// Unsupported creates the error every accessor returns for an operation its
// capability set does not advertise.
func Unsupported(scheme string, op string) *Error {
	return Newf(KindUnsupported, "operation not supported").
		WithScheme(scheme).
		WithOperation(op)
}

// AlreadyClosed creates the error a Writer returns when reused after Close
// or Abort.
func AlreadyClosed(op string) *Error {
	return New(KindAlreadyClosed, "writer already finalized").WithOperation(op)
}

// FromContext converts a context error into a Cancelled taxonomy error. It
// returns err unchanged when it is not a context error.
func FromContext(err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.Canceled) {
		return New(KindCancelled, "operation cancelled").WithCause(err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return New(KindCancelled, "operation deadline exceeded").WithCause(err)
	}
	return err
}

// Unexpected wraps an unmapped backend fault.
func Unexpected(message string, cause error) *Error {
	return New(KindUnexpected, message).WithCause(cause)
}
