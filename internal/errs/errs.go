// Package errs implements the unified error taxonomy described in the
// design: each error carries a Kind, the operation and resource it
// failed on, and a recovery hint a caller (or the CLI) can act on without
// parsing a message string. It wraps github.com/pkg/errors for stack
// context, matching how the teacher's cache, taskhash, lockfile and run
// packages report errors.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the taxonomy of error categories from the design's error
// handling section.
type Kind string

const (
	// Configuration marks malformed input from the external parser or CLI.
	Configuration Kind = "configuration"
	// IO marks a filesystem syscall failure.
	IO Kind = "io"
	// Timeout marks a bounded wait that expired.
	Timeout Kind = "timeout"
	// Capacity marks a disk or entry budget exceeded.
	Capacity Kind = "capacity"
	// Corruption marks an integrity check failure (MAC, header, digest).
	Corruption Kind = "corruption"
	// SignatureAccess marks MAC verification failure or freshness expiry.
	SignatureAccess Kind = "signature_access"
	// Concurrency marks internal lock poisoning; always fatal.
	Concurrency Kind = "concurrency"
	// TaskFailure marks a child process that exited non-zero; not a
	// framework error, but a first-class outcome.
	TaskFailure Kind = "task_failure"
	// Dependency marks an unresolved reference or missing promised output.
	Dependency Kind = "dependency"
)

// Hint is a structured recovery suggestion surfaced to the user.
type Hint string

const (
	// HintRetryAfter suggests retrying, optionally after a delay.
	HintRetryAfter Hint = "retry-after"
	// HintCheckPermissions suggests inspecting filesystem permissions.
	HintCheckPermissions Hint = "check-permissions"
	// HintClearCache suggests clearing the action cache.
	HintClearCache Hint = "clear-cache"
	// HintManual indicates no automated recovery is known.
	HintManual Hint = "manual"
)

// Error is the concrete error type returned by cuenv's internal packages.
type Error struct {
	Kind      Kind
	Operation string
	Resource  string
	Hint      Hint
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s failed on %q", e.Kind, e.Operation, e.Resource)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += fmt.Sprintf(" (%s)", e.Hint)
	}
	return msg
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error, wrapping cause with pkg/errors for a stack
// trace when one is present.
func New(kind Kind, operation, resource string, hint Hint, cause error) *Error {
	var wrapped error
	if cause != nil {
		wrapped = errors.WithStack(cause)
	}
	return &Error{Kind: kind, Operation: operation, Resource: resource, Hint: hint, Err: wrapped}
}

// IOf builds an IO-kind error with a check-permissions hint, the common
// case for a failed filesystem syscall.
func IOf(operation, resource string, cause error) *Error {
	return New(IO, operation, resource, HintCheckPermissions, cause)
}

// Corruptionf builds a Corruption-kind error with a clear-cache hint.
func Corruptionf(operation, resource string, cause error) *Error {
	return New(Corruption, operation, resource, HintClearCache, cause)
}

// Dependencyf builds a Dependency-kind error with a manual-fix hint.
func Dependencyf(operation, resource string, cause error) *Error {
	return New(Dependency, operation, resource, HintManual, cause)
}

// Timeoutf builds a Timeout-kind error with a retry-after hint.
func Timeoutf(operation, resource string, cause error) *Error {
	return New(Timeout, operation, resource, HintRetryAfter, cause)
}

// Configurationf builds a Configuration-kind error with a manual-fix hint.
func Configurationf(operation, resource string, cause error) *Error {
	return New(Configuration, operation, resource, HintManual, cause)
}

// Is allows errors.Is(err, errs.Corruption) style checks by Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
