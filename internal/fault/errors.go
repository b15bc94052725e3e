// Package fault defines the error taxonomy shared by every strata subsystem.
//
// All failures that cross a package boundary are wrapped in *Error with a
// Kind code, the operation that failed, and the artifact path involved.
// Callers dispatch on Kind via the Is* helpers rather than string matching.
package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure.
type Kind string

const (
	// KindNotFound indicates an artifact, version, or catalog entry is absent.
	KindNotFound Kind = "NOT_FOUND"

	// KindCorruptState indicates the catalog or a sidecar is unreadable or
	// malformed. Corruption is never silently treated as empty state; the
	// caller must explicitly repair.
	KindCorruptState Kind = "CORRUPT_STATE"

	// KindAtomicWriteFailure indicates a temp-file write or rename failed.
	// Prior on-disk state is untouched when this is returned.
	KindAtomicWriteFailure Kind = "ATOMIC_WRITE_FAILURE"

	// KindCycleDetected indicates lineage traversal found a loop. A cycle is
	// a data anomaly: traversal stops instead of hanging.
	KindCycleDetected Kind = "CYCLE_DETECTED"

	// KindBuilderFailure indicates a user builder callback returned an error,
	// panicked, or produced a malformed bundle.
	KindBuilderFailure Kind = "BUILDER_FAILURE"

	// KindPolicyError indicates invalid retention or plan arguments, such as
	// a negative depth or a keep count below zero.
	KindPolicyError Kind = "POLICY_ERROR"
)

// Error is the structured error carried across strata package boundaries.
type Error struct {
	Kind Kind   // failure category
	Op   string // operation, e.g. "catalog.load", "snapshot.commit"
	Path string // artifact path involved, if any
	Err  error  // underlying cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Op, e.Path, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Path)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error without an underlying cause.
func New(kind Kind, op, path string) *Error {
	return &Error{Kind: kind, Op: op, Path: path}
}

// Wrap constructs an *Error around an underlying cause.
// Returns nil when err is nil so call sites can wrap unconditionally.
func Wrap(kind Kind, op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf extracts the Kind from an error chain.
// Returns the empty Kind when no *Error is present.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

func is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// IsNotFound reports whether err carries KindNotFound.
func IsNotFound(err error) bool { return is(err, KindNotFound) }

// IsCorruptState reports whether err carries KindCorruptState.
func IsCorruptState(err error) bool { return is(err, KindCorruptState) }

// IsAtomicWriteFailure reports whether err carries KindAtomicWriteFailure.
func IsAtomicWriteFailure(err error) bool { return is(err, KindAtomicWriteFailure) }

// IsCycleDetected reports whether err carries KindCycleDetected.
func IsCycleDetected(err error) bool { return is(err, KindCycleDetected) }

// IsBuilderFailure reports whether err carries KindBuilderFailure.
func IsBuilderFailure(err error) bool { return is(err, KindBuilderFailure) }

// IsPolicyError reports whether err carries KindPolicyError.
func IsPolicyError(err error) bool { return is(err, KindPolicyError) }
