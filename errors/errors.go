// Package errors provides the error types surfaced by the synchronization
// engine and its collaborators.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies why a SyncError occurred.
type Code string

const (
	// CodeIncompatible marks a remote envelope whose version exceeds what
	// the strategy declares, or an envelope that failed to parse.
	CodeIncompatible Code = "INCOMPATIBLE"
	// CodePreconditionFailed marks a remote write rejected because the
	// server's current ref no longer matches the caller's expected ref.
	CodePreconditionFailed Code = "PRECONDITION_FAILED"
	// CodeLocalPreconditionFailed marks a local file write rejected
	// because the on-disk file changed since it was last read.
	CodeLocalPreconditionFailed Code = "LOCAL_PRECONDITION_FAILED"
	// CodeNetwork marks a transient transport failure.
	CodeNetwork Code = "NETWORK_FAILURE"
	// CodeCanceled marks a preview or operation that was cancelled, not
	// failed.
	CodeCanceled Code = "CANCELED"
	// CodeTooManyRetries marks the precondition-retry loop exceeding its
	// configured safety cap.
	CodeTooManyRetries Code = "TOO_MANY_RETRIES"
	// CodeValidation marks a malformed input rejected before any I/O.
	CodeValidation Code = "VALIDATION_FAILURE"
)

// Operation names the high-level engine operation that failed.
type Operation string

const (
	OpSync            Operation = "sync"
	OpPull            Operation = "pull"
	OpPush            Operation = "push"
	OpReplace         Operation = "replace"
	OpAcceptConflict  Operation = "accept_conflict"
	OpStop            Operation = "stop"
	OpGeneratePreview Operation = "generate_preview"
	OpApplyPreview    Operation = "apply_preview"
	OpResolveContent  Operation = "resolve_content"
	OpResetLocal      Operation = "reset_local"
	OpListHandles     Operation = "list_handles"
)

// SyncError is the error type returned by every engine operation.
type SyncError struct {
	Op        Operation
	Component string
	Err       error
	Retryable bool
	Code      Code
	Metadata  map[string]any
}

func (e *SyncError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}
	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}
	if e.Err == nil {
		return msg
	}
	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// New creates a bare SyncError.
func New(op Operation, err error) *SyncError {
	return &SyncError{Op: op, Err: err}
}

// NewWithComponent creates a SyncError tagged with the component that
// produced it (e.g. "remote-store", "local-backup-store", "file-service").
func NewWithComponent(op Operation, component string, err error) *SyncError {
	return &SyncError{Op: op, Component: component, Err: err}
}

// Incompatible builds a CodeIncompatible error.
func Incompatible(op Operation, err error) *SyncError {
	return &SyncError{Op: op, Code: CodeIncompatible, Err: err}
}

// PreconditionFailed builds a CodePreconditionFailed error.
func PreconditionFailed(op Operation, err error) *SyncError {
	return &SyncError{Op: op, Component: "remote-store", Code: CodePreconditionFailed, Retryable: true, Err: err}
}

// LocalPreconditionFailed builds a CodeLocalPreconditionFailed error.
func LocalPreconditionFailed(op Operation, err error) *SyncError {
	return &SyncError{Op: op, Component: "file-service", Code: CodeLocalPreconditionFailed, Retryable: true, Err: err}
}

// NetworkError builds a CodeNetwork error.
func NetworkError(op Operation, err error) *SyncError {
	return &SyncError{Op: op, Component: "remote-store", Code: CodeNetwork, Retryable: true, Err: err}
}

// Canceled builds a CodeCanceled error.
func Canceled(op Operation) *SyncError {
	return &SyncError{Op: op, Code: CodeCanceled, Err: errors.New("operation canceled")}
}

// TooManyRetries builds a CodeTooManyRetries error.
func TooManyRetries(op Operation, attempts int) *SyncError {
	return &SyncError{
		Op:       op,
		Code:     CodeTooManyRetries,
		Err:      fmt.Errorf("gave up after %d precondition-failure retries", attempts),
		Metadata: map[string]any{"attempts": attempts},
	}
}

// IsRetryable reports whether err is a SyncError marked retryable.
func IsRetryable(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// HasCode reports whether err is a SyncError carrying the given code.
func HasCode(err error, code Code) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsIncompatible reports whether err is an incompatible-envelope error.
func IsIncompatible(err error) bool { return HasCode(err, CodeIncompatible) }

// IsPreconditionFailed reports whether err is a remote precondition failure.
func IsPreconditionFailed(err error) bool { return HasCode(err, CodePreconditionFailed) }

// IsLocalPreconditionFailed reports whether err is a local precondition
// failure.
func IsLocalPreconditionFailed(err error) bool { return HasCode(err, CodeLocalPreconditionFailed) }

// IsCanceled reports whether err represents cancellation rather than
// failure.
func IsCanceled(err error) bool { return HasCode(err, CodeCanceled) }

// ErrNotFound is returned by collaborators (last-sync store, backup
// stores, remote ResolveContent) when the thing being looked up does not
// exist; the file service uses usersync.ErrFileNotFound instead. The engine
// treats it as "absent", never as failure, per spec.md §7.
var ErrNotFound = errors.New("not found")

// ErrCorrupt is returned (wrapped) by LastSyncStore.Read when the
// persisted record exists but cannot be parsed. The engine treats it the
// same as ErrNotFound: log and proceed as if no prior sync happened
// (spec.md §7, "Parse errors in the persisted last-sync file are logged
// and treated as no prior sync").
var ErrCorrupt = errors.New("corrupt persisted record")
