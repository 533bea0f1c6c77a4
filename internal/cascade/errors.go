package cascade

import (
	"errors"
	"fmt"
)

// ReconcileError is an error surfaced by a reconciliation session.
//
// Error kinds:
//   - Invalid key length: the two key views differ in size; rejected
//     before any pass runs.
//   - Channel error: a parity query could not be completed; the session
//     is unusable.
//   - Exhausted passes: the convergence criterion was not met within the
//     configured maximum pass count.
//   - Desync: an internal invariant was violated; indicates a
//     programming defect, not a protocol event.
type ReconcileError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Pass is the pass ordinal at the time of failure, 0 if the
	// session never started a pass.
	Pass int

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes reconciliation errors.
type ErrorCode string

const (
	// CodeInvalidKeyLength indicates the key views have different sizes.
	CodeInvalidKeyLength ErrorCode = "INVALID_KEY_LENGTH"

	// CodeChannelError indicates the classical channel failed.
	CodeChannelError ErrorCode = "CHANNEL_ERROR"

	// CodeExhaustedPasses indicates max passes ran without convergence.
	CodeExhaustedPasses ErrorCode = "EXHAUSTED_PASSES"

	// CodeDesync indicates an internal invariant violation.
	CodeDesync ErrorCode = "DESYNC"
)

// Error implements the error interface.
func (e *ReconcileError) Error() string {
	if e.Pass > 0 {
		return fmt.Sprintf("%s: %s (pass=%d)", e.Code, e.Message, e.Pass)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// CodeOf extracts the error code from err. Returns the empty code if
// err is not (and does not wrap) a ReconcileError.
func CodeOf(err error) ErrorCode {
	var re *ReconcileError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsInvalidKeyLength reports whether err carries CodeInvalidKeyLength.
func IsInvalidKeyLength(err error) bool {
	return CodeOf(err) == CodeInvalidKeyLength
}

// IsChannelError reports whether err carries CodeChannelError.
func IsChannelError(err error) bool {
	return CodeOf(err) == CodeChannelError
}

// IsExhaustedPasses reports whether err carries CodeExhaustedPasses.
func IsExhaustedPasses(err error) bool {
	return CodeOf(err) == CodeExhaustedPasses
}

// IsDesync reports whether err carries CodeDesync.
func IsDesync(err error) bool {
	return CodeOf(err) == CodeDesync
}

// newInvalidKeyLength creates the error for mismatched key views.
func newInvalidKeyLength(refSize, workSize int) *ReconcileError {
	return &ReconcileError{
		Code:    CodeInvalidKeyLength,
		Message: fmt.Sprintf("reference key has %d bits, working key has %d", refSize, workSize),
	}
}

// newChannelError wraps a failed parity query.
func newChannelError(pass int, err error) *ReconcileError {
	return &ReconcileError{
		Code:    CodeChannelError,
		Message: "parity query failed",
		Pass:    pass,
		Err:     err,
	}
}

// newExhaustedPasses creates the error for a session that ran out of
// passes before converging.
func newExhaustedPasses(maxPasses, residual int) *ReconcileError {
	return &ReconcileError{
		Code:    CodeExhaustedPasses,
		Message: fmt.Sprintf("no convergence after %d passes (residual estimate %d)", maxPasses, residual),
		Pass:    maxPasses,
	}
}

// newDesync creates the error for an internal invariant violation.
func newDesync(pass int, format string, args ...any) *ReconcileError {
	return &ReconcileError{
		Code:    CodeDesync,
		Message: fmt.Sprintf(format, args...),
		Pass:    pass,
	}
}
