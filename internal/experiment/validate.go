package experiment

import (
	"fmt"

	"github.com/qkdtools/cascade/internal/params"
)

// Validation error codes (E100-E199)
const (
	ErrKeySizeInvalid   = "E101" // key_size must be positive
	ErrRateOutOfRange   = "E102" // error_rate must be in (0, 1)
	ErrCountOutOfRange  = "E103" // errors count out of [0, key_size]
	ErrRunsInvalid      = "E104" // runs must be positive
	ErrPassesInvalid    = "E105" // max_passes must be positive
	ErrThresholdInvalid = "E106" // convergence_threshold must be non-negative
	ErrUnknownSchedule  = "E107" // unknown schedule name
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled Spec against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(spec *Spec) []ValidationError {
	var errs []ValidationError

	if spec.KeySize < 1 {
		errs = append(errs, ValidationError{
			Field:   "key_size",
			Message: fmt.Sprintf("must be positive, got %d", spec.KeySize),
			Code:    ErrKeySizeInvalid,
		})
	}

	if spec.ErrorRate <= 0 || spec.ErrorRate >= 1 {
		errs = append(errs, ValidationError{
			Field:   "error_rate",
			Message: fmt.Sprintf("must be in (0, 1), got %v", spec.ErrorRate),
			Code:    ErrRateOutOfRange,
		})
	}

	if spec.ErrorCount < 0 || (spec.KeySize > 0 && spec.ErrorCount > spec.KeySize) {
		errs = append(errs, ValidationError{
			Field:   "errors",
			Message: fmt.Sprintf("must be in [0, %d], got %d", spec.KeySize, spec.ErrorCount),
			Code:    ErrCountOutOfRange,
		})
	}

	if spec.Runs < 1 {
		errs = append(errs, ValidationError{
			Field:   "runs",
			Message: fmt.Sprintf("must be positive, got %d", spec.Runs),
			Code:    ErrRunsInvalid,
		})
	}

	if spec.Params.MaxPasses < 1 {
		errs = append(errs, ValidationError{
			Field:   "params.max_passes",
			Message: fmt.Sprintf("must be positive, got %d", spec.Params.MaxPasses),
			Code:    ErrPassesInvalid,
		})
	}

	if spec.Params.ConvergenceThreshold < 0 {
		errs = append(errs, ValidationError{
			Field:   "params.convergence_threshold",
			Message: fmt.Sprintf("must be non-negative, got %d", spec.Params.ConvergenceThreshold),
			Code:    ErrThresholdInvalid,
		})
	}

	if _, err := params.LookupSchedule(spec.Params.ScheduleName()); err != nil {
		errs = append(errs, ValidationError{
			Field:   "params.schedule",
			Message: fmt.Sprintf("unknown schedule %q (known: %v)", spec.Params.Schedule, params.ScheduleNames()),
			Code:    ErrUnknownSchedule,
		})
	}

	return errs
}
