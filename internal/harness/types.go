package harness

import "github.com/qkdtools/cascade/internal/cascade"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the expect clause and all assertions match.
	Pass bool `json:"pass"`

	// Outcome is the session outcome ("converged" or "failed").
	Outcome string `json:"outcome"`

	// Reason is the failure code when Outcome is "failed".
	Reason string `json:"reason,omitempty"`

	// LeakedBits, Corrections and Passes summarize the session.
	LeakedBits  int `json:"leaked_bits"`
	Corrections int `json:"corrections"`
	Passes      int `json:"passes"`

	// KeysEqual reports whether the corrected working key matches the
	// reference bit-for-bit.
	KeysEqual bool `json:"keys_equal"`

	// Trace contains the full session transcript in seq order.
	// Used for event assertions and golden comparison.
	Trace []cascade.TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []cascade.TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
