// Package params holds the protocol tuning parameters for a
// reconciliation session.
//
// The literature describes several Cascade variants that differ in their
// block-size growth schedule and pass count. Only the invariants are
// fixed here (block sizes never shrink across passes, the first size is
// derived from the error-rate estimate); the exact growth formula is a
// named, pluggable schedule.
package params

import (
	"fmt"
	"math"
	"sort"
)

// Parameters configures one reconciliation session.
type Parameters struct {
	// MaxPasses is the maximum number of passes before the session
	// gives up. Must be >= 1.
	MaxPasses int

	// ConvergenceThreshold is the residual error estimate at or below
	// which the session declares convergence. Must be >= 0. Zero means
	// run until a full pass corrects nothing.
	ConvergenceThreshold int

	// Schedule names the block-size growth policy. Empty selects
	// ScheduleOriginal.
	Schedule string
}

// Default returns the parameters of the original protocol variant:
// four passes, doubling block sizes, converge on a clean pass.
func Default() Parameters {
	return Parameters{
		MaxPasses:            4,
		ConvergenceThreshold: 0,
		Schedule:             ScheduleOriginal,
	}
}

// Validate reports the first invalid field.
func (p Parameters) Validate() error {
	if p.MaxPasses < 1 {
		return fmt.Errorf("params: max passes must be >= 1, got %d", p.MaxPasses)
	}
	if p.ConvergenceThreshold < 0 {
		return fmt.Errorf("params: convergence threshold must be >= 0, got %d", p.ConvergenceThreshold)
	}
	if _, err := LookupSchedule(p.ScheduleName()); err != nil {
		return err
	}
	return nil
}

// ScheduleName returns the effective schedule name.
func (p Parameters) ScheduleName() string {
	if p.Schedule == "" {
		return ScheduleOriginal
	}
	return p.Schedule
}

// BlockSize computes the block size for a pass using the configured
// schedule, clamped to [1, keySize].
func (p Parameters) BlockSize(errorRate float64, pass, keySize int) (int, error) {
	fn, err := LookupSchedule(p.ScheduleName())
	if err != nil {
		return 0, err
	}
	size := fn(errorRate, pass)
	if size < 1 {
		size = 1
	}
	if size > keySize {
		size = keySize
	}
	return size, nil
}

// ScheduleFunc maps (estimated error rate, pass ordinal) to a block size.
// Implementations must be non-decreasing in the pass ordinal.
type ScheduleFunc func(errorRate float64, pass int) int

// Built-in schedule names.
const (
	// ScheduleOriginal follows Brassard and Salvail: the first block
	// size is about 0.73 divided by the error-rate estimate, and every
	// later pass doubles it.
	ScheduleOriginal = "original"

	// ScheduleFixed keeps the pass-1 size for every pass. Mostly useful
	// in tests and experiments that want stable block boundaries.
	ScheduleFixed = "fixed"
)

var schedules = map[string]ScheduleFunc{
	ScheduleOriginal: func(errorRate float64, pass int) int {
		return firstBlockSize(errorRate) << (pass - 1)
	},
	ScheduleFixed: func(errorRate float64, pass int) int {
		return firstBlockSize(errorRate)
	},
}

// firstBlockSize derives k1 from the error-rate estimate. An estimate
// outside (0, 1) has no meaningful k1; callers validate the estimate
// before a session starts, so this only guards the division.
func firstBlockSize(errorRate float64) int {
	if errorRate <= 0 {
		return math.MaxInt32
	}
	return int(math.Ceil(0.73 / errorRate))
}

// LookupSchedule resolves a schedule by name.
func LookupSchedule(name string) (ScheduleFunc, error) {
	fn, ok := schedules[name]
	if !ok {
		return nil, fmt.Errorf("params: unknown schedule %q (known: %v)", name, ScheduleNames())
	}
	return fn, nil
}

// ScheduleNames returns the known schedule names, sorted.
func ScheduleNames() []string {
	names := make([]string, 0, len(schedules))
	for name := range schedules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
