package experiment

import (
	"fmt"
	"math"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/qkdtools/cascade/internal/params"
)

// Spec is a compiled experiment definition.
type Spec struct {
	// Name is the experiment label from the CUE path.
	Name string `json:"name"`

	// KeySize is the sifted key length in bits.
	KeySize int `json:"key_size"`

	// ErrorRate is the quantum bit error rate estimate given to each
	// session.
	ErrorRate float64 `json:"error_rate"`

	// ErrorCount is the number of bit flips applied to each working
	// copy. Defaults to round(ErrorRate * KeySize).
	ErrorCount int `json:"error_count"`

	// Runs is the number of sessions to execute.
	Runs int `json:"runs"`

	// Seed is the base seed; run i derives its key, noise and
	// permutation seeds from Seed+i.
	Seed int64 `json:"seed"`

	// Params configures every session of the experiment.
	Params params.Parameters `json:"params"`
}

// Compile parses a CUE value into a Spec.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// The CUE value should be the experiment struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`experiment: baseline: { ... }`)
//	spec, err := experiment.Compile(v.LookupPath(cue.ParsePath("experiment.baseline")))
func Compile(v cue.Value) (*Spec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &Spec{Runs: 1, Params: params.Default()}

	// Experiment name comes from the struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	keySizeVal := v.LookupPath(cue.ParsePath("key_size"))
	if !keySizeVal.Exists() {
		return nil, &CompileError{
			Field:   "key_size",
			Message: "key_size is required",
			Pos:     v.Pos(),
		}
	}
	keySize, err := keySizeVal.Int64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	spec.KeySize = int(keySize)

	rateVal := v.LookupPath(cue.ParsePath("error_rate"))
	if !rateVal.Exists() {
		return nil, &CompileError{
			Field:   "error_rate",
			Message: "error_rate is required",
			Pos:     v.Pos(),
		}
	}
	spec.ErrorRate, err = rateVal.Float64()
	if err != nil {
		return nil, formatCUEError(err)
	}

	// errors is optional; the rate-derived count is the default
	spec.ErrorCount = int(math.Round(spec.ErrorRate * float64(spec.KeySize)))
	if errorsVal := v.LookupPath(cue.ParsePath("errors")); errorsVal.Exists() {
		count, err := errorsVal.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.ErrorCount = int(count)
	}

	if runsVal := v.LookupPath(cue.ParsePath("runs")); runsVal.Exists() {
		runs, err := runsVal.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Runs = int(runs)
	}

	if seedVal := v.LookupPath(cue.ParsePath("seed")); seedVal.Exists() {
		spec.Seed, err = seedVal.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
	}

	if paramsVal := v.LookupPath(cue.ParsePath("params")); paramsVal.Exists() {
		if err := compileParams(paramsVal, &spec.Params); err != nil {
			return nil, err
		}
	}

	return spec, nil
}

// compileParams overlays the CUE params struct onto the defaults.
func compileParams(v cue.Value, p *params.Parameters) error {
	if maxVal := v.LookupPath(cue.ParsePath("max_passes")); maxVal.Exists() {
		maxPasses, err := maxVal.Int64()
		if err != nil {
			return formatCUEError(err)
		}
		p.MaxPasses = int(maxPasses)
	}
	if thrVal := v.LookupPath(cue.ParsePath("convergence_threshold")); thrVal.Exists() {
		threshold, err := thrVal.Int64()
		if err != nil {
			return formatCUEError(err)
		}
		p.ConvergenceThreshold = int(threshold)
	}
	if schedVal := v.LookupPath(cue.ParsePath("schedule")); schedVal.Exists() {
		schedule, err := schedVal.String()
		if err != nil {
			return formatCUEError(err)
		}
		p.Schedule = schedule
	}
	return nil
}

// CompileError is a structured compile failure with CUE position info.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	return &CompileError{
		Field:   "cue",
		Message: first.Error(),
		Pos:     first.Position(),
	}
}
