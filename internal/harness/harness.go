package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/qkdtools/cascade/internal/cascade"
	"github.com/qkdtools/cascade/internal/key"
	"github.com/qkdtools/cascade/internal/store"
)

// Run executes a test scenario and returns the result.
//
// The session runs over an in-process channel against the scenario's
// reference key. Everything is seeded, so two runs of the same scenario
// produce identical transcripts.
//
// Execution flow:
// 1. Build the reference key and the noisy working copy
// 2. Run a full reconciliation session with a transcript recorder
// 3. Validate the expect clause against the session result
// 4. Evaluate assertions against transcript and run record
func Run(scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	reference, working, err := buildKeys(scenario)
	if err != nil {
		return nil, err
	}

	trace := cascade.NewTraceLog()
	session, err := cascade.New(cascade.Config{
		Reference: reference,
		Working:   working,
		Seed:      scenario.Seed,
		ErrorRate: scenario.ErrorRate,
		Params:    scenario.Params.Parameters(),
		SessionID: scenario.Name,
		Recorder:  trace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	ctx := context.Background()

	// A failed session is a legitimate scenario outcome, not a harness
	// error: the expect clause decides whether it was anticipated.
	runResult, runErr := session.Run(ctx)
	if runResult == nil {
		return nil, fmt.Errorf("session run: %w", runErr)
	}

	result := NewResult()
	result.Outcome = string(runResult.Outcome)
	result.Reason = string(runResult.Reason)
	result.LeakedBits = runResult.LeakedBits
	result.Corrections = runResult.Corrections
	result.Passes = runResult.Passes
	result.KeysEqual = working.Equal(reference)
	result.Trace = trace.Events()

	logger.Info("session finished",
		"scenario", scenario.Name,
		"outcome", result.Outcome,
		"leaked_bits", result.LeakedBits,
		"corrections", result.Corrections,
	)

	evaluateExpect(scenario, result)

	actx, cleanup, err := runStateContext(ctx, scenario, runResult, reference.Size())
	if err != nil {
		return nil, err
	}
	defer cleanup()

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// buildKeys materializes the reference key and its noisy working copy
// from the scenario's key and error specs.
func buildKeys(scenario *Scenario) (reference, working *key.Key, err error) {
	if scenario.Keys.Reference != "" {
		reference, err = key.Parse(scenario.Keys.Reference)
		if err != nil {
			return nil, nil, fmt.Errorf("keys.reference: %w", err)
		}
	} else {
		reference = key.NewRandom(scenario.Keys.Size, scenario.Keys.Seed)
	}

	switch {
	case len(scenario.Errors.Positions) > 0:
		working = reference.Clone()
		for _, pos := range scenario.Errors.Positions {
			working.FlipBit(pos)
		}
	case scenario.Errors.Count > 0:
		working, err = reference.NoisyCopy(scenario.Errors.Count, scenario.Errors.Seed)
		if err != nil {
			return nil, nil, fmt.Errorf("errors: %w", err)
		}
	default:
		working = reference.Clone()
	}

	return reference, working, nil
}

// evaluateExpect validates the session result against the expect clause.
func evaluateExpect(scenario *Scenario, result *Result) {
	expect := scenario.Expect
	if expect == nil {
		return
	}

	if result.Outcome != expect.Outcome {
		result.AddError(fmt.Sprintf("expected outcome %q, got %q (reason %q)",
			expect.Outcome, result.Outcome, result.Reason))
	}
	if expect.Reason != "" && result.Reason != expect.Reason {
		result.AddError(fmt.Sprintf("expected reason %q, got %q", expect.Reason, result.Reason))
	}
	if expect.Corrections != nil && result.Corrections != *expect.Corrections {
		result.AddError(fmt.Sprintf("expected %d corrections, got %d",
			*expect.Corrections, result.Corrections))
	}
	if expect.Passes != nil && result.Passes != *expect.Passes {
		result.AddError(fmt.Sprintf("expected %d passes, got %d", *expect.Passes, result.Passes))
	}
	if expect.MaxLeakedBits > 0 && result.LeakedBits > expect.MaxLeakedBits {
		result.AddError(fmt.Sprintf("leaked %d bits, budget is %d",
			result.LeakedBits, expect.MaxLeakedBits))
	}
	if expect.KeysEqual != nil && result.KeysEqual != *expect.KeysEqual {
		result.AddError(fmt.Sprintf("expected keys_equal=%v, got %v",
			*expect.KeysEqual, result.KeysEqual))
	}
}

// runStateContext prepares the assertion context. Scenarios with a
// run_state assertion get a fresh in-memory store holding this run's
// record; everything else skips the database entirely.
func runStateContext(ctx context.Context, scenario *Scenario, runResult *cascade.Result, keySize int) (*AssertionContext, func(), error) {
	needsStore := false
	for _, a := range scenario.Assertions {
		if a.Type == AssertRunState {
			needsStore = true
			break
		}
	}
	if !needsStore {
		return &AssertionContext{Ctx: ctx}, func() {}, nil
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}

	errorCount := scenario.Errors.Count
	if len(scenario.Errors.Positions) > 0 {
		errorCount = len(scenario.Errors.Positions)
	}
	run := store.Run{
		SessionID:   runResult.SessionID,
		Experiment:  scenario.Name,
		KeySize:     keySize,
		ErrorRate:   scenario.ErrorRate,
		ErrorCount:  errorCount,
		Seed:        scenario.Seed,
		Outcome:     string(runResult.Outcome),
		Reason:      string(runResult.Reason),
		LeakedBits:  runResult.LeakedBits,
		Corrections: runResult.Corrections,
		Passes:      runResult.Passes,
		CreatedAt:   time.Unix(0, 0).UTC(), // fixed timestamp for determinism
	}
	if err := st.WriteRun(ctx, run); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("failed to write run record: %w", err)
	}

	return &AssertionContext{Store: st, Ctx: ctx}, func() { st.Close() }, nil
}
