package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qkdtools/cascade/internal/cascade"
	"github.com/qkdtools/cascade/internal/key"
	"github.com/qkdtools/cascade/internal/store"
)

// Summary aggregates one executed experiment.
type Summary struct {
	Experiment  string `json:"experiment"`
	Runs        int    `json:"runs"`
	Converged   int    `json:"converged"`
	Failed      int    `json:"failed"`
	LeakedBits  int    `json:"leaked_bits"`
	Corrections int    `json:"corrections"`
}

// Execute runs every session of an experiment and records the results.
//
// Run i reconciles a fresh random key pair derived from Seed+i, so a
// re-run of the same experiment reproduces the same sessions. A failed
// session is recorded and counted, not fatal: failure rates are part of
// what experiments measure. Only infrastructure errors (store writes,
// cancelled context) abort the batch.
func Execute(ctx context.Context, spec *Spec, st *store.Store, logger *slog.Logger) (*Summary, error) {
	if errs := Validate(spec); len(errs) > 0 {
		return nil, fmt.Errorf("invalid experiment %q: %w", spec.Name, errs[0])
	}

	summary := &Summary{Experiment: spec.Name, Runs: spec.Runs}

	for i := 0; i < spec.Runs; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		runSeed := spec.Seed + int64(i)
		reference := key.NewRandom(spec.KeySize, runSeed)
		working, err := reference.NoisyCopy(spec.ErrorCount, runSeed+1)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", i, err)
		}

		session, err := cascade.New(cascade.Config{
			Reference: reference,
			Working:   working,
			Seed:      runSeed,
			ErrorRate: spec.ErrorRate,
			Params:    spec.Params,
		})
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", i, err)
		}

		result, runErr := session.Run(ctx)
		if result == nil {
			return nil, fmt.Errorf("run %d: %w", i, runErr)
		}

		switch result.Outcome {
		case cascade.OutcomeConverged:
			summary.Converged++
			summary.LeakedBits += result.LeakedBits
			summary.Corrections += result.Corrections
		case cascade.OutcomeFailed:
			summary.Failed++
		}

		logger.Info("session finished",
			"experiment", spec.Name,
			"run", i,
			"session_id", result.SessionID,
			"outcome", result.Outcome,
			"leaked_bits", result.LeakedBits,
			"corrections", result.Corrections,
			"passes", result.Passes,
		)

		if err := st.WriteRun(ctx, store.Run{
			SessionID:   result.SessionID,
			Experiment:  spec.Name,
			KeySize:     spec.KeySize,
			ErrorRate:   spec.ErrorRate,
			ErrorCount:  spec.ErrorCount,
			Seed:        runSeed,
			Outcome:     string(result.Outcome),
			Reason:      string(result.Reason),
			LeakedBits:  result.LeakedBits,
			Corrections: result.Corrections,
			Passes:      result.Passes,
			CreatedAt:   time.Now(),
		}); err != nil {
			return nil, fmt.Errorf("run %d: %w", i, err)
		}
	}

	return summary, nil
}
