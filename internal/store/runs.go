package store

import (
	"context"
	"fmt"
	"time"
)

// Run is one stored reconciliation result.
type Run struct {
	SessionID   string    `json:"session_id"`
	Experiment  string    `json:"experiment"`
	KeySize     int       `json:"key_size"`
	ErrorRate   float64   `json:"error_rate"`
	ErrorCount  int       `json:"error_count"`
	Seed        int64     `json:"seed"`
	Outcome     string    `json:"outcome"`
	Reason      string    `json:"reason,omitempty"`
	LeakedBits  int       `json:"leaked_bits"`
	Corrections int       `json:"corrections"`
	Passes      int       `json:"passes"`
	CreatedAt   time.Time `json:"created_at"`
}

// WriteRun inserts a run record.
// Uses ON CONFLICT(session_id) DO NOTHING for idempotency - a session
// id is written at most once; duplicates are silently ignored.
func (s *Store) WriteRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(session_id, experiment, key_size, error_rate, error_count, seed,
		 outcome, reason, leaked_bits, corrections, passes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING
	`,
		r.SessionID,
		r.Experiment,
		r.KeySize,
		r.ErrorRate,
		r.ErrorCount,
		r.Seed,
		r.Outcome,
		r.Reason,
		r.LeakedBits,
		r.Corrections,
		r.Passes,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// ReadRuns returns the runs of an experiment, oldest first. An empty
// experiment name returns every run. Ordering is deterministic:
// created_at, then session_id with binary collation.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ReadRuns(ctx context.Context, experiment string) ([]Run, error) {
	query := `
		SELECT session_id, experiment, key_size, error_rate, error_count, seed,
		       outcome, reason, leaked_bits, corrections, passes, created_at
		FROM runs
	`
	var args []any
	if experiment != "" {
		query += ` WHERE experiment = ?`
		args = append(args, experiment)
	}
	query += ` ORDER BY created_at ASC, session_id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		var createdAt string
		if err := rows.Scan(
			&r.SessionID, &r.Experiment, &r.KeySize, &r.ErrorRate, &r.ErrorCount,
			&r.Seed, &r.Outcome, &r.Reason, &r.LeakedBits, &r.Corrections,
			&r.Passes, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Summary aggregates the stored runs of one experiment.
type Summary struct {
	Experiment      string  `json:"experiment"`
	Runs            int     `json:"runs"`
	Converged       int     `json:"converged"`
	MeanLeakedBits  float64 `json:"mean_leaked_bits"`
	MeanCorrections float64 `json:"mean_corrections"`
}

// Summarize returns per-experiment aggregates, ordered by experiment
// name. Leak and correction means are taken over converged runs only,
// since failed sessions produce no usable key.
func (s *Store) Summarize(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT experiment,
		       COUNT(*),
		       SUM(CASE WHEN outcome = 'converged' THEN 1 ELSE 0 END),
		       COALESCE(AVG(CASE WHEN outcome = 'converged' THEN leaked_bits END), 0),
		       COALESCE(AVG(CASE WHEN outcome = 'converged' THEN corrections END), 0)
		FROM runs
		GROUP BY experiment
		ORDER BY experiment COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.Experiment, &sum.Runs, &sum.Converged,
			&sum.MeanLeakedBits, &sum.MeanCorrections); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return summaries, nil
}
