package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(sessionID, experiment string, at time.Time) Run {
	return Run{
		SessionID:   sessionID,
		Experiment:  experiment,
		KeySize:     10000,
		ErrorRate:   0.05,
		ErrorCount:  500,
		Seed:        42,
		Outcome:     "converged",
		LeakedBits:  3100,
		Corrections: 498,
		Passes:      4,
		CreatedAt:   at,
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Open multiple times
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	// Final open should work and schema should be intact
	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='runs'",
	).Scan(&name)
	if err != nil {
		t.Errorf("runs table not found after idempotent opens: %v", err)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	s := openTestStore(t)

	db := s.DB()
	if db == nil {
		t.Fatal("DB() returned nil")
	}
	if err := db.Ping(); err != nil {
		t.Errorf("DB() connection not usable: %v", err)
	}
}

// Pragma tests

func TestPragma_JournalMode(t *testing.T) {
	s := openTestStore(t)
	verifyPragma(t, s.db, "journal_mode", "wal")
}

func TestPragma_Synchronous(t *testing.T) {
	s := openTestStore(t)
	// NORMAL = 1
	verifyPragma(t, s.db, "synchronous", "1")
}

func TestPragma_BusyTimeout(t *testing.T) {
	s := openTestStore(t)
	verifyPragma(t, s.db, "busy_timeout", "5000")
}

func TestPragma_ForeignKeys(t *testing.T) {
	s := openTestStore(t)
	// ON = 1
	verifyPragma(t, s.db, "foreign_keys", "1")
}

// Run record tests

func TestWriteRun_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	want := testRun("s1", "baseline", at)
	want.Reason = ""

	if err := s.WriteRun(ctx, want); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}

	runs, err := s.ReadRuns(ctx, "baseline")
	if err != nil {
		t.Fatalf("ReadRuns() failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}

	got := runs[0]
	if got.SessionID != want.SessionID ||
		got.Experiment != want.Experiment ||
		got.KeySize != want.KeySize ||
		got.ErrorRate != want.ErrorRate ||
		got.ErrorCount != want.ErrorCount ||
		got.Seed != want.Seed ||
		got.Outcome != want.Outcome ||
		got.Reason != want.Reason ||
		got.LeakedBits != want.LeakedBits ||
		got.Corrections != want.Corrections ||
		got.Passes != want.Passes {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
	if !got.CreatedAt.Equal(at) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, at)
	}
}

func TestWriteRun_DuplicateSessionIsNoOp(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	first := testRun("s1", "baseline", at)
	if err := s.WriteRun(ctx, first); err != nil {
		t.Fatalf("first WriteRun() failed: %v", err)
	}

	// Same session id, different payload. The first write wins.
	second := first
	second.LeakedBits = 9999
	second.Outcome = "failed"
	second.Reason = "CHANNEL_ERROR"
	if err := s.WriteRun(ctx, second); err != nil {
		t.Fatalf("duplicate WriteRun() failed: %v", err)
	}

	runs, err := s.ReadRuns(ctx, "baseline")
	if err != nil {
		t.Fatalf("ReadRuns() failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].LeakedBits != first.LeakedBits {
		t.Errorf("LeakedBits = %d, want %d (first write must win)",
			runs[0].LeakedBits, first.LeakedBits)
	}
	if runs[0].Outcome != "converged" {
		t.Errorf("Outcome = %q, want %q", runs[0].Outcome, "converged")
	}
}

func TestWriteRun_RejectsUnknownOutcome(t *testing.T) {
	s := openTestStore(t)

	r := testRun("s1", "baseline", time.Now())
	r.Outcome = "maybe"

	if err := s.WriteRun(context.Background(), r); err == nil {
		t.Error("expected CHECK constraint violation, got nil")
	}
}

func TestReadRuns_EmptyIsNotNil(t *testing.T) {
	s := openTestStore(t)

	runs, err := s.ReadRuns(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("ReadRuns() failed: %v", err)
	}
	if runs == nil {
		t.Error("ReadRuns() returned nil, want empty slice")
	}
	if len(runs) != 0 {
		t.Errorf("got %d runs, want 0", len(runs))
	}
}

func TestReadRuns_FiltersByExperiment(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for _, r := range []Run{
		testRun("a1", "low-noise", at),
		testRun("b1", "high-noise", at.Add(time.Second)),
		testRun("a2", "low-noise", at.Add(2*time.Second)),
	} {
		if err := s.WriteRun(ctx, r); err != nil {
			t.Fatalf("WriteRun(%s) failed: %v", r.SessionID, err)
		}
	}

	runs, err := s.ReadRuns(ctx, "low-noise")
	if err != nil {
		t.Fatalf("ReadRuns() failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	for _, r := range runs {
		if r.Experiment != "low-noise" {
			t.Errorf("run %s has experiment %q, want %q", r.SessionID, r.Experiment, "low-noise")
		}
	}

	all, err := s.ReadRuns(ctx, "")
	if err != nil {
		t.Fatalf("ReadRuns(all) failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d runs for empty filter, want 3", len(all))
	}
}

func TestReadRuns_DeterministicOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	// Insert out of order: ordering must come from created_at, with
	// session_id as the tiebreaker for identical timestamps.
	for _, r := range []Run{
		testRun("zz", "e", at.Add(time.Minute)),
		testRun("b", "e", at),
		testRun("a", "e", at),
	} {
		if err := s.WriteRun(ctx, r); err != nil {
			t.Fatalf("WriteRun(%s) failed: %v", r.SessionID, err)
		}
	}

	runs, err := s.ReadRuns(ctx, "e")
	if err != nil {
		t.Fatalf("ReadRuns() failed: %v", err)
	}

	want := []string{"a", "b", "zz"}
	if len(runs) != len(want) {
		t.Fatalf("got %d runs, want %d", len(runs), len(want))
	}
	for i, id := range want {
		if runs[i].SessionID != id {
			t.Errorf("runs[%d].SessionID = %q, want %q", i, runs[i].SessionID, id)
		}
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := openTestStore(t)

	summaries, err := s.Summarize(context.Background())
	if err != nil {
		t.Fatalf("Summarize() failed: %v", err)
	}
	if summaries == nil {
		t.Error("Summarize() returned nil, want empty slice")
	}
	if len(summaries) != 0 {
		t.Errorf("got %d summaries, want 0", len(summaries))
	}
}

func TestSummarize_ConvergedOnlyMeans(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	r1 := testRun("s1", "baseline", at)
	r1.LeakedBits = 100
	r1.Corrections = 10

	r2 := testRun("s2", "baseline", at.Add(time.Second))
	r2.LeakedBits = 200
	r2.Corrections = 20

	// Failed run: must not contribute to the means.
	r3 := testRun("s3", "baseline", at.Add(2*time.Second))
	r3.Outcome = "failed"
	r3.Reason = "CHANNEL_ERROR"
	r3.LeakedBits = 50000
	r3.Corrections = 0

	for _, r := range []Run{r1, r2, r3} {
		if err := s.WriteRun(ctx, r); err != nil {
			t.Fatalf("WriteRun(%s) failed: %v", r.SessionID, err)
		}
	}

	summaries, err := s.Summarize(ctx)
	if err != nil {
		t.Fatalf("Summarize() failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}

	sum := summaries[0]
	if sum.Experiment != "baseline" {
		t.Errorf("Experiment = %q, want %q", sum.Experiment, "baseline")
	}
	if sum.Runs != 3 {
		t.Errorf("Runs = %d, want 3", sum.Runs)
	}
	if sum.Converged != 2 {
		t.Errorf("Converged = %d, want 2", sum.Converged)
	}
	if sum.MeanLeakedBits != 150 {
		t.Errorf("MeanLeakedBits = %v, want 150", sum.MeanLeakedBits)
	}
	if sum.MeanCorrections != 15 {
		t.Errorf("MeanCorrections = %v, want 15", sum.MeanCorrections)
	}
}

func TestSummarize_OrderedByExperiment(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i, exp := range []string{"zeta", "alpha", "mid"} {
		r := testRun("s"+exp, exp, at.Add(time.Duration(i)*time.Second))
		if err := s.WriteRun(ctx, r); err != nil {
			t.Fatalf("WriteRun(%s) failed: %v", exp, err)
		}
	}

	summaries, err := s.Summarize(ctx)
	if err != nil {
		t.Fatalf("Summarize() failed: %v", err)
	}

	want := []string{"alpha", "mid", "zeta"}
	if len(summaries) != len(want) {
		t.Fatalf("got %d summaries, want %d", len(summaries), len(want))
	}
	for i, exp := range want {
		if summaries[i].Experiment != exp {
			t.Errorf("summaries[%d].Experiment = %q, want %q", i, summaries[i].Experiment, exp)
		}
	}
}

// Helpers

func verifyPragma(t *testing.T, db *sql.DB, pragma, want string) {
	t.Helper()

	var got string
	if err := db.QueryRow("PRAGMA " + pragma).Scan(&got); err != nil {
		t.Fatalf("failed to read pragma %q: %v", pragma, err)
	}
	if got != want {
		t.Errorf("pragma %s = %q, want %q", pragma, got, want)
	}
}
