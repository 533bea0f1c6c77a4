package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/qkdtools/cascade/internal/cascade"
)

// TraceSnapshot captures the complete transcript of a scenario run.
// All fields use canonical JSON serialization for deterministic
// comparison.
type TraceSnapshot struct {
	ScenarioName string
	Outcome      string
	Reason       string
	LeakedBits   int
	Corrections  int
	Passes       int
	Trace        []cascade.TraceEvent
}

// toCanonicalMap converts a TraceSnapshot to a map for canonical JSON
// serialization. Summary fields are always present; per-event fields
// mirror the TraceEvent JSON shape and omit zero values.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"seq":  event.Seq,
			"type": string(event.Type),
		}
		if event.Pass != 0 {
			eventMap["pass"] = event.Pass
		}
		if event.Block != 0 {
			eventMap["block"] = event.Block
		}
		if event.BlockSize != 0 {
			eventMap["block_size"] = event.BlockSize
		}
		if event.Index != 0 {
			eventMap["index"] = event.Index
		}
		if event.Parity {
			eventMap["parity"] = event.Parity
		}
		if event.Leaked != 0 {
			eventMap["leaked"] = event.Leaked
		}
		if event.Corrections != 0 {
			eventMap["corrections"] = event.Corrections
		}
		if event.Outcome != "" {
			eventMap["outcome"] = event.Outcome
		}
		if event.Reason != "" {
			eventMap["reason"] = event.Reason
		}
		traceList[i] = eventMap
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"outcome":       s.Outcome,
		"leaked_bits":   s.LeakedBits,
		"corrections":   s.Corrections,
		"passes":        s.Passes,
		"trace":         traceList,
	}
	if s.Reason != "" {
		result["reason"] = s.Reason
	}
	return result
}

// RunWithGolden executes a scenario and compares the transcript against
// a golden file. The golden file is stored in
// testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Golden files are the source of truth for expected protocol behavior:
// a diff means the wire-visible query sequence or the leak accounting
// changed.
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the transcript doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	return AssertGolden(t, scenario.Name, result)
}

// MarshalSnapshot serializes a scenario result as a canonical JSON
// transcript, the byte format golden files store. The same bytes are
// produced by AssertGolden and by the CLI test command, so a golden
// file written by one is comparable by the other.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Outcome:      result.Outcome,
		Reason:       result.Reason,
		LeakedBits:   result.LeakedBits,
		Corrections:  result.Corrections,
		Passes:       result.Passes,
		Trace:        result.Trace,
	}
	return MarshalCanonical(snapshot.toCanonicalMap())
}

// AssertGolden compares the given result's transcript against a golden
// file. This is useful when you've already run a scenario and want to
// compare the result without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
