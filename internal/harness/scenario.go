package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/qkdtools/cascade/internal/params"
)

// Scenario defines a conformance test scenario.
// Scenarios pin down the reconciliation protocol by running a full
// session over an exactly specified key pair and asserting on the
// resulting transcript.
type Scenario struct {
	// Name uniquely identifies this scenario. Also used as the golden
	// file name and the session id, so keep it filesystem-safe.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Keys defines the error-free reference key.
	Keys KeysSpec `yaml:"keys"`

	// Errors defines how the noisy working copy differs from the
	// reference.
	Errors ErrorsSpec `yaml:"errors"`

	// Seed is the shared permutation seed both sides agree on before
	// pass 1.
	Seed int64 `yaml:"seed"`

	// ErrorRate is the estimated quantum bit error rate. Seeds the
	// pass-1 block size.
	ErrorRate float64 `yaml:"error_rate"`

	// Params overrides the session parameters. Nil fields keep their
	// defaults.
	Params *ParamsSpec `yaml:"params,omitempty"`

	// Expect validates the session result.
	// If nil, only assertions are evaluated.
	Expect *ExpectClause `yaml:"expect,omitempty"`

	// Assertions validate the transcript and stored run record.
	// Supported types: event_contains, event_order, event_count, run_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// KeysSpec defines the reference key: either an explicit bit string or
// a (size, seed) pair for a reproducible random key. Exactly one form
// must be used.
type KeysSpec struct {
	// Reference is the key spelled out as '0'/'1' characters.
	Reference string `yaml:"reference,omitempty"`

	// Size is the random key length in bits.
	Size int `yaml:"size,omitempty"`

	// Seed makes the random key reproducible.
	Seed int64 `yaml:"seed,omitempty"`
}

// ErrorsSpec defines the noise applied to produce the working copy:
// either explicit bit positions or a (count, seed) pair. An empty spec
// means an error-free copy.
type ErrorsSpec struct {
	// Positions lists the exact indices to flip.
	Positions []int `yaml:"positions,omitempty"`

	// Count is the number of randomly placed flips.
	Count int `yaml:"count,omitempty"`

	// Seed makes the random placement reproducible.
	Seed int64 `yaml:"seed,omitempty"`
}

// ParamsSpec mirrors params.Parameters for YAML scenarios.
type ParamsSpec struct {
	MaxPasses            int    `yaml:"max_passes,omitempty"`
	ConvergenceThreshold int    `yaml:"convergence_threshold,omitempty"`
	Schedule             string `yaml:"schedule,omitempty"`
}

// Parameters resolves the overrides against the defaults.
func (p *ParamsSpec) Parameters() params.Parameters {
	out := params.Default()
	if p == nil {
		return out
	}
	if p.MaxPasses != 0 {
		out.MaxPasses = p.MaxPasses
	}
	if p.ConvergenceThreshold != 0 {
		out.ConvergenceThreshold = p.ConvergenceThreshold
	}
	if p.Schedule != "" {
		out.Schedule = p.Schedule
	}
	return out
}

// ExpectClause specifies the expected session result.
// Pointer fields are subset-matched: nil means "don't check".
type ExpectClause struct {
	// Outcome is "converged" or "failed".
	Outcome string `yaml:"outcome"`

	// Reason is the expected failure code (failed outcomes only).
	Reason string `yaml:"reason,omitempty"`

	// Corrections is the exact expected correction count.
	Corrections *int `yaml:"corrections,omitempty"`

	// Passes is the exact expected pass count.
	Passes *int `yaml:"passes,omitempty"`

	// MaxLeakedBits caps the leaked-bit count. Zero means unchecked.
	MaxLeakedBits int `yaml:"max_leaked_bits,omitempty"`

	// KeysEqual checks whether the corrected working key equals the
	// reference bit-for-bit.
	KeysEqual *bool `yaml:"keys_equal,omitempty"`
}

// Assertion validates the transcript or the stored run record.
type Assertion struct {
	// Type specifies the assertion type:
	// - "event_contains": Check event appears with matching fields
	// - "event_order": Check event types appear in order
	// - "event_count": Check event type appears exactly N times
	// - "run_state": Write the run record and verify column values
	Type string `yaml:"type"`

	// Event is the event type (used by event_contains, event_count).
	Event string `yaml:"event,omitempty"`

	// Pass, Block, Index narrow event_contains matches. Nil fields
	// match any value.
	Pass  *int `yaml:"pass,omitempty"`
	Block *int `yaml:"block,omitempty"`
	Index *int `yaml:"index,omitempty"`

	// Count is the expected number of occurrences (used by event_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected event type order (used by event_order).
	Events []string `yaml:"events,omitempty"`

	// Where specifies query filters (used by run_state).
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected column values (used by run_state).
	// Subset match - only specified columns are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertEventContains = "event_contains"
	AssertEventOrder    = "event_order"
	AssertEventCount    = "event_count"
	AssertRunState      = "run_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Keys.Reference == "" && s.Keys.Size == 0 {
		return fmt.Errorf("keys: either reference or size is required")
	}
	if s.Keys.Reference != "" && s.Keys.Size != 0 {
		return fmt.Errorf("keys: reference and size are mutually exclusive")
	}
	if s.Keys.Reference != "" {
		for i, c := range s.Keys.Reference {
			if c != '0' && c != '1' {
				return fmt.Errorf("keys.reference[%d]: invalid character %q", i, c)
			}
		}
	}
	if s.Keys.Size < 0 {
		return fmt.Errorf("keys.size must be non-negative")
	}

	if len(s.Errors.Positions) > 0 && s.Errors.Count != 0 {
		return fmt.Errorf("errors: positions and count are mutually exclusive")
	}
	if s.Errors.Count < 0 {
		return fmt.Errorf("errors.count must be non-negative")
	}
	keySize := len(s.Keys.Reference)
	if keySize == 0 {
		keySize = s.Keys.Size
	}
	for i, pos := range s.Errors.Positions {
		if pos < 0 || pos >= keySize {
			return fmt.Errorf("errors.positions[%d]: index %d out of range [0, %d)", i, pos, keySize)
		}
	}

	if s.ErrorRate <= 0 || s.ErrorRate >= 1 {
		return fmt.Errorf("error_rate must be in (0, 1), got %v", s.ErrorRate)
	}

	if err := s.Params.Parameters().Validate(); err != nil {
		return fmt.Errorf("params: %w", err)
	}

	if s.Expect != nil {
		switch s.Expect.Outcome {
		case "converged", "failed":
		case "":
			return fmt.Errorf("expect: outcome is required")
		default:
			return fmt.Errorf("expect: unknown outcome %q", s.Expect.Outcome)
		}
		if s.Expect.MaxLeakedBits < 0 {
			return fmt.Errorf("expect: max_leaked_bits must be non-negative")
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEventContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_contains", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertRunState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for run_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
