// Package harness provides conformance testing for reconciliation
// sessions.
//
// The harness loads scenario files, drives a full session over an
// in-process channel, and validates the resulting transcript and run
// record. Scenarios pin down protocol behavior that must not drift:
// which blocks are queried, how many bits leak, which index gets
// corrected.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	keys:
//	  reference: "0100101101"   # explicit bits, or:
//	  size: 256
//	  seed: 7
//	errors:
//	  positions: [3, 17]        # explicit flips, or:
//	  count: 5
//	  seed: 11
//	seed: 42                    # shared permutation seed
//	error_rate: 0.05
//	params:
//	  max_passes: 4
//	  convergence_threshold: 0
//	  schedule: original
//	expect:
//	  outcome: converged
//	  corrections: 2
//	  max_leaked_bits: 40
//	  keys_equal: true
//	assertions:
//	  - type: event_count
//	    event: correction
//	    count: 2
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - event_contains: Verifies an event appears in the transcript with
//     matching fields (subset match)
//   - event_order: Verifies event types appear in the given order
//   - event_count: Verifies an event type appears exactly N times
//   - run_state: Writes the run record to a fresh store and verifies
//     expected column values
//
// Transcripts can additionally be pinned byte-for-byte with golden
// files, see RunWithGolden.
package harness
