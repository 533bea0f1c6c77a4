// Package experiment compiles CUE experiment definitions and executes
// them as batches of reconciliation sessions.
//
// An experiment names a key size, an error model and session
// parameters, plus how many runs to perform. Each run reconciles a
// fresh random key pair with a derived seed, and its statistics are
// written to the results store.
//
// Definitions live in .cue files under an `experiment` struct:
//
//	experiment: baseline: {
//		key_size:   10000
//		error_rate: 0.05
//		errors:     500
//		runs:       20
//		seed:       42
//		params: {
//			max_passes:            4
//			convergence_threshold: 0
//			schedule:              "original"
//		}
//	}
//
// Compile turns one such CUE value into a Spec; Validate checks a Spec
// against schema rules and reports every violation with a stable error
// code; Execute runs the sessions.
package experiment
