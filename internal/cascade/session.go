package cascade

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/qkdtools/cascade/internal/channel"
	"github.com/qkdtools/cascade/internal/key"
	"github.com/qkdtools/cascade/internal/params"
	"github.com/qkdtools/cascade/internal/shuffle"
)

// State is the lifecycle state of a session.
type State string

const (
	// StateInitializing: created, no pass started.
	StateInitializing State = "initializing"
	// StateRunning: executing passes.
	StateRunning State = "running"
	// StateConverged: reconciliation finished, key usable.
	StateConverged State = "converged"
	// StateFailed: reconciliation failed, key unusable.
	StateFailed State = "failed"
)

// Outcome tags the final result of a session.
type Outcome string

const (
	// OutcomeConverged means the Working key matches the Reference key
	// with overwhelming probability.
	OutcomeConverged Outcome = "converged"
	// OutcomeFailed means no usable key was produced; the caller must
	// discard the session and restart upstream.
	OutcomeFailed Outcome = "failed"
)

// Config assembles the inputs of one reconciliation attempt.
type Config struct {
	// Reference is the Initiator's error-free key view. Never mutated.
	Reference *key.Key

	// Working is the Responder's noisy key view, corrected in place.
	Working *key.Key

	// Oracle is the classical channel. When nil, an in-process oracle
	// over Reference is used (the mock-channel setup experiments run).
	Oracle channel.Oracle

	// Seed is the shared permutation seed both parties agreed on
	// before pass 1.
	Seed int64

	// ErrorRate is the initial quantum bit error rate estimate,
	// in (0, 1). Seeds the pass-1 block size.
	ErrorRate float64

	// Params is the termination and schedule configuration.
	Params params.Parameters

	// SessionID overrides the generated session id (tests, replay).
	SessionID string

	// Recorder receives the protocol transcript. Optional.
	Recorder Recorder
}

// Session is one reconciliation attempt: a single sequential state
// machine owning both key views, the pass list, the tracker and the
// leak counter. A session is used once and discarded; aborting
// mid-session leaves the Working key unusable.
type Session struct {
	id        string
	reference *key.Key
	working   *key.Key
	oracle    channel.Oracle
	seed      int64
	errorRate float64
	params    params.Parameters
	recorder  Recorder

	state   State
	clock   *Clock
	tracker *Tracker
	budget  *callBudget
	passes  []passInfo

	leaked      int
	corrections int
}

// passInfo retains one completed (or in-progress) pass. Passes are
// never discarded: later corrections must still reach their blocks.
type passInfo struct {
	shuffle   *shuffle.Shuffle
	blockSize int
	blocks    []int // arena ids, in permuted order
}

// Result is what a finished session exposes to the caller.
type Result struct {
	SessionID string

	// Outcome tags the result; Reason carries the failure code when
	// Outcome is OutcomeFailed.
	Outcome Outcome
	Reason  ErrorCode

	// Key is the reconciled key. Set only on OutcomeConverged.
	Key *key.Key

	// LeakedBits counts every parity bit disclosed over the channel.
	// Required input to privacy amplification.
	LeakedBits int

	// Corrections counts the Working-key bits flipped.
	Corrections int

	// Passes is the number of passes executed.
	Passes int
}

// New validates the configuration and creates a session in
// StateInitializing. Key views of different lengths are rejected here,
// before any pass can run.
func New(cfg Config) (*Session, error) {
	if cfg.Reference == nil || cfg.Working == nil {
		return nil, fmt.Errorf("cascade: both key views are required")
	}
	if cfg.Reference.Size() != cfg.Working.Size() {
		return nil, newInvalidKeyLength(cfg.Reference.Size(), cfg.Working.Size())
	}
	if cfg.Reference.Size() == 0 {
		return nil, fmt.Errorf("cascade: empty key")
	}
	if cfg.ErrorRate <= 0 || cfg.ErrorRate >= 1 {
		return nil, fmt.Errorf("cascade: error rate estimate %v not in (0, 1)", cfg.ErrorRate)
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}

	oracle := cfg.Oracle
	if oracle == nil {
		oracle = channel.NewLocal(channel.NewResponder(cfg.Reference))
	}
	id := cfg.SessionID
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}

	n := cfg.Working.Size()
	return &Session{
		id:        id,
		reference: cfg.Reference,
		working:   cfg.Working,
		oracle:    oracle,
		seed:      cfg.Seed,
		errorRate: cfg.ErrorRate,
		params:    cfg.Params,
		recorder:  cfg.Recorder,
		state:     StateInitializing,
		clock:     NewClock(),
		tracker:   NewTracker(n),
		budget:    newCallBudget(cfg.Params.MaxPasses, n),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// LeakedBits returns the bits disclosed so far.
func (s *Session) LeakedBits() int {
	return s.leaked
}

// Run executes passes until convergence or failure and returns the
// tagged result. On failure the returned error carries the same code as
// Result.Reason; the Working key is then in an indeterminate state and
// must be discarded together with the session.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	if s.state != StateInitializing {
		return nil, newDesync(len(s.passes), "session run twice (state %s)", s.state)
	}
	s.state = StateRunning

	residual := 0
	for pass := 1; pass <= s.params.MaxPasses; pass++ {
		before := s.corrections
		if err := s.runPass(ctx, pass); err != nil {
			return s.fail(err), err
		}
		residual = s.corrections - before
		s.trace(TraceEvent{
			Type:        EventPassEnd,
			Pass:        pass,
			Corrections: s.corrections,
			Leaked:      s.leaked,
		})

		// The residual error estimate after a pass is the number of
		// corrections the pass produced. Pass 1 alone never satisfies
		// it: its blocks are the smallest and an even error count
		// inside a block is invisible, so a convergence claim needs
		// confirmation by a pass with an independent permutation.
		if pass >= 2 && residual <= s.params.ConvergenceThreshold {
			return s.converge(), nil
		}
	}

	err := newExhaustedPasses(s.params.MaxPasses, residual)
	return s.fail(err), err
}

func (s *Session) converge() *Result {
	s.state = StateConverged
	s.trace(TraceEvent{
		Type:        EventOutcome,
		Outcome:     string(OutcomeConverged),
		Leaked:      s.leaked,
		Corrections: s.corrections,
	})
	return &Result{
		SessionID:   s.id,
		Outcome:     OutcomeConverged,
		Key:         s.working,
		LeakedBits:  s.leaked,
		Corrections: s.corrections,
		Passes:      len(s.passes),
	}
}

func (s *Session) fail(err error) *Result {
	s.state = StateFailed
	reason := CodeOf(err)
	s.trace(TraceEvent{
		Type:        EventOutcome,
		Outcome:     string(OutcomeFailed),
		Reason:      string(reason),
		Leaked:      s.leaked,
		Corrections: s.corrections,
	})
	return &Result{
		SessionID:   s.id,
		Outcome:     OutcomeFailed,
		Reason:      reason,
		LeakedBits:  s.leaked,
		Corrections: s.corrections,
		Passes:      len(s.passes),
	}
}

// queryParity is the single point where parity bits cross the channel.
// Every call increments the leak counter by exactly one; parities
// derived locally by XOR never pass through here.
func (s *Session) queryParity(ctx context.Context, pass, blockID int, indices []int) (bool, error) {
	if err := s.budget.spend(); err != nil {
		return false, newDesync(pass, "%v", err)
	}
	a, err := s.oracle.QueryParity(ctx, channel.ParityQuery{
		Pass:    pass,
		BlockID: blockID,
		Indices: indices,
	})
	if err != nil {
		return false, newChannelError(pass, err)
	}
	s.leaked++
	s.trace(TraceEvent{
		Type:      EventParityQuery,
		Pass:      pass,
		Block:     blockID,
		BlockSize: len(indices),
		Parity:    a.Parity,
		Leaked:    s.leaked,
	})
	return a.Parity, nil
}

// trace stamps and emits one event. The clock advances even without a
// recorder so that seq numbers are identical with and without tracing.
func (s *Session) trace(e TraceEvent) {
	e.Seq = s.clock.Next()
	if s.recorder != nil {
		s.recorder.Record(e)
	}
}

// shuffleFor resolves the permutation of a pass ordinal.
func (s *Session) shuffleFor(pass int) (*shuffle.Shuffle, error) {
	if pass < 1 || pass > len(s.passes) {
		return nil, newDesync(pass, "no shuffle for pass %d (%d passes)", pass, len(s.passes))
	}
	return s.passes[pass-1].shuffle, nil
}
