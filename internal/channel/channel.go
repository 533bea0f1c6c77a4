// Package channel abstracts the authenticated classical channel used
// during reconciliation.
//
// The only message exchanged is a parity query: the correcting side asks
// the holder of the Reference key for the parity of a set of logical
// indexes and gets a single bit back. Each answered query discloses
// exactly one bit of information about the key; accounting for that
// disclosure is the caller's job, not the channel's.
//
// Transport framing, authentication and ordering are assumed to be
// provided by the surrounding system. This package only defines the
// logical message shapes and an in-process implementation.
package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/qkdtools/cascade/internal/key"
)

// ParityQuery asks for the parity of the Reference key over a set of
// logical indexes. Pass and BlockID identify the block being checked;
// they are carried for transcripts and diagnostics, the answer depends
// only on Indices.
type ParityQuery struct {
	Pass    int
	BlockID int
	Indices []int
}

// ParityAnswer carries the single disclosed parity bit.
type ParityAnswer struct {
	Parity bool
}

// Oracle is the caller-side view of the classical channel.
//
// QueryParity blocks until the answer arrives or the channel fails. It is
// the only suspension point in the protocol. A failed query is fatal to
// the session; the channel performs no retries.
type Oracle interface {
	QueryParity(ctx context.Context, q ParityQuery) (ParityAnswer, error)
}

// ChannelError indicates that a parity query could not be completed.
// It is unrecoverable: the session owning the channel must be discarded.
type ChannelError struct {
	Op  string // operation that failed, e.g. "query_parity"
	Err error  // underlying cause (optional)
}

// Error implements the error interface.
func (e *ChannelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("channel: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("channel: %s failed", e.Op)
}

// Unwrap returns the underlying cause.
func (e *ChannelError) Unwrap() error {
	return e.Err
}

// IsChannelError reports whether err is (or wraps) a ChannelError.
func IsChannelError(err error) bool {
	var ce *ChannelError
	return errors.As(err, &ce)
}

// Responder answers parity queries over the Reference key: the party
// holding the error-free view serves parities so the side holding the
// noisy Working key can locate and fix its errors.
type Responder struct {
	reference *key.Key
}

// NewResponder creates a responder serving parities of the given key.
// The key is read, never mutated.
func NewResponder(reference *key.Key) *Responder {
	return &Responder{reference: reference}
}

// Answer computes the parity for one query. Indexes outside the key are
// a protocol violation and reported as an error rather than a panic,
// since they arrive from the peer.
func (r *Responder) Answer(q ParityQuery) (ParityAnswer, error) {
	for _, index := range q.Indices {
		if index < 0 || index >= r.reference.Size() {
			return ParityAnswer{}, fmt.Errorf("index %d out of range [0, %d)", index, r.reference.Size())
		}
	}
	return ParityAnswer{Parity: r.reference.Parity(q.Indices)}, nil
}

// Local is an in-process Oracle that connects directly to a Responder.
// It stands in for the real classical channel in experiments and tests,
// the way the original protocol is exercised against a mock channel.
type Local struct {
	responder *Responder

	// OnQuery, when set, observes every answered query in order.
	// Used for transcript capture; must not mutate the query.
	OnQuery func(q ParityQuery, a ParityAnswer)
}

// NewLocal creates a local oracle over the given responder.
func NewLocal(responder *Responder) *Local {
	return &Local{responder: responder}
}

// QueryParity implements Oracle.
func (l *Local) QueryParity(ctx context.Context, q ParityQuery) (ParityAnswer, error) {
	if err := ctx.Err(); err != nil {
		return ParityAnswer{}, &ChannelError{Op: "query_parity", Err: err}
	}
	a, err := l.responder.Answer(q)
	if err != nil {
		return ParityAnswer{}, &ChannelError{Op: "query_parity", Err: err}
	}
	if l.OnQuery != nil {
		l.OnQuery(q, a)
	}
	return a, nil
}
