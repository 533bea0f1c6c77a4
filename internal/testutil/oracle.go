// Package testutil provides deterministic helpers shared by tests.
package testutil

import (
	"context"
	"errors"

	"github.com/qkdtools/cascade/internal/channel"
)

// ErrChannelDown is the cause FailingOracle reports.
var ErrChannelDown = errors.New("classical channel down")

// FailingOracle wraps an Oracle and fails every query once FailAfter
// answers have been served. FailAfter of 0 fails immediately.
//
// Used to exercise channel-failure paths deterministically.
type FailingOracle struct {
	Inner     channel.Oracle
	FailAfter int

	calls int
}

// QueryParity implements channel.Oracle.
func (o *FailingOracle) QueryParity(ctx context.Context, q channel.ParityQuery) (channel.ParityAnswer, error) {
	if o.calls >= o.FailAfter {
		return channel.ParityAnswer{}, &channel.ChannelError{Op: "query_parity", Err: ErrChannelDown}
	}
	o.calls++
	return o.Inner.QueryParity(ctx, q)
}

// CountingOracle wraps an Oracle and counts answered queries.
type CountingOracle struct {
	Inner channel.Oracle
	Calls int
}

// QueryParity implements channel.Oracle.
func (o *CountingOracle) QueryParity(ctx context.Context, q channel.ParityQuery) (channel.ParityAnswer, error) {
	a, err := o.Inner.QueryParity(ctx, q)
	if err == nil {
		o.Calls++
	}
	return a, err
}
