// Package cascade implements the Cascade information-reconciliation
// protocol.
//
// Reconciliation turns two noisy copies of a sifted key into identical
// bit-strings over an authenticated public channel, disclosing as few
// parity bits as possible. The package is the protocol core: permuted
// passes, parity comparison per block, binary search for single errors,
// and the cascading re-verification of earlier passes' blocks after
// every correction.
//
// ARCHITECTURE:
//
// Single sequential state machine:
// A Session processes one reconciliation end-to-end in the calling
// goroutine. The only suspension point is the parity oracle; everything
// else is deterministic local computation. This ensures:
//   - a fixed, permutation-determined block processing order
//   - a reproducible leak count and trace for identical inputs
//   - simple reasoning about the cascade fixed point
//
// Pass flow:
//  1. Derive the pass permutation from the shared seed (shuffle package).
//  2. Partition the permuted positions into blocks of the scheduled size.
//  3. For each block, query the reference parity and compare with the
//     locally computed working parity.
//  4. Bisect odd blocks down to a single position and flip it.
//  5. Every flip re-checks all registered blocks containing that
//     position; newly odd ones join a FIFO work-queue that is drained to
//     a fixed point before the pass completes.
//
// Blocks live in a flat arena addressed by integer id; the tracker maps
// logical positions to block ids. There are no object-graph cycles and
// no recursion in the propagation path.
//
// Every oracle call increments the session's leak counter by exactly
// one. Parities derived by XOR against a known parent parity are free.
// An oracle-call budget bounds the session; exceeding it indicates a
// defect, never a protocol event.
package cascade
