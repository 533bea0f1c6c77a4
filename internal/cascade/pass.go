package cascade

import (
	"context"

	"github.com/qkdtools/cascade/internal/shuffle"
)

// runPass executes one pass end-to-end: derive the permutation,
// partition into blocks, compare parities, correct odd blocks, and let
// every correction cascade into earlier passes until the work-queue
// reaches a fixed point.
func (s *Session) runPass(ctx context.Context, pass int) error {
	n := s.working.Size()

	blockSize, err := s.params.BlockSize(s.errorRate, pass, n)
	if err != nil {
		return newDesync(pass, "%v", err)
	}
	sh, err := shuffle.New(s.seed, pass, n)
	if err != nil {
		return newDesync(pass, "%v", err)
	}

	// Blocks partition all n positions exactly once; the final block is
	// short when n is not a multiple of the block size, and is checked
	// like any other.
	info := passInfo{shuffle: sh, blockSize: blockSize}
	for start := 0; start < n; start += blockSize {
		end := min(start+blockSize, n)
		id := s.tracker.AddBlock(pass, start, end, sh.Indices(start, end))
		info.blocks = append(info.blocks, id)
	}
	s.passes = append(s.passes, info)

	s.trace(TraceEvent{
		Type:      EventPassStart,
		Pass:      pass,
		BlockSize: blockSize,
	})

	for _, id := range info.blocks {
		if err := s.verifyBlock(ctx, id); err != nil {
			return err
		}
		if err := s.drainQueue(ctx); err != nil {
			return err
		}
	}

	// The per-block drain already reached the fixed point; anything
	// left here is a defect.
	if s.tracker.PendingLen() != 0 {
		return newDesync(pass, "work-queue not drained at pass end (%d pending)", s.tracker.PendingLen())
	}
	return nil
}

// drainQueue re-verifies queued blocks until the queue is empty.
// Corrections made while draining may enqueue further blocks; the loop
// runs until the fixed point. Termination is guaranteed because every
// flip fixes a genuine mismatch, so the number of differing bits
// strictly decreases with each correction.
func (s *Session) drainQueue(ctx context.Context) error {
	for {
		id, ok := s.tracker.Dequeue()
		if !ok {
			return nil
		}
		if err := s.verifyBlock(ctx, id); err != nil {
			return err
		}
	}
}
