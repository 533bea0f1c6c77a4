package cascade

import "context"

// verifyBlock checks one block's parity and, when it disagrees with the
// reference, locates and flips exactly one erroneous Working-key bit.
//
// A block whose parities agree is left untouched: an even number of
// errors (including zero) is invisible to a parity check and is not an
// error condition. Later passes with different permutations are the
// only mitigation.
func (s *Session) verifyBlock(ctx context.Context, id int) error {
	b, err := s.tracker.Block(id)
	if err != nil {
		return newDesync(len(s.passes), "%v", err)
	}
	sh, err := s.shuffleFor(b.pass)
	if err != nil {
		return err
	}

	if !b.refKnown {
		parity, err := s.queryParity(ctx, b.pass, b.id, sh.Indices(b.start, b.end))
		if err != nil {
			return err
		}
		b.refParity = parity
		b.refKnown = true
	}

	workParity := sh.Parity(s.working, b.start, b.end)
	if workParity == b.refParity {
		return nil
	}
	return s.correctOne(ctx, b.id)
}

// correctOne runs the binary search over an odd block. The bisection is
// an explicit loop over a shrinking shuffled range, bounded by
// ceil(log2(blockSize)) iterations.
//
// At each level only the left half's reference parity crosses the
// channel; the right half's is the XOR of the block parity and the left
// answer, which discloses nothing new and is not counted as leakage.
func (s *Session) correctOne(ctx context.Context, id int) error {
	b, err := s.tracker.Block(id)
	if err != nil {
		return newDesync(len(s.passes), "%v", err)
	}
	sh, err := s.shuffleFor(b.pass)
	if err != nil {
		return err
	}

	start, end := b.start, b.end
	refParity := b.refParity
	workParity := sh.Parity(s.working, start, end)
	if refParity == workParity {
		return newDesync(b.pass, "correcting even block %d [%d, %d)", id, start, end)
	}

	for end-start > 1 {
		mid := start + (end-start)/2

		leftRef, err := s.queryParity(ctx, b.pass, b.id, sh.Indices(start, mid))
		if err != nil {
			return err
		}
		leftWork := sh.Parity(s.working, start, mid)

		if leftRef != leftWork {
			end = mid
			refParity = leftRef
			workParity = leftWork
		} else {
			// Right half parities derived, not queried.
			refParity = refParity != leftRef
			workParity = workParity != leftWork
			start = mid
		}
	}

	index := sh.KeyIndex(start)
	s.working.FlipBit(index)
	s.corrections++
	s.trace(TraceEvent{
		Type:        EventCorrection,
		Pass:        b.pass,
		Block:       b.id,
		Index:       index,
		Corrections: s.corrections,
	})
	return s.propagate(index, b.id)
}

// propagate handles one correction event: every other block containing
// the flipped index whose cached reference parity now disagrees with
// its working parity joins the work-queue. Blocks of the current pass
// whose parity has not been queried yet are skipped here; the pass
// controller reaches them with a fresh query.
func (s *Session) propagate(index, correctedID int) error {
	ids, err := s.tracker.BlocksContaining(index)
	if err != nil {
		return newDesync(len(s.passes), "%v", err)
	}
	for _, id := range ids {
		if id == correctedID {
			continue
		}
		b, err := s.tracker.Block(id)
		if err != nil {
			return newDesync(len(s.passes), "%v", err)
		}
		if !b.refKnown {
			continue
		}
		sh, err := s.shuffleFor(b.pass)
		if err != nil {
			return err
		}
		if sh.Parity(s.working, b.start, b.end) != b.refParity {
			if s.tracker.Enqueue(id) {
				s.trace(TraceEvent{
					Type:  EventCascadeRequeue,
					Pass:  b.pass,
					Block: id,
					Index: index,
				})
			}
		}
	}
	return nil
}
