package cascade

import "fmt"

// block is one parity-checked unit: a contiguous range of shuffled
// positions within one pass. Blocks live in the Tracker's flat arena
// and are addressed by integer id everywhere; nothing holds a pointer
// to a block across calls, so corrections rippling between passes never
// traverse an object graph.
//
// refParity caches the answered reference parity. It never goes stale:
// the Reference key is immutable, so a block's reference parity is
// fixed once queried. The working parity is always recomputed against
// the current Working key instead of being cached.
type block struct {
	id    int
	pass  int
	start int // shuffled range [start, end)
	end   int

	refParity bool
	refKnown  bool
}

func (b *block) size() int {
	return b.end - b.start
}

// Tracker maintains, for every logical key index, the blocks it belongs
// to across all passes, plus the FIFO work-queue of blocks pending
// re-verification after a correction.
//
// Invariants:
//   - every registered block's id is its arena position
//   - a block is never queued twice (queued set, cleared on dequeue)
type Tracker struct {
	blocks  []block
	byIndex [][]int // logical index -> block ids

	pending []int
	queued  map[int]bool
}

// NewTracker creates a tracker for keys of the given size.
func NewTracker(keySize int) *Tracker {
	return &Tracker{
		byIndex: make([][]int, keySize),
		queued:  make(map[int]bool),
	}
}

// AddBlock registers a new block covering the shuffled range
// [start, end) of a pass, with the given resolved logical indices.
// Returns the block's arena id.
func (t *Tracker) AddBlock(pass, start, end int, indices []int) int {
	id := len(t.blocks)
	t.blocks = append(t.blocks, block{
		id:    id,
		pass:  pass,
		start: start,
		end:   end,
	})
	for _, index := range indices {
		t.byIndex[index] = append(t.byIndex[index], id)
	}
	return id
}

// Block returns the arena block with the given id. An unknown id is an
// internal defect, reported rather than swallowed.
func (t *Tracker) Block(id int) (*block, error) {
	if id < 0 || id >= len(t.blocks) {
		return nil, fmt.Errorf("tracker: block id %d not in arena of %d", id, len(t.blocks))
	}
	return &t.blocks[id], nil
}

// BlocksContaining returns the ids of all blocks a logical index
// belongs to, in registration order (earlier passes first).
func (t *Tracker) BlocksContaining(index int) ([]int, error) {
	if index < 0 || index >= len(t.byIndex) {
		return nil, fmt.Errorf("tracker: index %d out of range [0, %d)", index, len(t.byIndex))
	}
	return t.byIndex[index], nil
}

// Enqueue adds a block to the re-verification queue. Returns false if
// the block is already queued.
func (t *Tracker) Enqueue(id int) bool {
	if t.queued[id] {
		return false
	}
	t.queued[id] = true
	t.pending = append(t.pending, id)
	return true
}

// Dequeue removes and returns the front of the queue.
func (t *Tracker) Dequeue() (int, bool) {
	if len(t.pending) == 0 {
		return 0, false
	}
	id := t.pending[0]
	t.pending = t.pending[1:]
	delete(t.queued, id)
	return id, true
}

// PendingLen returns the current queue length.
func (t *Tracker) PendingLen() int {
	return len(t.pending)
}

// BlockCount returns the number of registered blocks.
func (t *Tracker) BlockCount() int {
	return len(t.blocks)
}
