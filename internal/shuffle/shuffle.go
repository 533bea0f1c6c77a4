// Package shuffle implements the deterministic per-pass permutations
// used by the reconciliation protocol.
//
// Both parties derive the permutation for every pass from a single shared
// seed exchanged before pass 1. A permutation is a pure function of
// (seed, pass, size): no state is carried between calls and no further
// communication is needed to agree on bit ordering.
package shuffle

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/qkdtools/cascade/internal/key"
)

// Shuffle is a bijection from shuffled positions to logical key indexes
// for one pass. Pass 1 keeps the original bit order; every later pass is
// a seeded random permutation, different per pass.
//
// A Shuffle is decoupled from any particular key: the same Shuffle is
// applied to the Reference key on one side and the Working key on the
// other, which is what keeps the two parties' block boundaries aligned.
type Shuffle struct {
	seed int64
	pass int
	toKeyIndex []int
}

// New derives the permutation for a pass. Same (seed, pass, size) always
// yields the same bijection, independent of process or call order.
//
// Pass numbering starts at 1; the first pass is the identity permutation,
// matching the convention that the initial block boundaries fall on the
// raw sifted key.
func New(seed int64, pass, size int) (*Shuffle, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shuffle: size must be positive, got %d", size)
	}
	if pass < 1 {
		return nil, fmt.Errorf("shuffle: pass must be >= 1, got %d", pass)
	}

	s := &Shuffle{
		seed:       seed,
		pass:       pass,
		toKeyIndex: make([]int, size),
	}
	for i := range s.toKeyIndex {
		s.toKeyIndex[i] = i
	}
	if pass > 1 {
		rng := rand.New(rand.NewSource(passSeed(seed, pass)))
		rng.Shuffle(size, func(i, j int) {
			s.toKeyIndex[i], s.toKeyIndex[j] = s.toKeyIndex[j], s.toKeyIndex[i]
		})
	}
	return s, nil
}

// passSeed mixes the shared seed with the pass counter so each pass gets
// an independent stream. Mixing constants are from splitmix64.
func passSeed(seed int64, pass int) int64 {
	z := uint64(seed) + uint64(pass)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return int64(z ^ (z >> 31))
}

// Size returns the number of positions covered by the shuffle.
func (s *Shuffle) Size() int {
	return len(s.toKeyIndex)
}

// Pass returns the pass ordinal the shuffle was derived for.
func (s *Shuffle) Pass() int {
	return s.pass
}

// KeyIndex maps a shuffled position to its logical key index.
func (s *Shuffle) KeyIndex(shuffleIndex int) int {
	return s.toKeyIndex[shuffleIndex]
}

// Indices returns the logical key indexes of the shuffled range
// [start, end). This is the index set a parity query discloses.
func (s *Shuffle) Indices(start, end int) []int {
	indices := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		indices = append(indices, s.toKeyIndex[i])
	}
	return indices
}

// Parity computes the parity of a key over the shuffled range [start, end).
func (s *Shuffle) Parity(k *key.Key, start, end int) bool {
	parity := false
	for i := start; i < end; i++ {
		if k.Bit(s.toKeyIndex[i]) {
			parity = !parity
		}
	}
	return parity
}

// FlipBit flips the key bit at a shuffled position.
func (s *Shuffle) FlipBit(k *key.Key, shuffleIndex int) {
	k.FlipBit(s.toKeyIndex[shuffleIndex])
}

// String renders the mapping as "0->3 1->1 ...", shuffled order first.
func (s *Shuffle) String() string {
	var b strings.Builder
	for i, ki := range s.toKeyIndex {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d->%d", i, ki)
	}
	return b.String()
}
