// Package key implements fixed-length bit-string keys.
//
// A Key is the unit of state that reconciliation operates on. Two views
// exist during a session: the Reference key (never mutated) and the
// Working key (corrected in place). Bits are addressed by a stable
// logical index in [0, Size).
package key

import (
	"fmt"
	"math/rand"
	"strings"
)

// Key is a fixed-length sequence of bits stored densely, one bit per
// position, least significant bit first within each byte.
//
// Key is not safe for concurrent mutation. A reconciliation session owns
// its key views exclusively, so no locking is provided.
type Key struct {
	size int
	bits []byte
}

// New creates an all-zero key of the given size.
// Size must be >= 0; an empty key is valid.
func New(size int) *Key {
	if size < 0 {
		panic(fmt.Sprintf("key: negative size %d", size))
	}
	return &Key{
		size: size,
		bits: make([]byte, (size+7)/8),
	}
}

// NewRandom creates a key of the given size with uniformly random bits.
//
// The same (size, seed) pair always produces the same key. This is what
// lets experiments and tests be reproduced exactly.
func NewRandom(size int, seed int64) *Key {
	k := New(size)
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < size; i++ {
		if rng.Intn(2) == 1 {
			k.SetBit(i, true)
		}
	}
	return k
}

// Parse creates a key from a string of '0' and '1' characters.
// Used by scenario files that spell out exact key contents.
func Parse(s string) (*Key, error) {
	k := New(len(s))
	for i, c := range s {
		switch c {
		case '0':
			// zero already
		case '1':
			k.SetBit(i, true)
		default:
			return nil, fmt.Errorf("key: invalid character %q at position %d", c, i)
		}
	}
	return k, nil
}

// Size returns the number of bits in the key.
func (k *Key) Size() int {
	return k.size
}

// Bit returns the bit at the given logical index.
func (k *Key) Bit(index int) bool {
	k.checkIndex(index)
	return k.bits[index/8]&(1<<(index%8)) != 0
}

// SetBit sets the bit at the given logical index.
func (k *Key) SetBit(index int, value bool) {
	k.checkIndex(index)
	if value {
		k.bits[index/8] |= 1 << (index % 8)
	} else {
		k.bits[index/8] &^= 1 << (index % 8)
	}
}

// FlipBit inverts the bit at the given logical index.
func (k *Key) FlipBit(index int) {
	k.checkIndex(index)
	k.bits[index/8] ^= 1 << (index % 8)
}

// Clone returns an independent copy of the key.
func (k *Key) Clone() *Key {
	c := New(k.size)
	copy(c.bits, k.bits)
	return c
}

// NoisyCopy returns a copy of the key with exactly errorCount bits
// flipped at positions chosen by the seeded generator. It models the
// noise a quantum channel introduces between the two sifted copies.
func (k *Key) NoisyCopy(errorCount int, seed int64) (*Key, error) {
	if errorCount < 0 || errorCount > k.size {
		return nil, fmt.Errorf("key: error count %d out of range [0, %d]", errorCount, k.size)
	}
	c := k.Clone()
	rng := rand.New(rand.NewSource(seed))
	for _, index := range rng.Perm(k.size)[:errorCount] {
		c.FlipBit(index)
	}
	return c, nil
}

// NoisyCopyRate returns a copy of the key where each bit is flipped
// independently with the given probability.
func (k *Key) NoisyCopyRate(rate float64, seed int64) (*Key, error) {
	if rate < 0 || rate > 1 {
		return nil, fmt.Errorf("key: error rate %v out of range [0, 1]", rate)
	}
	c := k.Clone()
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < k.size; i++ {
		if rng.Float64() < rate {
			c.FlipBit(i)
		}
	}
	return c, nil
}

// Parity returns the XOR of the bits at the given logical indices.
func (k *Key) Parity(indices []int) bool {
	parity := false
	for _, index := range indices {
		if k.Bit(index) {
			parity = !parity
		}
	}
	return parity
}

// Difference returns the Hamming distance between this key and other.
// Both keys must have the same size.
func (k *Key) Difference(other *Key) int {
	if k.size != other.size {
		panic(fmt.Sprintf("key: size mismatch %d != %d", k.size, other.size))
	}
	diff := 0
	for i := 0; i < k.size; i++ {
		if k.Bit(i) != other.Bit(i) {
			diff++
		}
	}
	return diff
}

// Equal reports whether both keys have identical size and bits.
func (k *Key) Equal(other *Key) bool {
	return k.size == other.size && k.Difference(other) == 0
}

// String renders the key as a '0'/'1' string, logical index 0 first.
func (k *Key) String() string {
	var b strings.Builder
	b.Grow(k.size)
	for i := 0; i < k.size; i++ {
		if k.Bit(i) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

func (k *Key) checkIndex(index int) {
	if index < 0 || index >= k.size {
		panic(fmt.Sprintf("key: index %d out of range [0, %d)", index, k.size))
	}
}
