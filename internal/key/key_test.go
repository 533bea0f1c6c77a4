package key

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AllZero(t *testing.T) {
	k := New(12)

	assert.Equal(t, 12, k.Size())
	for i := 0; i < 12; i++ {
		assert.False(t, k.Bit(i), "bit %d should be zero", i)
	}
	assert.Equal(t, "000000000000", k.String())
}

func TestParse_RoundTrip(t *testing.T) {
	k, err := Parse("0001000000")
	require.NoError(t, err)

	assert.Equal(t, 10, k.Size())
	assert.True(t, k.Bit(3))
	assert.False(t, k.Bit(0))
	assert.Equal(t, "0001000000", k.String())
}

func TestParse_InvalidCharacter(t *testing.T) {
	_, err := Parse("0102")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "position 2")
}

func TestSetFlipBit(t *testing.T) {
	k := New(9)

	k.SetBit(8, true)
	assert.True(t, k.Bit(8))

	k.FlipBit(8)
	assert.False(t, k.Bit(8))

	k.FlipBit(0)
	assert.True(t, k.Bit(0))

	k.SetBit(0, false)
	assert.False(t, k.Bit(0))
}

func TestNewRandom_Deterministic(t *testing.T) {
	a := NewRandom(64, 42)
	b := NewRandom(64, 42)
	c := NewRandom(64, 43)

	assert.True(t, a.Equal(b), "same seed must produce same key")
	assert.False(t, a.Equal(c), "different seed should produce different key")
}

func TestClone_Independent(t *testing.T) {
	a := NewRandom(32, 7)
	b := a.Clone()
	require.True(t, a.Equal(b))

	b.FlipBit(5)
	assert.Equal(t, 1, a.Difference(b))
	assert.False(t, a.Equal(b))
}

func TestNoisyCopy_ExactErrorCount(t *testing.T) {
	k := NewRandom(100, 1)

	noisy, err := k.NoisyCopy(7, 99)
	require.NoError(t, err)
	assert.Equal(t, 7, k.Difference(noisy))

	again, err := k.NoisyCopy(7, 99)
	require.NoError(t, err)
	assert.True(t, noisy.Equal(again), "same noise seed must flip same positions")
}

func TestNoisyCopy_CountOutOfRange(t *testing.T) {
	k := New(4)

	_, err := k.NoisyCopy(5, 1)
	assert.Error(t, err)

	_, err = k.NoisyCopy(-1, 1)
	assert.Error(t, err)
}

func TestNoisyCopyRate_Bounds(t *testing.T) {
	k := NewRandom(50, 3)

	zero, err := k.NoisyCopyRate(0, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, k.Difference(zero))

	all, err := k.NoisyCopyRate(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 50, k.Difference(all))

	_, err = k.NoisyCopyRate(1.5, 1)
	assert.Error(t, err)
}

func TestParity(t *testing.T) {
	k, err := Parse("1101")
	require.NoError(t, err)

	tests := []struct {
		name    string
		indices []int
		want    bool
	}{
		{"empty", nil, false},
		{"single one", []int{0}, true},
		{"single zero", []int{2}, false},
		{"pair cancels", []int{0, 1}, false},
		{"odd count", []int{0, 1, 3}, true},
		{"whole key", []int{0, 1, 2, 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, k.Parity(tt.indices))
		})
	}
}

func TestBit_PanicsOutOfRange(t *testing.T) {
	k := New(4)
	assert.Panics(t, func() { k.Bit(4) })
	assert.Panics(t, func() { k.Bit(-1) })
}
