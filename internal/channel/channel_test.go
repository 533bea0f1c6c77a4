package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qkdtools/cascade/internal/key"
)

func TestResponder_Answer(t *testing.T) {
	k, err := key.Parse("0001000000")
	require.NoError(t, err)
	r := NewResponder(k)

	tests := []struct {
		name    string
		indices []int
		want    bool
	}{
		{"covers error bit", []int{0, 1, 2, 3, 4}, true},
		{"misses error bit", []int{5, 6, 7, 8, 9}, false},
		{"single set bit", []int{3}, true},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := r.Answer(ParityQuery{Pass: 1, BlockID: 0, Indices: tt.indices})
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Parity)
		})
	}
}

func TestResponder_RejectsOutOfRange(t *testing.T) {
	r := NewResponder(key.New(4))

	_, err := r.Answer(ParityQuery{Indices: []int{4}})
	assert.Error(t, err)

	_, err = r.Answer(ParityQuery{Indices: []int{-1}})
	assert.Error(t, err)
}

func TestLocal_QueryParity(t *testing.T) {
	k, err := key.Parse("1010")
	require.NoError(t, err)
	oracle := NewLocal(NewResponder(k))

	a, err := oracle.QueryParity(context.Background(), ParityQuery{Indices: []int{0, 1}})
	require.NoError(t, err)
	assert.True(t, a.Parity)
}

func TestLocal_OnQueryObservesInOrder(t *testing.T) {
	k, err := key.Parse("1111")
	require.NoError(t, err)
	oracle := NewLocal(NewResponder(k))

	var got []ParityQuery
	oracle.OnQuery = func(q ParityQuery, a ParityAnswer) {
		got = append(got, q)
	}

	_, err = oracle.QueryParity(context.Background(), ParityQuery{Pass: 1, BlockID: 0, Indices: []int{0}})
	require.NoError(t, err)
	_, err = oracle.QueryParity(context.Background(), ParityQuery{Pass: 1, BlockID: 1, Indices: []int{1}})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].BlockID)
	assert.Equal(t, 1, got[1].BlockID)
}

func TestLocal_CancelledContext(t *testing.T) {
	oracle := NewLocal(NewResponder(key.New(8)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := oracle.QueryParity(ctx, ParityQuery{Indices: []int{0}})
	require.Error(t, err)
	assert.True(t, IsChannelError(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLocal_OutOfRangeIsChannelError(t *testing.T) {
	oracle := NewLocal(NewResponder(key.New(4)))

	_, err := oracle.QueryParity(context.Background(), ParityQuery{Indices: []int{9}})
	require.Error(t, err)
	assert.True(t, IsChannelError(err))
}

func TestIsChannelError_PlainError(t *testing.T) {
	assert.False(t, IsChannelError(errors.New("boom")))
	assert.False(t, IsChannelError(nil))
}
