package audioqueue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mono(vals ...float32) [Channels][]float32 {
	var p [Channels][]float32
	for c := range p {
		p[c] = append([]float32(nil), vals...)
	}
	return p
}

func TestPushPopFIFOOrder(t *testing.T) {
	q := New(16)
	q.Push(mono(1, 2, 3))
	q.Push(mono(4, 5))
	require.Equal(t, 5, q.Len())

	got := q.Pop(3)
	require.Equal(t, []float32{1, 2, 3}, got[0])
	require.Equal(t, []float32{1, 2, 3}, got[1])
	require.Equal(t, 2, q.Len())

	rest := q.Pop(10)
	require.Equal(t, []float32{4, 5}, rest[0])
	require.Equal(t, 0, q.Len())
}

func TestPopMoreThanAvailableReturnsWhatThereIs(t *testing.T) {
	q := New(16)
	q.Push(mono(9))
	got := q.Pop(5)
	require.Len(t, got[0], 1)
	require.Equal(t, 0, q.Len())
}

func TestTrimToMaxDiscardsOldest(t *testing.T) {
	q := New(16)
	q.Push(mono(1, 2, 3, 4, 5))
	q.TrimToMax(2)
	require.Equal(t, 2, q.Len())
	got := q.Peek(2)
	require.Equal(t, []float32{4, 5}, got[0])
}

func TestTrimToMaxNoOpWhenUnderCap(t *testing.T) {
	q := New(16)
	q.Push(mono(1, 2))
	q.TrimToMax(10)
	require.Equal(t, 2, q.Len())
}

func TestResetEmptiesQueue(t *testing.T) {
	q := New(16)
	q.Push(mono(1, 2, 3))
	q.Reset()
	require.Equal(t, 0, q.Len())
}

func TestDrainIntoMovesAllSamples(t *testing.T) {
	src := New(16)
	dst := New(16)
	src.Push(mono(1, 2, 3))
	dst.Push(mono(9))

	src.DrainInto(dst)
	require.Equal(t, 0, src.Len())
	require.Equal(t, 4, dst.Len())
	got := dst.Pop(4)
	require.Equal(t, []float32{9, 1, 2, 3}, got[0])
}

func TestDrainIntoEmptySourceIsNoOp(t *testing.T) {
	src := New(16)
	dst := New(16)
	dst.Push(mono(1))
	src.DrainInto(dst)
	require.Equal(t, 1, dst.Len())
}

func TestPushMismatchedChannelLengthsPanics(t *testing.T) {
	q := New(16)
	require.Panics(t, func() {
		q.Push([Channels][]float32{{1, 2}, {1}})
	})
}
