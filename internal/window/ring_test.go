package window

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func newRing(t *testing.T, capacity int) *Ring {
	t.Helper()
	r, err := NewRing(capacity)
	require.NoError(t, err)
	return r
}

func TestNewRingRejectsNonPositiveCapacity(t *testing.T) {
	for _, c := range []int{0, -1} {
		_, err := NewRing(c)
		assert.Error(t, err, "capacity %d", c)
	}
}

func TestRingSumMatchesContents(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	r := newRing(t, 50)

	for i := 0; i < 5000; i++ {
		r.Push(rng.Float64()*10 - 5)
		want := floats.Sum(r.Values())
		require.InDelta(t, want, r.Sum(), 1e-9, "after push %d", i+1)
		require.Equal(t, min(i+1, 50), r.Len())
	}
}

func TestRingEvictsByPosition(t *testing.T) {
	r := newRing(t, 3)

	for _, v := range []float64{1, 2, 3} {
		_, evicted := r.Push(v)
		assert.False(t, evicted)
	}
	assert.True(t, r.Full())
	assert.Equal(t, 1.0, r.Oldest())

	// Duplicate values must not confuse eviction: the slot decides.
	old, evicted := r.Push(3)
	assert.True(t, evicted)
	assert.Equal(t, 1.0, old)

	old, _ = r.Push(7)
	assert.Equal(t, 2.0, old)

	if diff := cmp.Diff([]float64{3, 3, 7}, r.Values()); diff != "" {
		t.Errorf("Values() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 13.0, r.Sum())
	assert.Equal(t, int64(5), r.Seen())
	assert.Equal(t, 2, r.Cursor())
}

func TestRingOldestAndMeanDuringFill(t *testing.T) {
	r := newRing(t, 4)
	assert.Equal(t, 0.0, r.Oldest())
	assert.Equal(t, 0.0, r.Mean())

	r.Push(2)
	r.Push(4)
	assert.Equal(t, 2.0, r.Oldest())
	assert.Equal(t, 3.0, r.Mean())
	assert.Equal(t, []float64{2, 4}, r.Values())
}

func TestRingSumDoesNotDriftOverLongRuns(t *testing.T) {
	r := newRing(t, 25)

	// Large values between small ones make incremental add/subtract lose
	// the small ones' low bits.
	for i := 0; i < 200_000; i++ {
		if i%2 == 0 {
			r.Push(1e6)
		} else {
			r.Push(0.1)
		}
	}
	// Settle on a constant level and stop exactly on a wrap.
	for i := 0; i < 25; i++ {
		r.Push(0.0389)
	}
	require.Equal(t, 0, r.Cursor())
	assert.Equal(t, floats.Sum(r.Values()), r.Sum())
	assert.InDelta(t, 0.0389, r.Mean(), 1e-15)
}
