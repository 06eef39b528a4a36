package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepCounter advances by a fixed number of counts on every read.
type stepCounter struct {
	now  int64
	step int64
	freq int64
}

func (c *stepCounter) Count() int64 {
	v := c.now
	c.now += c.step
	return v
}

func (c *stepCounter) Frequency() int64 { return c.freq }

// scriptCounter returns scripted values, then keeps advancing by one count.
type scriptCounter struct {
	values []int64
	i      int
	freq   int64
}

func (c *scriptCounter) Count() int64 {
	if c.i < len(c.values) {
		v := c.values[c.i]
		c.i++
		return v
	}
	c.values[len(c.values)-1]++
	return c.values[len(c.values)-1]
}

func (c *scriptCounter) Frequency() int64 { return c.freq }

func TestNewDriverValidates(t *testing.T) {
	c := &stepCounter{step: 1, freq: 1_000_000}
	_, err := NewDriver(c, 0, 0.1)
	assert.Error(t, err)
	_, err = NewDriver(c, time.Millisecond, 0)
	assert.Error(t, err)
	_, err = NewDriver(c, time.Millisecond, 1.5)
	assert.Error(t, err)
	_, err = NewDriver(c, time.Nanosecond, 0.1)
	assert.Error(t, err)
}

func TestDriverFiresOncePerPeriod(t *testing.T) {
	// 1 MHz counter polled every 7 counts: many polls land inside each
	// 100-count window, but only the first may fire.
	c := &stepCounter{step: 7, freq: 1_000_000}
	d, err := NewDriver(c, time.Millisecond, DefaultTolerance)
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, d.Period())

	ctx := context.Background()
	var total float64
	for i := 1; i <= 100; i++ {
		tick, err := d.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(i), tick.Seq)
		assert.Zero(t, tick.Missed)
		assert.InDelta(t, 0.001, tick.Interval, 0.0001)
		total += tick.Interval
	}
	// Measured intervals telescope: no drift against the counter.
	assert.InDelta(t, 0.1, total, 0.0001)
	assert.Zero(t, d.Missed())
}

func TestDriverDiscardsFirstFireAndUsesMeasuredInterval(t *testing.T) {
	// Period 1000 counts, window 100. Seed at 5, then a late poll at 2030
	// inside period 2 (period 1 was missed), then 3001.
	c := &scriptCounter{values: []int64{5, 1500, 2030, 3001}, freq: 1_000_000}
	d, err := NewDriver(c, time.Millisecond, 0.1)
	require.NoError(t, err)

	tick, err := d.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), tick.Seq)
	assert.InDelta(t, 0.002025, tick.Interval, 1e-12)
	assert.Equal(t, int64(1), tick.Missed)

	tick, err = d.Next(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.000971, tick.Interval, 1e-12)
	assert.Zero(t, tick.Missed)
	assert.Equal(t, int64(1), d.Missed())
}

func TestDriverHonoursCancellation(t *testing.T) {
	// Counter never reaches a window again after seeding.
	c := &stepCounter{step: 0, now: 500, freq: 1_000_000}
	d, err := NewDriver(c, time.Millisecond, 0.1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Next(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMonotonicCounterDriver(t *testing.T) {
	if testing.Short() {
		t.Skip("busy-polls the real clock")
	}
	d, err := NewDriver(NewMonotonicCounter(), time.Millisecond, DefaultTolerance)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var elapsed float64
	for i := 0; i < 20; i++ {
		tick, err := d.Next(ctx)
		require.NoError(t, err)
		assert.Greater(t, tick.Interval, 0.0)
		elapsed += tick.Interval
	}
	assert.GreaterOrEqual(t, elapsed, 0.019)
}

func TestSynthetic(t *testing.T) {
	ctx := context.Background()
	s := NewSynthetic(0.001, 3)
	for i := 1; i <= 3; i++ {
		tick, err := s.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(i), tick.Seq)
		assert.Equal(t, 0.001, tick.Interval)
	}
	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, ErrExhausted)

	s = NewSyntheticIntervals(0.5, 0.25)
	tick, _ := s.Next(ctx)
	assert.Equal(t, 0.5, tick.Interval)
	tick, _ = s.Next(ctx)
	assert.Equal(t, 0.25, tick.Interval)
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, ErrExhausted)

	ctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewSynthetic(0.001, -1).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
