// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package clock drives the control loop at a fixed period.
//
// The real driver busy-polls a monotonic counter instead of sleeping: sleep
// granularity is too coarse for a 1 ms period, so the loop trades a CPU core
// for timing fidelity. Decision logic consumes ticks through Source, which
// lets tests feed synthetic intervals.
package clock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned by finite sources once every tick was delivered.
var ErrExhausted = errors.New("clock: source exhausted")

// Tick is one accepted period boundary.
type Tick struct {
	// Seq counts delivered ticks starting at 1.
	Seq int64
	// Interval is the measured time since the previous tick, in seconds.
	Interval float64
	// Missed is the number of period boundaries skipped before this one.
	Missed int64
}

// Source delivers ticks to the control loop.
type Source interface {
	// Next blocks until the next tick or until ctx is done.
	Next(ctx context.Context) (Tick, error)
}

// Counter is a monotonic high-resolution counter.
type Counter interface {
	// Count is the current counter value.
	Count() int64
	// Frequency is the number of counts per second.
	Frequency() int64
}

// MonotonicCounter counts nanoseconds on the runtime's monotonic clock.
type MonotonicCounter struct {
	start time.Time
}

// NewMonotonicCounter starts a counter at zero.
func NewMonotonicCounter() *MonotonicCounter {
	return &MonotonicCounter{start: time.Now()}
}

func (c *MonotonicCounter) Count() int64     { return int64(time.Since(c.start)) }
func (c *MonotonicCounter) Frequency() int64 { return int64(time.Second) }

// DefaultTolerance is the fraction of a period, measured from its boundary,
// inside which a poll fires the tick.
const DefaultTolerance = 0.1

// Driver is a busy-polling Source.
type Driver struct {
	counter      Counter
	periodCounts int64
	windowCounts int64
	freqCounts   int64

	seeded     bool
	lastCount  int64
	lastPeriod int64
	seq        int64
	missed     int64
}

// NewDriver returns a driver firing every period. tolerance is the fraction of
// the period after each boundary during which a poll is accepted.
func NewDriver(counter Counter, period time.Duration, tolerance float64) (*Driver, error) {
	if period <= 0 {
		return nil, fmt.Errorf("clock: period must be positive, got %v", period)
	}
	if tolerance <= 0 || tolerance > 1 {
		return nil, fmt.Errorf("clock: tolerance must be in (0, 1], got %g", tolerance)
	}
	freq := counter.Frequency()
	if freq <= 0 {
		return nil, fmt.Errorf("clock: counter frequency must be positive, got %d", freq)
	}
	periodCounts := int64(period) * freq / int64(time.Second)
	if periodCounts < 1 {
		return nil, fmt.Errorf("clock: period %v is below counter resolution (%d Hz)", period, freq)
	}
	windowCounts := int64(float64(periodCounts) * tolerance)
	if windowCounts < 1 {
		windowCounts = 1
	}
	return &Driver{
		counter:      counter,
		periodCounts: periodCounts,
		windowCounts: windowCounts,
		freqCounts:   freq,
	}, nil
}

// Next spins until a poll lands inside the tolerance window of a period that
// has not fired yet. The first such poll only seeds the reference count; the
// interval reported afterwards is the measured distance between fires, not
// the nominal period, so loop overhead never accumulates as drift.
func (d *Driver) Next(ctx context.Context) (Tick, error) {
	done := ctx.Done()
	for {
		select {
		case <-done:
			return Tick{}, ctx.Err()
		default:
		}

		now := d.counter.Count()
		period := now / d.periodCounts
		if now%d.periodCounts >= d.windowCounts {
			continue
		}
		if d.seeded && period <= d.lastPeriod {
			continue
		}

		if !d.seeded {
			d.seeded = true
			d.lastCount = now
			d.lastPeriod = period
			continue
		}

		var missed int64
		if skipped := period - d.lastPeriod - 1; skipped > 0 {
			missed = skipped
			d.missed += skipped
		}
		interval := float64(now-d.lastCount) / float64(d.freqCounts)
		d.lastCount = now
		d.lastPeriod = period
		d.seq++
		return Tick{Seq: d.seq, Interval: interval, Missed: missed}, nil
	}
}

// Missed is the total number of skipped period boundaries.
func (d *Driver) Missed() int64 { return d.missed }

// Period is the nominal period.
func (d *Driver) Period() time.Duration {
	return time.Duration(d.periodCounts * int64(time.Second) / d.freqCounts)
}
