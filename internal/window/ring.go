// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package window provides the fixed-capacity circular buffers used by the
// force filter and the biofeedback classifier.
package window

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Ring is a fixed-capacity circular buffer of float64 samples that keeps a
// running sum of its contents.
//
// Until the ring has seen Cap() samples it only grows. After that every Push
// overwrites the slot at the cursor, so the evicted value is always the oldest
// one by position. Sum() equals the sum of the current contents after every
// Push. The sum is recomputed from the contents each time the full ring
// wraps, so incremental rounding never builds up over a long run.
type Ring struct {
	buf    []float64
	cursor int   // next slot to write
	seen   int64 // total samples pushed
	sum    float64
}

// NewRing returns an empty ring with the given capacity.
func NewRing(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("window: capacity must be positive, got %d", capacity)
	}
	return &Ring{buf: make([]float64, capacity)}, nil
}

// Push inserts v. When the ring was already full it returns the value it
// overwrote and evicted=true.
func (r *Ring) Push(v float64) (old float64, evicted bool) {
	if r.Full() {
		old = r.buf[r.cursor]
		evicted = true
		r.sum -= old
	}
	r.buf[r.cursor] = v
	r.sum += v
	r.seen++

	r.cursor++
	if r.cursor == len(r.buf) {
		r.cursor = 0
		r.resum()
	}
	return old, evicted
}

// Sum is the running sum of the current contents.
func (r *Ring) Sum() float64 { return r.sum }

// Cap is the fixed capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Len is the number of samples currently held: min(Seen, Cap).
func (r *Ring) Len() int {
	if r.seen >= int64(len(r.buf)) {
		return len(r.buf)
	}
	return int(r.seen)
}

// Seen is the total number of samples ever pushed.
func (r *Ring) Seen() int64 { return r.seen }

// Full reports whether the ring holds Cap() samples.
func (r *Ring) Full() bool { return r.seen >= int64(len(r.buf)) }

// Cursor is the slot the next Push writes to.
func (r *Ring) Cursor() int { return r.cursor }

// Oldest returns the oldest sample still held, or 0 when empty.
func (r *Ring) Oldest() float64 {
	switch {
	case r.seen == 0:
		return 0
	case r.Full():
		return r.buf[r.cursor]
	default:
		return r.buf[0]
	}
}

// Mean is Sum()/Len(), or 0 when empty.
func (r *Ring) Mean() float64 {
	n := r.Len()
	if n == 0 {
		return 0
	}
	return r.sum / float64(n)
}

// Values returns the contents oldest first.
func (r *Ring) Values() []float64 {
	n := r.Len()
	out := make([]float64, 0, n)
	if !r.Full() {
		return append(out, r.buf[:n]...)
	}
	out = append(out, r.buf[r.cursor:]...)
	return append(out, r.buf[:r.cursor]...)
}

// resum recomputes the running sum from the contents.
func (r *Ring) resum() {
	r.sum = floats.Sum(r.buf[:r.Len()])
}
