// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package report summarizes a finished run: clock jitter, dropped samples
// and the grip force at every perturbation onset.
package report

import (
	"fmt"
	"io"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Onset is the state of the subject when a perturbation started.
type Onset struct {
	Trial     int     `json:"trial"`
	Scheduled float64 `json:"scheduled"` // planned start, seconds
	Elapsed   float64 `json:"elapsed"`   // actual start, seconds
	Filtered  float64 `json:"filtered"`
	Magnitude float64 `json:"magnitude"`
}

// Latency is how late the onset fired relative to the timetable.
func (o Onset) Latency() float64 { return o.Elapsed - o.Scheduled }

// Collector accumulates run statistics. Add methods are called from the
// control loop; Summary may be called from another goroutine.
type Collector struct {
	mu        sync.Mutex
	intervals []float64
	onsets    []Onset
	missed    int64
	dropped   int64
}

// NewCollector sizes the interval buffer for an expected tick count.
func NewCollector(expectedTicks int) *Collector {
	if expectedTicks < 0 {
		expectedTicks = 0
	}
	return &Collector{intervals: make([]float64, 0, expectedTicks)}
}

// AddTick records one measured tick interval in seconds.
func (c *Collector) AddTick(interval float64, missed int64) {
	c.mu.Lock()
	c.intervals = append(c.intervals, interval)
	c.missed += missed
	c.mu.Unlock()
}

// AddDropped counts a sample the device failed to deliver.
func (c *Collector) AddDropped() {
	c.mu.Lock()
	c.dropped++
	c.mu.Unlock()
}

// AddOnset records a perturbation start.
func (c *Collector) AddOnset(o Onset) {
	c.mu.Lock()
	c.onsets = append(c.onsets, o)
	c.mu.Unlock()
}

// Summary is the digest of a run.
type Summary struct {
	Ticks        int     `json:"ticks"`
	MeanInterval float64 `json:"mean_interval"`
	StdInterval  float64 `json:"std_interval"`
	MinInterval  float64 `json:"min_interval"`
	MaxInterval  float64 `json:"max_interval"`
	Missed       int64   `json:"missed"`
	Dropped      int64   `json:"dropped"`

	Onsets         []Onset `json:"onsets"`
	MeanOnsetForce float64 `json:"mean_onset_force"`
	MaxLatency     float64 `json:"max_latency"`
}

// Summary computes the digest of everything collected so far.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		Ticks:   len(c.intervals),
		Missed:  c.missed,
		Dropped: c.dropped,
		Onsets:  append([]Onset(nil), c.onsets...),
	}
	if len(c.intervals) > 0 {
		s.MeanInterval, s.StdInterval = stat.MeanStdDev(c.intervals, nil)
		s.MinInterval = floats.Min(c.intervals)
		s.MaxInterval = floats.Max(c.intervals)
		if len(c.intervals) == 1 {
			s.StdInterval = 0
		}
	}
	if len(c.onsets) > 0 {
		forces := make([]float64, len(c.onsets))
		latencies := make([]float64, len(c.onsets))
		for i, o := range c.onsets {
			forces[i] = o.Filtered
			latencies[i] = o.Latency()
		}
		s.MeanOnsetForce = stat.Mean(forces, nil)
		s.MaxLatency = floats.Max(latencies)
	}
	return s
}

// Write prints a human readable summary.
func (s Summary) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"ticks: %d  interval mean %.6f s  std %.6f s  min %.6f s  max %.6f s\n"+
			"missed periods: %d  dropped samples: %d\n",
		s.Ticks, s.MeanInterval, s.StdInterval, s.MinInterval, s.MaxInterval, s.Missed, s.Dropped)
	if err != nil {
		return err
	}
	for _, o := range s.Onsets {
		if _, err := fmt.Fprintf(w, "trial %2d  onset %.4f s (+%.4f)  force %.4f V  magnitude %.4f\n",
			o.Trial, o.Elapsed, o.Latency(), o.Filtered, o.Magnitude); err != nil {
			return err
		}
	}
	if len(s.Onsets) > 0 {
		_, err = fmt.Fprintf(w, "mean onset force %.4f V  max onset latency %.4f s\n", s.MeanOnsetForce, s.MaxLatency)
	}
	return err
}
