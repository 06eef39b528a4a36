// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package filter

import (
	"fmt"

	"github.com/relabs-tech/force_feedback/internal/window"
)

const (
	// DefaultFeedbackWindow is the classifier's window size.
	DefaultFeedbackWindow = 25
	// DefaultFeedbackBand is the half-width of the target band around the
	// threshold.
	DefaultFeedbackBand = 0.004

	// boundaryTolerance absorbs rounding in sum/F so that a constant input
	// sitting exactly on a band edge lands on the side it belongs to. It is
	// applied to both edges and sits far below ADC resolution.
	boundaryTolerance = 1e-12
)

// Level is the coarse biofeedback signal.
type Level int

const (
	Unknown Level = iota // fewer than a full window of samples seen
	Below                // grip harder
	Within               // hold
	Above                // grip softer
)

func (l Level) String() string {
	switch l {
	case Below:
		return "below"
	case Within:
		return "within"
	case Above:
		return "above"
	default:
		return "unknown"
	}
}

// Symbol is the console cue shown to the subject.
func (l Level) Symbol() string {
	switch l {
	case Below:
		return "+++"
	case Within:
		return "-"
	case Above:
		return "---"
	default:
		return ""
	}
}

// Classifier maps a short running average of the raw grip force to a Level
// against the band [Threshold-Band, Threshold+Band).
type Classifier struct {
	ring      *window.Ring
	threshold float64
	band      float64
	avg       float64
}

// NewClassifier returns a classifier averaging size raw samples.
func NewClassifier(size int, threshold, band float64) (*Classifier, error) {
	if band < 0 {
		return nil, fmt.Errorf("classifier: band must be non-negative, got %g", band)
	}
	ring, err := window.NewRing(size)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	return &Classifier{ring: ring, threshold: threshold, band: band}, nil
}

// Update adds one raw sample. ok is false until a full window was seen, in
// which case the level is Unknown.
func (c *Classifier) Update(raw float64) (level Level, ok bool) {
	c.ring.Push(raw)
	if !c.ring.Full() {
		return Unknown, false
	}
	c.avg = c.ring.Sum() / float64(c.ring.Cap())
	return c.Classify(c.avg), true
}

// Classify maps an average to a level.
func (c *Classifier) Classify(avg float64) Level {
	lower := c.threshold - c.band
	upper := c.threshold + c.band
	switch {
	case avg < lower-boundaryTolerance:
		return Below
	case avg < upper-boundaryTolerance:
		return Within
	default:
		return Above
	}
}

// Average is the last window average, valid once Update returned ok.
func (c *Classifier) Average() float64 { return c.avg }
