// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package filter holds the two running-average stages fed by the grip-force
// channel: the sliding-window force filter that drives actuation and the
// biofeedback classifier shown to the subject.
package filter

import (
	"fmt"
	"strings"

	"github.com/relabs-tech/force_feedback/internal/window"
)

// DefaultForceWindow is the number of samples averaged by the force filter.
const DefaultForceWindow = 50

// FillMode selects how the average is computed before the window is full.
type FillMode int

const (
	// FillGrowing divides by the number of samples seen so far.
	FillGrowing FillMode = iota
	// FillParity always divides by the window capacity, reproducing the
	// low startup average of the legacy recordings.
	FillParity
)

func (m FillMode) String() string {
	switch m {
	case FillGrowing:
		return "growing"
	case FillParity:
		return "parity"
	default:
		return fmt.Sprintf("FillMode(%d)", int(m))
	}
}

// ParseFillMode accepts "growing" or "parity".
func ParseFillMode(s string) (FillMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "growing", "":
		return FillGrowing, nil
	case "parity":
		return FillParity, nil
	default:
		return 0, fmt.Errorf("unknown fill mode %q (want growing or parity)", s)
	}
}

// ForceFilter is the sliding-window average of the grip-force channel.
type ForceFilter struct {
	ring *window.Ring
	mode FillMode
	avg  float64
}

// NewForceFilter returns a filter over size samples.
func NewForceFilter(size int, mode FillMode) (*ForceFilter, error) {
	ring, err := window.NewRing(size)
	if err != nil {
		return nil, fmt.Errorf("force filter: %w", err)
	}
	return &ForceFilter{ring: ring, mode: mode}, nil
}

// Update adds one raw sample and returns the filtered force.
func (f *ForceFilter) Update(raw float64) float64 {
	f.ring.Push(raw)

	div := f.ring.Len()
	if f.mode == FillParity {
		div = f.ring.Cap()
	}
	f.avg = f.ring.Sum() / float64(div)
	return f.avg
}

// Value is the last filtered force, 0 before the first Update.
func (f *ForceFilter) Value() float64 { return f.avg }

// Reference is the oldest raw sample still inside the window.
func (f *ForceFilter) Reference() float64 { return f.ring.Oldest() }

// Filling reports whether the window has not yet seen a full window of samples.
func (f *ForceFilter) Filling() bool { return !f.ring.Full() }
