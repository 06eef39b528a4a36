// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"math"
	"sync"
)

// Mock is a synthetic DAQ for running without hardware. The grip channel
// holds a configurable level with a slow sway; the other channels carry a
// small deterministic EMG-like signal.
type Mock struct {
	mu       sync.Mutex
	channels int
	grip     int
	level    float64
	sway     float64
	n        int64
	closed   bool
}

// NewMock returns a mock device whose grip channel sways around level.
func NewMock(channels, grip int, level float64) *Mock {
	return &Mock{channels: channels, grip: grip, level: level, sway: level * 0.05}
}

// NewConstantMock returns a mock whose grip channel is exactly level and
// whose other channels are zero.
func NewConstantMock(channels, grip int, level float64) *Mock {
	return &Mock{channels: channels, grip: grip, level: level}
}

// SetLevel changes the grip level for subsequent reads.
func (m *Mock) SetLevel(level float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = level
}

// Read returns the next synthetic sample.
func (m *Mock) Read(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]float64, m.channels)
	phase := float64(m.n) / 1000 // seconds at 1 kHz
	for ch := range out {
		if ch == m.grip {
			out[ch] = m.level + m.sway*math.Sin(2*math.Pi*0.5*phase)
			continue
		}
		if m.sway != 0 {
			out[ch] = 0.001 * math.Sin(2*math.Pi*float64(40+10*ch)*phase)
		}
	}
	m.n++
	return out, nil
}

// Channels returns the channel count.
func (m *Mock) Channels() int { return m.channels }

// Close marks the device closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
