// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package haptic

import (
	"sync"

	"github.com/relabs-tech/force_feedback/internal/actuation"
	"github.com/relabs-tech/force_feedback/internal/sample"
)

// Command is one call recorded by Mock.
type Command struct {
	Op        string // "start", "update" or "stop"
	Kind      actuation.EffectKind
	Params    actuation.EffectParams
	Gain      float64
	Magnitude float64
}

// Mock records every command. It is safe for concurrent use.
type Mock struct {
	mu       sync.Mutex
	commands []Command
	pos      sample.Vec3
	fail     error
	errs     []error
}

// NewMock returns an empty recorder.
func NewMock() *Mock { return &Mock{} }

func (m *Mock) record(c Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, c)
	return m.fail
}

// StartEffect records a start.
func (m *Mock) StartEffect(kind actuation.EffectKind, p actuation.EffectParams) error {
	return m.record(Command{Op: "start", Kind: kind, Params: p, Gain: p.Gain, Magnitude: p.Magnitude})
}

// UpdateEffect records an update.
func (m *Mock) UpdateEffect(gain, magnitude float64) error {
	return m.record(Command{Op: "update", Gain: gain, Magnitude: magnitude})
}

// StopEffect records a stop.
func (m *Mock) StopEffect() error {
	return m.record(Command{Op: "stop"})
}

// CurrentPosition returns the position set with SetPosition.
func (m *Mock) CurrentPosition() sample.Vec3 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}

// SetPosition sets the reported position.
func (m *Mock) SetPosition(p sample.Vec3) {
	m.mu.Lock()
	m.pos = p
	m.mu.Unlock()
}

// Fail makes every subsequent command return err (nil clears it).
func (m *Mock) Fail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

// InjectError queues an asynchronous engine error for DrainErrors.
func (m *Mock) InjectError(err error) {
	m.mu.Lock()
	m.errs = append(m.errs, err)
	m.mu.Unlock()
}

// DrainErrors returns and clears injected errors.
func (m *Mock) DrainErrors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	errs := m.errs
	m.errs = nil
	return errs
}

// Commands returns a copy of the recorded commands.
func (m *Mock) Commands() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Command(nil), m.commands...)
}

// Magnitudes returns the magnitude of every recorded update, in order.
func (m *Mock) Magnitudes() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []float64
	for _, c := range m.commands {
		if c.Op == "update" {
			out = append(out, c.Magnitude)
		}
	}
	return out
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }
