// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package samplelog

import (
	"sync"

	"github.com/relabs-tech/force_feedback/internal/sample"
	"github.com/relabs-tech/force_feedback/internal/trial"
)

// Memory keeps everything in memory. It backs the run report and tests.
type Memory struct {
	mu       sync.Mutex
	schedule trial.Schedule
	records  []sample.Record
	closed   bool

	// Every keeps one record out of Every (0 or 1 keeps all).
	Every int
	seen  int
}

// WriteSchedule stores s.
func (m *Memory) WriteSchedule(s trial.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedule = append(trial.Schedule(nil), s...)
	return nil
}

// WriteSample stores r.
func (m *Memory) WriteSample(r sample.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen++
	if m.Every > 1 && (m.seen-1)%m.Every != 0 {
		return nil
	}
	r.Channels = append([]float64(nil), r.Channels...)
	m.records = append(m.records, r)
	return nil
}

// Close marks the sink closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Schedule returns the stored timetable.
func (m *Memory) Schedule() trial.Schedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedule
}

// Records returns a copy of the stored records.
func (m *Memory) Records() []sample.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sample.Record(nil), m.records...)
}

// Closed reports whether Close was called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
