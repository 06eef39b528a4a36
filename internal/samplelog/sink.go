// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package samplelog persists the run timetable and the per-tick sample
// stream.
package samplelog

import (
	"errors"

	"github.com/relabs-tech/force_feedback/internal/sample"
	"github.com/relabs-tech/force_feedback/internal/trial"
)

// Sink receives the timetable once and then one record per accepted tick.
// A write error means data was lost; callers abort the run on it.
type Sink interface {
	WriteSchedule(s trial.Schedule) error
	WriteSample(r sample.Record) error
	Close() error
}

// Multi fans every call out to all sinks. The first error is returned but
// every sink still receives the call.
type Multi []Sink

// WriteSchedule writes s to every sink.
func (m Multi) WriteSchedule(s trial.Schedule) error {
	var first error
	for _, sink := range m {
		if err := sink.WriteSchedule(s); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// WriteSample writes r to every sink.
func (m Multi) WriteSample(r sample.Record) error {
	var first error
	for _, sink := range m {
		if err := sink.WriteSample(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every sink.
func (m Multi) Close() error {
	var errs []error
	for _, sink := range m {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
