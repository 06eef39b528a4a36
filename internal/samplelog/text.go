// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package samplelog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/relabs-tech/force_feedback/internal/sample"
	"github.com/relabs-tech/force_feedback/internal/trial"
)

// TextSink writes the two tab-separated text logs: the sample stream
// (elapsed, channels, position, filtered force, reference) and the
// timetable. Both files are truncated on open.
type TextSink struct {
	dataFile   io.Closer
	timingFile io.Closer
	data       *bufio.Writer
	timing     *bufio.Writer
}

// OpenText creates or truncates both files.
func OpenText(dataPath, timingPath string) (*TextSink, error) {
	df, err := os.Create(dataPath)
	if err != nil {
		return nil, fmt.Errorf("samplelog: open data file: %w", err)
	}
	tf, err := os.Create(timingPath)
	if err != nil {
		df.Close()
		return nil, fmt.Errorf("samplelog: open timing file: %w", err)
	}
	return &TextSink{
		dataFile:   df,
		timingFile: tf,
		data:       bufio.NewWriterSize(df, 64*1024),
		timing:     bufio.NewWriter(tf),
	}, nil
}

// NewText writes to arbitrary writers; the caller owns them.
func NewText(data, timing io.Writer) *TextSink {
	return &TextSink{data: bufio.NewWriter(data), timing: bufio.NewWriter(timing)}
}

// WriteSchedule writes the timetable and flushes it so it is on disk
// before the first sample.
func (t *TextSink) WriteSchedule(s trial.Schedule) error {
	if err := trial.WriteTimetable(t.timing, s); err != nil {
		return fmt.Errorf("samplelog: timing: %w", err)
	}
	if err := t.timing.Flush(); err != nil {
		return fmt.Errorf("samplelog: timing: %w", err)
	}
	return nil
}

// WriteSample appends one line to the data file.
func (t *TextSink) WriteSample(r sample.Record) error {
	w := t.data
	fmt.Fprintf(w, "%f", r.Elapsed)
	for _, v := range r.Channels {
		fmt.Fprintf(w, " \t %f", v)
	}
	fmt.Fprintf(w, " \t %f \t %f \t %f \t %f \t %f \n",
		r.Position.X, r.Position.Y, r.Position.Z, r.Filtered, r.Reference)
	// bufio keeps the first write error and returns it from every later call
	if _, err := w.Write(nil); err != nil {
		return fmt.Errorf("samplelog: data: %w", err)
	}
	return nil
}

// Close flushes and closes both files.
func (t *TextSink) Close() error {
	errs := []error{t.data.Flush(), t.timing.Flush()}
	if t.dataFile != nil {
		errs = append(errs, t.dataFile.Close())
	}
	if t.timingFile != nil {
		errs = append(errs, t.timingFile.Close())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("samplelog: close text sink: %w", err)
	}
	return nil
}
