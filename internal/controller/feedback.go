// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package controller

import (
	"fmt"
	"io"

	"github.com/relabs-tech/force_feedback/internal/filter"
)

// FeedbackSink shows the subject how to adjust the grip. It is called only
// when the level changes.
type FeedbackSink interface {
	Feedback(level filter.Level, average float64)
}

// ConsoleFeedback prints the level symbol, one per line: "+++" grip harder,
// "-" hold, "---" grip softer.
type ConsoleFeedback struct {
	W io.Writer
}

// Feedback prints the symbol for level.
func (c ConsoleFeedback) Feedback(level filter.Level, _ float64) {
	if s := level.Symbol(); s != "" {
		fmt.Fprintln(c.W, s)
	}
}
