// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package clock

import "context"

// Synthetic is a Source that replays fixed intervals without waiting.
type Synthetic struct {
	intervals []float64
	repeat    float64
	limit     int64
	seq       int64
}

// NewSynthetic returns a source emitting count ticks of the same interval.
// A negative count never runs out.
func NewSynthetic(interval float64, count int64) *Synthetic {
	return &Synthetic{repeat: interval, limit: count}
}

// NewSyntheticIntervals replays the given intervals once.
func NewSyntheticIntervals(intervals ...float64) *Synthetic {
	return &Synthetic{intervals: intervals, limit: int64(len(intervals))}
}

func (s *Synthetic) Next(ctx context.Context) (Tick, error) {
	if err := ctx.Err(); err != nil {
		return Tick{}, err
	}
	if s.limit >= 0 && s.seq >= s.limit {
		return Tick{}, ErrExhausted
	}
	interval := s.repeat
	if s.intervals != nil {
		interval = s.intervals[s.seq]
	}
	s.seq++
	return Tick{Seq: s.seq, Interval: interval}, nil
}
