// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package trial generates the randomized perturbation timetable for a run.
package trial

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// ErrNoTrials is returned when a schedule is requested with Trials <= 0.
var ErrNoTrials = errors.New("trial: trial count must be positive")

// ErrOverlap is returned when a perturbation could outlast the gap before
// the earliest possible onset of the next trial.
var ErrOverlap = errors.New("trial: consecutive trials can overlap")

// fractionSteps is the resolution of the random onset fraction r in
// [1/fractionSteps, 1].
const fractionSteps = 10000

// Spec is one scheduled perturbation. Offsets are seconds since run start.
type Spec struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Level float64 `json:"level"`
}

// Schedule is the ordered, immutable list of trials for one run.
type Schedule []Spec

// Params are the timing constants of the protocol, in seconds.
type Params struct {
	Trials        int
	Interval      float64 // length of each trial window
	Gap           float64 // pause between trial windows
	ForceDuration float64 // how long a perturbation lasts
	InitialRest   float64 // baseline recording before the first window
}

// Rand is the random source used for onset jitter and level selection.
// *math/rand/v2.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

func (p Params) validate() error {
	if p.Trials <= 0 {
		return ErrNoTrials
	}
	if p.Interval <= 0 {
		return fmt.Errorf("trial: interval must be positive, got %g", p.Interval)
	}
	if p.Gap < 0 || p.InitialRest < 0 {
		return fmt.Errorf("trial: gap and initial rest must be non-negative")
	}
	if p.ForceDuration <= 0 {
		return fmt.Errorf("trial: force duration must be positive, got %g", p.ForceDuration)
	}
	if p.Trials > 1 && p.ForceDuration >= MaxForceDuration(p.Interval, p.Gap) {
		return fmt.Errorf("%w: force duration %g must be below gap %g + interval/%d",
			ErrOverlap, p.ForceDuration, p.Gap, fractionSteps)
	}
	return nil
}

// MaxForceDuration is the exclusive upper bound on the force duration that
// keeps every trial ending before the next one can start.
func MaxForceDuration(interval, gap float64) float64 {
	return gap + interval/fractionSteps
}

// Generate builds the schedule. Trial i starts at
//
//	InitialRest + i*Interval + i*Gap + r*Interval
//
// with r drawn uniformly from {0.0001, 0.0002, ..., 1.0}, and lasts
// ForceDuration.
func Generate(p Params, policy LevelPolicy, rng Rand) (Schedule, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if policy == nil {
		policy = FixedLevel(DefaultLevel)
	}

	s := make(Schedule, p.Trials)
	for i := range s {
		r := float64(rng.IntN(fractionSteps)+1) / fractionSteps
		start := p.InitialRest + float64(i)*p.Interval + float64(i)*p.Gap + r*p.Interval
		s[i] = Spec{
			Index: i + 1,
			Start: start,
			End:   start + p.ForceDuration,
			Level: policy.Level(i, rng),
		}
	}
	return s, nil
}

// Len is the number of trials.
func (s Schedule) Len() int { return len(s) }

// Trial returns the 1-based trial.
func (s Schedule) Trial(index int) (Spec, bool) {
	if index < 1 || index > len(s) {
		return Spec{}, false
	}
	return s[index-1], true
}

// Duration is the end offset of the last trial.
func (s Schedule) Duration() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].End
}

// WriteTimetable writes one "start \t end \t level" line per trial.
func WriteTimetable(w io.Writer, s Schedule) error {
	bw := bufio.NewWriter(w)
	for _, t := range s {
		if _, err := fmt.Fprintf(bw, "%f \t %f \t %f \n", t.Start, t.End, t.Level); err != nil {
			return fmt.Errorf("trial: write timetable: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("trial: write timetable: %w", err)
	}
	return nil
}
