// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package controller runs the sampling and decision loop of an experiment.
//
// Every accepted clock tick reads one sample, updates the force filter and
// the biofeedback classifier, steps the actuation state machine and logs a
// record. The loop and everything it mutates belong to one goroutine.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/relabs-tech/force_feedback/internal/actuation"
	"github.com/relabs-tech/force_feedback/internal/clock"
	"github.com/relabs-tech/force_feedback/internal/filter"
	"github.com/relabs-tech/force_feedback/internal/report"
	"github.com/relabs-tech/force_feedback/internal/sample"
	"github.com/relabs-tech/force_feedback/internal/samplelog"
	"github.com/relabs-tech/force_feedback/internal/sensors"
	"github.com/relabs-tech/force_feedback/internal/telemetry"
	"github.com/relabs-tech/force_feedback/internal/trial"
)

// Logf is the controller's logger. Tests may replace it.
var Logf func(format string, v ...interface{}) = log.Printf

// RunState is the mutable state of a run. Trial only moves forward and
// Finished, once set, stays set.
type RunState struct {
	Elapsed   float64 // seconds, sum of measured tick intervals
	Trial     int     // 1-based; Trials+1 once finished
	Active    bool
	Finished  bool
	Cancelled bool
	Accepted  int64 // ticks with a sample
	Dropped   int64 // ticks whose device read timed out
}

// Params are fixed for the duration of a run.
type Params struct {
	RunID          string
	Schedule       trial.Schedule
	GripChannel    int
	ForceWindow    int
	FillMode       filter.FillMode
	FeedbackWindow int
	Threshold      float64
	Band           float64
	Actuation      actuation.Config
	PostTrial      float64 // seconds to keep logging after the last trial
	StatusEvery    int     // accepted samples between status messages; 0 disables
}

// Deps are the collaborators of the loop. Publisher, Feedback and Report are
// optional.
type Deps struct {
	Clock     clock.Source
	Device    sensors.Device
	Actuator  actuation.Actuator
	Sink      samplelog.Sink
	Publisher telemetry.Publisher
	Feedback  FeedbackSink
	Report    *report.Collector
}

// Controller owns one run.
type Controller struct {
	p Params
	d Deps

	force      *filter.ForceFilter
	classifier *filter.Classifier
	machine    *actuation.Machine

	state      RunState
	level      filter.Level
	finishedAt float64
	filtered   float64
}

// New validates the configuration and builds the filters and state machine.
func New(p Params, d Deps) (*Controller, error) {
	if d.Clock == nil || d.Device == nil || d.Actuator == nil || d.Sink == nil {
		return nil, errors.New("controller: clock, device, actuator and sink are required")
	}
	if p.GripChannel < 0 || p.GripChannel >= d.Device.Channels() {
		return nil, fmt.Errorf("controller: grip channel %d out of range for %d channels", p.GripChannel, d.Device.Channels())
	}
	if p.PostTrial < 0 {
		return nil, fmt.Errorf("controller: post-trial time must not be negative, got %g", p.PostTrial)
	}
	force, err := filter.NewForceFilter(p.ForceWindow, p.FillMode)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}
	classifier, err := filter.NewClassifier(p.FeedbackWindow, p.Threshold, p.Band)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}
	machine, err := actuation.NewMachine(p.Schedule, d.Actuator, p.Actuation)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}
	if d.Publisher == nil {
		d.Publisher = telemetry.Nop{}
	}
	return &Controller{
		p:          p,
		d:          d,
		force:      force,
		classifier: classifier,
		machine:    machine,
		state:      RunState{Trial: 1},
	}, nil
}

// State returns a copy of the run state. It must be called from the loop
// goroutine or after Run returned.
func (c *Controller) State() RunState { return c.state }

// Run writes the timetable and drives the loop until the experiment is
// finished, ctx is cancelled or the clock source is exhausted. Cancellation
// is not an error; it is reported in RunState.Cancelled.
func (c *Controller) Run(ctx context.Context) (RunState, error) {
	if err := c.d.Sink.WriteSchedule(c.p.Schedule); err != nil {
		return c.state, fmt.Errorf("controller: write timetable: %w", err)
	}

	for {
		tick, err := c.d.Clock.Next(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			c.state.Cancelled = true
			Logf("controller: run cancelled at %.3f s (trial %d of %d)", c.state.Elapsed, c.state.Trial, len(c.p.Schedule))
			return c.state, nil
		case errors.Is(err, clock.ErrExhausted):
			return c.state, nil
		default:
			return c.state, fmt.Errorf("controller: clock: %w", err)
		}

		done, err := c.step(ctx, tick)
		if err != nil {
			if ctx.Err() != nil {
				c.state.Cancelled = true
				return c.state, nil
			}
			return c.state, err
		}
		if done {
			Logf("controller: Experiment is done! (%d samples, %d dropped)", c.state.Accepted, c.state.Dropped)
			c.publishStatus()
			return c.state, nil
		}
	}
}

// step processes one tick and reports whether the loop should stop.
func (c *Controller) step(ctx context.Context, tick clock.Tick) (bool, error) {
	c.state.Elapsed += tick.Interval
	if c.d.Report != nil {
		c.d.Report.AddTick(tick.Interval, tick.Missed)
	}

	actuation.ReportErrors(c.d.Actuator)

	channels, err := c.d.Device.Read(ctx)
	switch {
	case err == nil:
		if len(channels) <= c.p.GripChannel {
			return false, fmt.Errorf("controller: sample has %d channels, grip channel is %d", len(channels), c.p.GripChannel)
		}
	case sensors.IsDropped(err):
		c.state.Dropped++
		if c.d.Report != nil {
			c.d.Report.AddDropped()
		}
		// the schedule runs on elapsed time, so a dropped sample must not
		// delay a transition
		c.stepMachine(c.filtered)
		return false, nil
	default:
		return false, fmt.Errorf("controller: read sample: %w", err)
	}

	raw := channels[c.p.GripChannel]
	c.filtered = c.force.Update(raw)
	if level, ok := c.classifier.Update(raw); ok {
		c.emitFeedback(level)
	}

	wasFinished := c.state.Finished
	c.stepMachine(c.filtered)

	rec := sample.Record{
		Elapsed:   c.state.Elapsed,
		Channels:  channels,
		Filtered:  c.filtered,
		Reference: c.force.Reference(),
		Position:  c.d.Actuator.CurrentPosition(),
		Magnitude: c.machine.Magnitude(),
		Active:    c.state.Active,
		Trial:     c.state.Trial,
	}
	if err := c.d.Sink.WriteSample(rec); err != nil {
		return false, fmt.Errorf("controller: log sample at %.3f s: %w", c.state.Elapsed, err)
	}
	c.state.Accepted++

	if c.p.StatusEvery > 0 && c.state.Accepted%int64(c.p.StatusEvery) == 0 {
		c.publishStatus()
	}

	return wasFinished && c.state.Elapsed-c.finishedAt >= c.p.PostTrial, nil
}

func (c *Controller) stepMachine(filtered float64) {
	ev, err := c.machine.Step(c.state.Elapsed, filtered)
	if err != nil {
		Logf("controller: %v", err)
	}

	c.state.Active = c.machine.State() == actuation.Active
	c.state.Trial = c.machine.Trial()

	if ev.Started() {
		Logf("controller: trial %d started at %.3f s (force %.4f V, magnitude %.4f)", ev.Trial, c.state.Elapsed, filtered, ev.Magnitude)
		c.publishTrial(ev.Trial, "start", filtered, ev.Magnitude, false)
		if c.d.Report != nil {
			spec, _ := c.p.Schedule.Trial(ev.Trial)
			c.d.Report.AddOnset(report.Onset{
				Trial:     ev.Trial,
				Scheduled: spec.Start,
				Elapsed:   c.state.Elapsed,
				Filtered:  filtered,
				Magnitude: ev.Magnitude,
			})
		}
	}
	if ev.Ended() {
		c.publishTrial(ev.Trial, "end", filtered, c.machine.Magnitude(), ev.Finished)
	}
	if ev.Finished && !c.state.Finished {
		c.state.Finished = true
		c.finishedAt = c.state.Elapsed
	}
}

func (c *Controller) emitFeedback(level filter.Level) {
	if level == c.level {
		return
	}
	c.level = level
	avg := c.classifier.Average()
	if c.d.Feedback != nil {
		c.d.Feedback.Feedback(level, avg)
	}
	c.d.Publisher.Feedback(sample.FeedbackMsg{
		RunID:   c.p.RunID,
		Level:   level.String(),
		Symbol:  level.Symbol(),
		Average: avg,
		Elapsed: c.state.Elapsed,
	})
}

func (c *Controller) publishTrial(idx int, kind string, filtered, magnitude float64, finished bool) {
	c.d.Publisher.Trial(sample.TrialEvent{
		RunID:     c.p.RunID,
		Trial:     idx,
		Kind:      kind,
		Elapsed:   c.state.Elapsed,
		Filtered:  filtered,
		Magnitude: magnitude,
		Finished:  finished,
	})
}

func (c *Controller) publishStatus() {
	c.d.Publisher.Status(sample.Status{
		RunID:     c.p.RunID,
		Elapsed:   c.state.Elapsed,
		Trial:     c.state.Trial,
		Trials:    len(c.p.Schedule),
		Active:    c.state.Active,
		Finished:  c.state.Finished,
		Accepted:  c.state.Accepted,
		Dropped:   c.state.Dropped,
		Filtered:  c.filtered,
		Magnitude: c.machine.Magnitude(),
		Level:     c.level.String(),
	})
}
