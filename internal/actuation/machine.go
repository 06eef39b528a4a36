// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuation

import (
	"fmt"

	"github.com/relabs-tech/force_feedback/internal/trial"
)

// State of the perturbation effect.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// EventKind tells which transitions happened during a Step.
type EventKind int

const (
	EventNone EventKind = iota
	EventStart
	EventEnd
	EventStartEnd // both edges on one tick
)

// Event describes the transitions taken by one Step.
type Event struct {
	Kind      EventKind
	Trial     int     // trial the event belongs to
	Magnitude float64 // magnitude commanded at the start edge
	Finished  bool    // the last trial just ended
}

// Started reports whether the perturbation was engaged.
func (e Event) Started() bool { return e.Kind == EventStart || e.Kind == EventStartEnd }

// Ended reports whether a perturbation was released.
func (e Event) Ended() bool { return e.Kind == EventEnd || e.Kind == EventStartEnd }

// Config holds the non-schedule inputs of the machine.
type Config struct {
	Policy   MagnitudePolicy
	Baseline float64 // hold magnitude outside perturbations
	Gain     float64
}

// DefaultConfig matches the reference protocol.
func DefaultConfig() Config {
	return Config{Policy: DefaultMagnitudePolicy(), Baseline: DefaultBaseline, Gain: DefaultGain}
}

// Machine is the force-actuation state machine. It is owned by the control
// loop goroutine and is not safe for concurrent use.
type Machine struct {
	schedule trial.Schedule
	act      Actuator
	cfg      Config

	state     State
	trial     int
	finished  bool
	magnitude float64
}

// NewMachine returns a machine in Idle at trial 1.
func NewMachine(schedule trial.Schedule, act Actuator, cfg Config) (*Machine, error) {
	if len(schedule) == 0 {
		return nil, trial.ErrNoTrials
	}
	if act == nil {
		return nil, fmt.Errorf("actuation: nil actuator")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	return &Machine{
		schedule:  schedule,
		act:       act,
		cfg:       cfg,
		trial:     1,
		magnitude: cfg.Baseline,
	}, nil
}

// Step evaluates the transitions for the current elapsed time and filtered
// force. Actuator command failures are returned but never undo a transition:
// losing one command is preferable to desynchronizing the trial sequence.
func (m *Machine) Step(elapsed, filtered float64) (Event, error) {
	var (
		ev   = Event{Trial: m.trial}
		errs []error
	)

	cur := m.schedule[min(m.trial, len(m.schedule))-1]

	if m.state == Idle && !m.finished && elapsed >= cur.Start {
		m.magnitude = m.cfg.Policy.Magnitude(filtered, cur.Level)
		if err := m.act.UpdateEffect(m.cfg.Gain, m.magnitude); err != nil {
			errs = append(errs, fmt.Errorf("trial %d start: %w", m.trial, err))
		}
		m.state = Active
		ev.Kind = EventStart
		ev.Magnitude = m.magnitude
	}

	if m.state == Active && elapsed >= cur.End {
		m.magnitude = m.cfg.Baseline
		if err := m.act.UpdateEffect(m.cfg.Gain, m.magnitude); err != nil {
			errs = append(errs, fmt.Errorf("trial %d end: %w", m.trial, err))
		}
		m.state = Idle
		m.trial++
		if m.trial > len(m.schedule) {
			m.finished = true
			ev.Finished = true
		}
		if ev.Kind == EventStart {
			ev.Kind = EventStartEnd
		} else {
			ev.Kind = EventEnd
		}
	}

	if len(errs) > 0 {
		return ev, fmt.Errorf("actuation: %v", errs)
	}
	return ev, nil
}

// State is the current effect state.
func (m *Machine) State() State { return m.state }

// Trial is the current 1-based trial index; it exceeds the trial count once
// finished.
func (m *Machine) Trial() int { return m.trial }

// Finished reports whether every trial completed.
func (m *Machine) Finished() bool { return m.finished }

// Magnitude is the last commanded magnitude.
func (m *Machine) Magnitude() float64 { return m.magnitude }

// Trials is the schedule length.
func (m *Machine) Trials() int { return len(m.schedule) }
