// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuation

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/force_feedback/internal/sample"
	"github.com/relabs-tech/force_feedback/internal/trial"
)

type update struct{ gain, mag float64 }

type fakeActuator struct {
	updates []update
	fail    error
}

func (f *fakeActuator) StartEffect(EffectKind, EffectParams) error { return f.fail }
func (f *fakeActuator) UpdateEffect(gain, mag float64) error {
	f.updates = append(f.updates, update{gain, mag})
	return f.fail
}
func (f *fakeActuator) StopEffect() error           { return f.fail }
func (f *fakeActuator) CurrentPosition() sample.Vec3 { return sample.Vec3{} }

func twoTrials() trial.Schedule {
	return trial.Schedule{
		{Index: 1, Start: 1.0, End: 1.25, Level: 0.15},
		{Index: 2, Start: 3.0, End: 3.25, Level: 0.15},
	}
}

func TestNewMachineValidates(t *testing.T) {
	_, err := NewMachine(nil, &fakeActuator{}, DefaultConfig())
	assert.ErrorIs(t, err, trial.ErrNoTrials)

	_, err = NewMachine(twoTrials(), nil, DefaultConfig())
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Policy.High = cfg.Policy.Low
	_, err = NewMachine(twoTrials(), &fakeActuator{}, cfg)
	assert.Error(t, err)
}

func TestMachineRunsEveryTrialOnce(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	sched, err := trial.Generate(trial.Params{
		Trials: 20, Interval: 5, Gap: 2, ForceDuration: 0.25, InitialRest: 10,
	}, nil, rng)
	require.NoError(t, err)

	act := &fakeActuator{}
	m, err := NewMachine(sched, act, DefaultConfig())
	require.NoError(t, err)

	starts, ends := 0, 0
	finishedAt := 0
	for tick := 1; tick <= 200000; tick++ {
		elapsed := float64(tick) * 0.001
		ev, err := m.Step(elapsed, 0.02)
		require.NoError(t, err)
		if ev.Started() {
			starts++
			assert.Equal(t, starts, ev.Trial)
		}
		if ev.Ended() {
			ends++
		}
		if ev.Finished {
			require.Zero(t, finishedAt, "finished twice")
			finishedAt = tick
		}
	}
	assert.Equal(t, 20, starts)
	assert.Equal(t, 20, ends)
	assert.NotZero(t, finishedAt)
	assert.True(t, m.Finished())
	assert.Equal(t, Idle, m.State())
	assert.Equal(t, 21, m.Trial())
	assert.Len(t, act.updates, 40)
}

func TestMachineStartAndEndOnSameTick(t *testing.T) {
	act := &fakeActuator{}
	m, err := NewMachine(twoTrials(), act, DefaultConfig())
	require.NoError(t, err)

	// A long stall jumps past both edges of trial 1.
	ev, err := m.Step(2.0, 0.0)
	require.NoError(t, err)
	assert.Equal(t, EventStartEnd, ev.Kind)
	assert.Equal(t, 1, ev.Trial)
	assert.Equal(t, 2, m.Trial())
	assert.Equal(t, Idle, m.State())
	assert.Equal(t, []update{{0.2, 0.15}, {0.2, DefaultBaseline}}, act.updates)
}

func TestMachineErrorsDoNotBlockTransitions(t *testing.T) {
	boom := errors.New("link down")
	act := &fakeActuator{fail: boom}
	m, err := NewMachine(twoTrials(), act, DefaultConfig())
	require.NoError(t, err)

	ev, err := m.Step(1.0, 0.0)
	assert.Error(t, err)
	assert.True(t, ev.Started())
	assert.Equal(t, Active, m.State())

	ev, err = m.Step(1.25, 0.0)
	assert.Error(t, err)
	assert.True(t, ev.Ended())
	assert.Equal(t, 2, m.Trial())
}

func TestMachineHoldsBaselineBeforeOnset(t *testing.T) {
	act := &fakeActuator{}
	m, err := NewMachine(twoTrials(), act, DefaultConfig())
	require.NoError(t, err)

	ev, err := m.Step(0.999, 0.0)
	require.NoError(t, err)
	assert.Equal(t, EventNone, ev.Kind)
	assert.Equal(t, DefaultBaseline, m.Magnitude())
	assert.Empty(t, act.updates)
}

func TestMagnitudePolicy(t *testing.T) {
	p := DefaultMagnitudePolicy()
	tests := []struct {
		name string
		f    float64
		want float64
	}{
		{"below band", 0.02, 0.15},
		{"low bound", p.Low, 0.15},
		{"midpoint", (p.Low + p.High) / 2, (0.15 + p.Ceiling) / 2},
		{"high bound", p.High, p.Ceiling},
		{"above band", 0.1, p.Ceiling},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, p.Magnitude(tc.f, 0.15), 1e-9)
		})
	}
}

func TestMagnitudePolicyIsContinuous(t *testing.T) {
	p := DefaultMagnitudePolicy()
	const eps = 1e-12
	for _, level := range []float64{0.0, 0.1, 0.15, 0.4} {
		assert.InDelta(t, p.Magnitude(p.Low-eps, level), p.Magnitude(p.Low, level), 1e-6)
		assert.InDelta(t, p.Magnitude(p.High, level), p.Magnitude(p.High+eps, level), 1e-6)
	}
}

type errActuator struct {
	fakeActuator
	errs []error
}

func (e *errActuator) DrainErrors() []error {
	out := e.errs
	e.errs = nil
	return out
}

func TestReportErrors(t *testing.T) {
	var logged []string
	old := Logf
	Logf = func(format string, v ...interface{}) { logged = append(logged, format) }
	defer func() { Logf = old }()

	assert.Zero(t, ReportErrors(&fakeActuator{}))

	a := &errActuator{errs: []error{errors.New("a"), errors.New("b")}}
	assert.Equal(t, 2, ReportErrors(a))
	assert.Len(t, logged, 2)
	assert.Zero(t, ReportErrors(a))
}
