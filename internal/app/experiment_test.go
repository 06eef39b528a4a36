// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/force_feedback/internal/clock"
	"github.com/relabs-tech/force_feedback/internal/config"
	"github.com/relabs-tech/force_feedback/internal/trial"
)

func useClock(t *testing.T, src clock.Source) {
	t.Helper()
	prev := newClock
	newClock = func(*config.Config) (clock.Source, error) { return src, nil }
	t.Cleanup(func() { newClock = prev })
}

// blockingClock never ticks; Next returns once ctx is done.
type blockingClock struct{}

func (blockingClock) Next(ctx context.Context) (clock.Tick, error) {
	<-ctx.Done()
	return clock.Tick{}, ctx.Err()
}

func shortConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Trials = 2
	cfg.IntervalS = 0.2
	cfg.GapS = 0.1
	cfg.ForceDurationS = 0.05
	cfg.InitialRestS = 0.1
	cfg.RandomSeed = 7
	cfg.DataFile = filepath.Join(dir, "data.txt")
	cfg.TimingFile = filepath.Join(dir, "timing.txt")
	return cfg
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Count(string(b), "\n")
}

func TestRunExperimentCompletes(t *testing.T) {
	useClock(t, clock.NewSynthetic(0.001, -1))
	cfg := shortConfig(t)
	dir := filepath.Dir(cfg.DataFile)
	cfg.DBPath = filepath.Join(dir, "runs.db")
	cfg.PlotFile = filepath.Join(dir, "run.png")

	var out bytes.Buffer
	state, err := runExperiment(context.Background(), cfg, strings.NewReader("\n"), &out)
	require.NoError(t, err)

	assert.True(t, state.Finished)
	assert.False(t, state.Cancelled)
	assert.Equal(t, 3, state.Trial)
	assert.Contains(t, out.String(), "Ready to begin experiment. Press Enter to begin")
	assert.Contains(t, out.String(), "Experiment is done!")

	assert.Equal(t, 2, countLines(t, cfg.TimingFile))
	assert.EqualValues(t, state.Accepted, countLines(t, cfg.DataFile))
	assert.FileExists(t, cfg.DBPath)
	assert.FileExists(t, cfg.PlotFile)
}

func TestRunExperimentOperatorCancel(t *testing.T) {
	useClock(t, blockingClock{})
	cfg := shortConfig(t)

	var out bytes.Buffer
	state, err := runExperiment(context.Background(), cfg, strings.NewReader("\nstop\n"), &out)
	require.NoError(t, err)

	assert.True(t, state.Cancelled)
	assert.False(t, state.Finished)
	assert.NotContains(t, out.String(), "Experiment is done!")
	assert.Equal(t, 2, countLines(t, cfg.TimingFile))
}

func TestRunExperimentConsoleClosed(t *testing.T) {
	useClock(t, blockingClock{})
	cfg := shortConfig(t)

	_, err := runExperiment(context.Background(), cfg, strings.NewReader(""), &bytes.Buffer{})
	assert.ErrorIs(t, err, errConsoleClosed)
}

func TestRunExperimentInterruptedBeforeStart(t *testing.T) {
	useClock(t, blockingClock{})
	cfg := shortConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		w.Close()
		r.Close()
	})

	state, err := runExperiment(ctx, cfg, r, &bytes.Buffer{})
	require.NoError(t, err)
	assert.True(t, state.Cancelled)
}

func TestRunExperimentBadDriver(t *testing.T) {
	cfg := shortConfig(t)
	cfg.HapticDriver = "usb"

	_, err := runExperiment(context.Background(), cfg, strings.NewReader("\n"), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "haptic init")
}

func TestBuildSchedulePolicies(t *testing.T) {
	cfg := config.Default()
	cfg.RandomSeed = 42

	cfg.LevelPolicy = "fixed"
	s, err := buildSchedule(cfg)
	require.NoError(t, err)
	require.Len(t, s, cfg.Trials)
	for _, tr := range s {
		assert.Equal(t, cfg.ForceLevel, tr.Level)
	}

	cfg.LevelPolicy = "quarters"
	s, err = buildSchedule(cfg)
	require.NoError(t, err)
	for _, tr := range s {
		assert.Contains(t, []float64(trial.QuarterSteps(quarterMax)), tr.Level)
	}

	cfg.LevelPolicy = "random"
	cfg.ForceLevels = "0.05,0.25"
	s, err = buildSchedule(cfg)
	require.NoError(t, err)
	for _, tr := range s {
		assert.Contains(t, []float64{0.05, 0.25}, tr.Level)
	}

	again, err := buildSchedule(cfg)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(s, again), "same seed must give the same timetable")
}
