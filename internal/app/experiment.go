// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/relabs-tech/force_feedback/internal/actuation"
	"github.com/relabs-tech/force_feedback/internal/clock"
	"github.com/relabs-tech/force_feedback/internal/config"
	"github.com/relabs-tech/force_feedback/internal/controller"
	"github.com/relabs-tech/force_feedback/internal/filter"
	"github.com/relabs-tech/force_feedback/internal/haptic"
	"github.com/relabs-tech/force_feedback/internal/report"
	"github.com/relabs-tech/force_feedback/internal/sample"
	"github.com/relabs-tech/force_feedback/internal/samplelog"
	"github.com/relabs-tech/force_feedback/internal/sensors"
	"github.com/relabs-tech/force_feedback/internal/telemetry"
	"github.com/relabs-tech/force_feedback/internal/trial"
)

const (
	// quarterMax is the top level of FORCE_LEVEL_POLICY=quarters.
	quarterMax = 0.4

	// plotEvery keeps one record in plotEvery for the run chart.
	plotEvery = 10

	asyncQueueLen = 4096
)

// errConsoleClosed is returned when stdin ends before the operator started
// the run.
var errConsoleClosed = errors.New("experiment: operator console closed before start")

// newClock builds the tick source. Tests swap in a synthetic clock.
var newClock = func(cfg *config.Config) (clock.Source, error) {
	return clock.NewDriver(clock.NewMonotonicCounter(), cfg.SamplePeriod(), cfg.TickTolerance)
}

// hapticEngine is an actuator that owns a device handle.
type hapticEngine interface {
	actuation.Actuator
	Close() error
}

// RunExperiment runs one grip-force perturbation session with the global
// configuration, using stdin as the operator console.
func RunExperiment() error {
	log.Println("starting force-feedback experiment controller")

	ctx, stop := signalContext()
	defer stop()

	_, err := runExperiment(ctx, config.Get(), os.Stdin, os.Stdout)
	return err
}

func runExperiment(ctx context.Context, cfg *config.Config, console io.Reader, out io.Writer) (state controller.RunState, err error) {
	runID := uuid.NewString()
	log.Printf("experiment: run %s", runID)

	schedule, err := buildSchedule(cfg)
	if err != nil {
		return state, fmt.Errorf("experiment: schedule: %w", err)
	}

	// --- devices ---
	dev, err := sensors.Open(cfg)
	if err != nil {
		return state, fmt.Errorf("experiment: acquisition init: %w", err)
	}
	defer closeLogged("sensors", dev.Close)

	act, err := openHaptic(cfg)
	if err != nil {
		return state, fmt.Errorf("experiment: haptic init: %w", err)
	}
	defer closeLogged("haptic", act.Close)

	// --- sinks and telemetry ---
	sink, trace, err := openSinks(cfg, runID)
	if err != nil {
		return state, fmt.Errorf("experiment: %w", err)
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("experiment: close sample log: %w", cerr)
		}
	}()

	pub := openPublisher(cfg)
	defer pub.Close()

	src, err := newClock(cfg)
	if err != nil {
		return state, fmt.Errorf("experiment: clock: %w", err)
	}

	params, err := controllerParams(cfg, runID, schedule)
	if err != nil {
		return state, fmt.Errorf("experiment: %w", err)
	}

	collector := report.NewCollector(int(schedule.Duration()/cfg.SamplePeriodS) + 1)
	ctrl, err := controller.New(params, controller.Deps{
		Clock:     src,
		Device:    dev,
		Actuator:  act,
		Sink:      sink,
		Publisher: pub,
		Feedback:  controller.ConsoleFeedback{W: out},
		Report:    collector,
	})
	if err != nil {
		return state, fmt.Errorf("experiment: %w", err)
	}

	// --- operator console ---
	lines := bufio.NewScanner(console)
	fmt.Fprintln(out, "Ready to begin experiment. Press Enter to begin")
	started := make(chan bool, 1)
	go func() { started <- lines.Scan() }()
	select {
	case ok := <-started:
		if !ok {
			return state, errConsoleClosed
		}
	case <-ctx.Done():
		log.Println("experiment: interrupted before start")
		state.Cancelled = true
		return state, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if lines.Scan() {
			log.Println("experiment: stop requested from console")
			cancel()
		}
	}()

	// --- effect ---
	if err := act.StopEffect(); err != nil {
		log.Printf("experiment: stop effect: %v", err)
	}
	if err := act.StartEffect(actuation.EffectConstant, actuation.EffectParams{
		Gain:      cfg.EffectGain,
		Magnitude: cfg.BaselineMagnitude,
		Duration:  cfg.EffectDuration,
		Direction: sample.Vec3{Y: 1},
	}); err != nil {
		return state, fmt.Errorf("experiment: start effect: %w", err)
	}
	defer func() {
		if err := act.StopEffect(); err != nil {
			log.Printf("experiment: stop effect: %v", err)
		}
	}()

	start := time.Now()
	state, err = ctrl.Run(runCtx)
	if err != nil {
		return state, fmt.Errorf("experiment: %w", err)
	}
	if state.Finished {
		fmt.Fprintln(out, "Experiment is done!")
	}
	log.Printf("experiment: %d samples in %s (%d dropped, cancelled=%t)",
		state.Accepted, time.Since(start).Round(time.Millisecond), state.Dropped, state.Cancelled)

	if err := collector.Summary().Write(out); err != nil {
		log.Printf("experiment: write summary: %v", err)
	}
	if trace != nil {
		if err := report.PlotRun(cfg.PlotFile, trace.Records(), schedule, cfg.ForceThreshold); err != nil {
			log.Printf("experiment: plot: %v", err)
		} else {
			log.Printf("experiment: chart written to %s", cfg.PlotFile)
		}
	}
	return state, nil
}

// controllerParams maps the configuration onto the control loop.
func controllerParams(cfg *config.Config, runID string, schedule trial.Schedule) (controller.Params, error) {
	fill, err := filter.ParseFillMode(cfg.FillMode)
	if err != nil {
		return controller.Params{}, err
	}
	return controller.Params{
		RunID:          runID,
		Schedule:       schedule,
		GripChannel:    cfg.GripChannel,
		ForceWindow:    cfg.ForceWindow,
		FillMode:       fill,
		FeedbackWindow: cfg.FeedbackWindow,
		Threshold:      cfg.ForceThreshold,
		Band:           cfg.FeedbackBand,
		Actuation: actuation.Config{
			Policy: actuation.MagnitudePolicy{
				Low:     cfg.MagnitudeLow,
				High:    cfg.MagnitudeHigh,
				Ceiling: cfg.MagnitudeCeiling,
			},
			Baseline: cfg.BaselineMagnitude,
			Gain:     cfg.EffectGain,
		},
		PostTrial:   cfg.PostTrialS,
		StatusEvery: cfg.StatusEvery,
	}, nil
}

// buildSchedule draws the timetable. RANDOM_SEED=0 seeds from the clock.
func buildSchedule(cfg *config.Config) (trial.Schedule, error) {
	seed := cfg.RandomSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	var policy trial.LevelPolicy
	switch cfg.LevelPolicy {
	case "random":
		levels, err := trial.ParseLevels(cfg.ForceLevels)
		if err != nil {
			return nil, err
		}
		policy = levels
	case "quarters":
		policy = trial.QuarterSteps(quarterMax)
	default:
		policy = trial.FixedLevel(cfg.ForceLevel)
	}

	return trial.Generate(trial.Params{
		Trials:        cfg.Trials,
		Interval:      cfg.IntervalS,
		Gap:           cfg.GapS,
		ForceDuration: cfg.ForceDurationS,
		InitialRest:   cfg.InitialRestS,
	}, policy, rng)
}

func openHaptic(cfg *config.Config) (hapticEngine, error) {
	switch cfg.HapticDriver {
	case "serial":
		return haptic.OpenBridge(cfg.HapticSerialPort, cfg.HapticBaudRate)
	case "mock":
		log.Println("experiment: using mock haptic engine")
		return haptic.NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown haptic driver %q", cfg.HapticDriver)
	}
}

// openSinks builds the sample log fan-out. The returned Memory trace is nil
// unless PLOT_FILE is set.
func openSinks(cfg *config.Config, runID string) (samplelog.Sink, *samplelog.Memory, error) {
	text, err := samplelog.OpenText(cfg.DataFile, cfg.TimingFile)
	if err != nil {
		return nil, nil, err
	}
	sinks := samplelog.Multi{text}

	if cfg.DBPath != "" {
		db, err := samplelog.OpenSQLite(cfg.DBPath, runID)
		if err != nil {
			text.Close()
			return nil, nil, err
		}
		sinks = append(sinks, samplelog.NewAsync(db, asyncQueueLen))
	}

	var trace *samplelog.Memory
	if cfg.PlotFile != "" {
		trace = &samplelog.Memory{Every: plotEvery}
		sinks = append(sinks, trace)
	}
	return sinks, trace, nil
}

// openPublisher connects telemetry. A broker that cannot be reached disables
// telemetry for the run instead of failing it.
func openPublisher(cfg *config.Config) telemetry.Publisher {
	if cfg.MQTTBroker == "" {
		return telemetry.Nop{}
	}
	pub, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientIDController, topicsFrom(cfg))
	if err != nil {
		log.Printf("experiment: telemetry disabled: %v", err)
		return telemetry.Nop{}
	}
	log.Printf("experiment: publishing telemetry to %s", cfg.MQTTBroker)
	return pub
}

func topicsFrom(cfg *config.Config) telemetry.Topics {
	return telemetry.Topics{
		Feedback: cfg.TopicFeedback,
		Trial:    cfg.TopicTrial,
		Status:   cfg.TopicStatus,
	}
}

func closeLogged(name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Printf("experiment: close %s: %v", name, err)
	}
}
