// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"log"
	"math"

	"github.com/google/uuid"

	"github.com/relabs-tech/force_feedback/internal/config"
	"github.com/relabs-tech/force_feedback/internal/controller"
	"github.com/relabs-tech/force_feedback/internal/haptic"
	"github.com/relabs-tech/force_feedback/internal/samplelog"
	"github.com/relabs-tech/force_feedback/internal/sensors"
	"github.com/relabs-tech/force_feedback/internal/telemetry"
)

const (
	sweepPeriodS = 8.0 // seconds per grip sweep
	sweepBands   = 3.0 // sweep amplitude in feedback bands
)

// RunMockProducer runs the controller against mock hardware and publishes
// its telemetry, so the console, web and display tools can be exercised
// without a subject.
func RunMockProducer() error {
	cfg := config.Get()

	pub, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientIDController+"-mock", topicsFrom(cfg))
	if err != nil {
		return err
	}
	defer pub.Close()

	ctx, stop := signalContext()
	defer stop()

	state, err := runMockProducer(ctx, cfg, pub)
	if err != nil {
		return err
	}
	log.Printf("producer: %d samples published (finished=%t)", state.Accepted, state.Finished)
	return nil
}

func runMockProducer(ctx context.Context, cfg *config.Config, pub telemetry.Publisher) (controller.RunState, error) {
	schedule, err := buildSchedule(cfg)
	if err != nil {
		return controller.RunState{}, err
	}
	params, err := controllerParams(cfg, uuid.NewString(), schedule)
	if err != nil {
		return controller.RunState{}, err
	}
	src, err := newClock(cfg)
	if err != nil {
		return controller.RunState{}, err
	}

	dev := &sweepDevice{
		Mock:   sensors.NewMock(cfg.DAQChannels, cfg.GripChannel, cfg.ForceThreshold),
		center: cfg.ForceThreshold,
		amp:    sweepBands * cfg.FeedbackBand,
		dt:     cfg.SamplePeriodS,
	}
	ctrl, err := controller.New(params, controller.Deps{
		Clock:     src,
		Device:    dev,
		Actuator:  haptic.NewMock(),
		Sink:      samplelog.Multi{},
		Publisher: pub,
	})
	if err != nil {
		return controller.RunState{}, err
	}

	log.Printf("producer: mock run with %d trials", len(schedule))
	return ctrl.Run(ctx)
}

// sweepDevice moves the mock grip level slowly across the feedback band.
type sweepDevice struct {
	*sensors.Mock
	center, amp float64 // volts
	dt          float64 // seconds per read
	n           int
}

func (d *sweepDevice) Read(ctx context.Context) ([]float64, error) {
	t := float64(d.n) * d.dt
	d.n++
	d.SetLevel(d.center + d.amp*math.Sin(2*math.Pi*t/sweepPeriodS))
	return d.Mock.Read(ctx)
}
