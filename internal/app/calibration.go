// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/force_feedback/internal/config"
	"github.com/relabs-tech/force_feedback/internal/sensors"
)

const (
	calibrationPeriod = 10 * time.Millisecond // 100 Hz, best effort

	// Relative standard deviation of the held grip.
	steadyGood = 0.05
	steadyBad  = 0.25

	// Confidence floor (never hard zero unless capture failed)
	confFloor = 0.05

	// bandSigmas sizes the suggested feedback band.
	bandSigmas = 2

	// minEffort is the smallest grip above rest that counts as effort, volts.
	minEffort = 1e-6
)

// GripCalibration is written to CALIBRATION_FILE.
type GripCalibration struct {
	SchemaVersion int    `json:"schema_version"`
	CalibrationAt string `json:"calibration_at"` // RFC3339
	Channel       int    `json:"channel"`

	// Relaxed hand, volts
	RestMean float64 `json:"rest_mean"`

	// Held target grip, volts
	Samples     int     `json:"samples"`
	Dropped     int     `json:"dropped"`
	DurationSec float64 `json:"duration_sec"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"stddev"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Confidence  float64 `json:"confidence"`

	// Suggested config values
	ForceThreshold float64 `json:"force_threshold"`
	FeedbackBand   float64 `json:"feedback_band"`

	Notes []string `json:"notes,omitempty"`
}

// RunCalibration guides the subject through a rest capture and a held grip
// capture and writes the suggested FORCE_THRESHOLD to CALIBRATION_FILE.
func RunCalibration(in io.Reader, out io.Writer) error {
	cfg := config.Get()

	dev, err := sensors.Open(cfg)
	if err != nil {
		return fmt.Errorf("calibration: acquisition init: %w", err)
	}
	defer dev.Close()

	ctx, stop := signalContext()
	defer stop()

	res, err := runCalibration(ctx, cfg, dev, bufio.NewReader(in), out, calibrationPeriod)
	if err != nil {
		return err
	}
	if err := writeCalibration(cfg.CalibrationFile, res); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nWrote: %s\n", cfg.CalibrationFile)
	fmt.Fprintf(out, "Suggested config:\n  FORCE_THRESHOLD=%.4f\n  FEEDBACK_BAND=%.4f\n", res.ForceThreshold, res.FeedbackBand)
	return nil
}

func runCalibration(ctx context.Context, cfg *config.Config, dev sensors.Device, in *bufio.Reader, out io.Writer, period time.Duration) (GripCalibration, error) {
	dur := time.Duration(cfg.CalibrationS * float64(time.Second))

	fmt.Fprintln(out, "=== Grip force calibration ===")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Step 1/2: rest")
	fmt.Fprintln(out, "Rest the hand on the handle without gripping.")
	waitEnter(in, out, fmt.Sprintf("Press ENTER to start rest capture (%s)...", dur))
	rest, _, err := captureGrip(ctx, dev, cfg.GripChannel, dur, period)
	if err != nil {
		return GripCalibration{}, fmt.Errorf("calibration: rest capture: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Step 2/2: target grip")
	fmt.Fprintln(out, "Grip the handle at the target force and hold it steady.")
	waitEnter(in, out, fmt.Sprintf("Press ENTER to start grip capture (%s)...", dur))
	hold, dropped, err := captureGrip(ctx, dev, cfg.GripChannel, dur, period)
	if err != nil {
		return GripCalibration{}, fmt.Errorf("calibration: grip capture: %w", err)
	}

	res, err := computeGripCalibration(rest, hold, dur)
	if err != nil {
		return GripCalibration{}, fmt.Errorf("calibration: %w", err)
	}
	res.Channel = cfg.GripChannel
	res.Dropped = dropped

	fmt.Fprintf(out, "\nGrip mean=%.4f V std=%.4f V (%d samples, confidence %.2f)\n",
		res.Mean, res.StdDev, res.Samples, res.Confidence)
	for _, n := range res.Notes {
		fmt.Fprintf(out, "NOTE: %s\n", n)
	}
	return res, nil
}

// captureGrip reads the grip channel for dur. Dropped samples are counted,
// not fatal.
func captureGrip(ctx context.Context, dev sensors.Device, channel int, dur, period time.Duration) ([]float64, int, error) {
	deadline := time.Now().Add(dur)

	var (
		values  []float64
		dropped int
	)
	for time.Now().Before(deadline) {
		v, err := dev.Read(ctx)
		switch {
		case sensors.IsDropped(err):
			dropped++
		case err != nil:
			return nil, dropped, err
		default:
			values = append(values, v[channel])
		}

		select {
		case <-ctx.Done():
			return nil, dropped, ctx.Err()
		case <-time.After(period):
		}
	}
	return values, dropped, nil
}

func computeGripCalibration(rest, hold []float64, dur time.Duration) (GripCalibration, error) {
	if len(hold) < 2 {
		return GripCalibration{}, fmt.Errorf("not enough grip samples (%d)", len(hold))
	}

	res := GripCalibration{
		SchemaVersion: 1,
		CalibrationAt: time.Now().Format(time.RFC3339),
		Samples:       len(hold),
		DurationSec:   dur.Seconds(),
	}
	if len(rest) > 0 {
		res.RestMean = stat.Mean(rest, nil)
	}
	res.Mean, res.StdDev = stat.MeanStdDev(hold, nil)
	res.Min = floats.Min(hold)
	res.Max = floats.Max(hold)

	res.ForceThreshold = res.Mean
	res.FeedbackBand = bandSigmas * res.StdDev
	res.Confidence = steadinessConfidence(res.Mean-res.RestMean, res.StdDev)

	if res.Mean-res.RestMean <= math.Max(res.StdDev, minEffort) {
		res.Notes = append(res.Notes, "grip is not distinguishable from rest")
	}
	return res, nil
}

// steadinessConfidence maps the relative spread of the held grip to [confFloor, 1].
func steadinessConfidence(effort, std float64) float64 {
	if effort <= 0 {
		return confFloor
	}
	rel := std / effort
	switch {
	case rel <= steadyGood:
		return 1.0
	case rel >= steadyBad:
		return confFloor
	default:
		t := (rel - steadyGood) / (steadyBad - steadyGood)
		return math.Max(confFloor, 1.0-0.95*t)
	}
}

func writeCalibration(path string, res GripCalibration) error {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("calibration: write %s: %w", path, err)
	}
	log.Printf("calibration: saved results to %s", path)
	return nil
}

func waitEnter(in *bufio.Reader, out io.Writer, prompt string) {
	fmt.Fprint(out, prompt)
	_, _ = in.ReadString('\n')
}
