// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sample

// Vec3 is a position reported by the haptic device.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Record is one accepted tick as written to the sample log.
type Record struct {
	Elapsed   float64   `json:"t"`         // seconds since run start
	Channels  []float64 `json:"channels"`  // raw voltages, channel 1 is grip force
	Filtered  float64   `json:"filtered"`  // sliding-window force average
	Reference float64   `json:"reference"` // oldest sample inside the force window

	Position  Vec3    `json:"position"`
	Magnitude float64 `json:"magnitude"` // commanded effect magnitude
	Active    bool    `json:"active"`    // perturbation engaged
	Trial     int     `json:"trial"`     // current 1-based trial index
}

// FeedbackMsg is published whenever the biofeedback level changes.
type FeedbackMsg struct {
	RunID   string  `json:"run_id"`
	Level   string  `json:"level"`  // "below", "within", "above"
	Symbol  string  `json:"symbol"` // "+++", "-", "---"
	Average float64 `json:"average"`
	Elapsed float64 `json:"t"`
}

// TrialEvent is published on every actuation transition.
type TrialEvent struct {
	RunID     string  `json:"run_id"`
	Trial     int     `json:"trial"`
	Kind      string  `json:"kind"` // "start" or "end"
	Elapsed   float64 `json:"t"`
	Filtered  float64 `json:"filtered"`
	Magnitude float64 `json:"magnitude"`
	Finished  bool    `json:"finished"`
}

// Status is a periodic snapshot of the run.
type Status struct {
	RunID     string  `json:"run_id"`
	Elapsed   float64 `json:"t"`
	Trial     int     `json:"trial"`
	Trials    int     `json:"trials"`
	Active    bool    `json:"active"`
	Finished  bool    `json:"finished"`
	Accepted  int64   `json:"accepted"`
	Dropped   int64   `json:"dropped"`
	Filtered  float64 `json:"filtered"`
	Magnitude float64 `json:"magnitude"`
	Level     string  `json:"level"`
}
