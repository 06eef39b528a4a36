// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package actuation decides when the perturbing force is applied and how
// strong it is.
package actuation

import (
	"log"

	"github.com/relabs-tech/force_feedback/internal/sample"
)

// Logf reports non-fatal actuator errors. Tests may replace it.
var Logf func(format string, v ...interface{}) = log.Printf

// EffectKind selects the haptic effect primitive.
type EffectKind int

const (
	EffectConstant EffectKind = iota // constant force along Direction
	EffectSpring                     // spring anchored at Position
)

func (k EffectKind) String() string {
	switch k {
	case EffectConstant:
		return "constant"
	case EffectSpring:
		return "spring"
	default:
		return "unknown"
	}
}

// EffectParams configure an effect when it starts.
type EffectParams struct {
	Gain      float64
	Magnitude float64
	Duration  float64     // engine units, constant effect only
	Direction sample.Vec3 // constant effect only
	Position  sample.Vec3 // spring effect only
}

// Actuator is the command surface of the haptic engine. The engine renders
// on its own thread; every call is a fire-and-forget command whose effect is
// eventual, and implementations must be safe to call from the control loop
// while that thread runs.
type Actuator interface {
	StartEffect(kind EffectKind, params EffectParams) error
	UpdateEffect(gain, magnitude float64) error
	StopEffect() error
	CurrentPosition() sample.Vec3
}

// ErrorSource is implemented by actuators that surface asynchronous
// rendering errors.
type ErrorSource interface {
	DrainErrors() []error
}

// ReportErrors logs every pending asynchronous error of a, if it has any.
func ReportErrors(a Actuator) int {
	src, ok := a.(ErrorSource)
	if !ok {
		return 0
	}
	errs := src.DrainErrors()
	for _, err := range errs {
		Logf("actuation: haptic engine error: %v", err)
	}
	return len(errs)
}
