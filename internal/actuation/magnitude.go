// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuation

import "fmt"

// Defaults calibrated for the FSR grip sensor (volts) and the haptic engine's
// normalized magnitude.
const (
	DefaultLowBound  = 0.0349
	DefaultHighBound = 0.037
	DefaultCeiling   = 0.05
	DefaultBaseline  = 0.09
	DefaultGain      = 0.2
)

// MagnitudePolicy maps the filtered grip force to the perturbation magnitude.
// Below Low the trial's target level is used as is; above High the magnitude
// is clamped to Ceiling; in between it moves linearly from the target level
// to Ceiling, so the mapping is continuous at both bounds.
type MagnitudePolicy struct {
	Low     float64
	High    float64
	Ceiling float64
}

// DefaultMagnitudePolicy returns the policy used by the reference protocol.
func DefaultMagnitudePolicy() MagnitudePolicy {
	return MagnitudePolicy{Low: DefaultLowBound, High: DefaultHighBound, Ceiling: DefaultCeiling}
}

// Validate checks that the band is well formed.
func (p MagnitudePolicy) Validate() error {
	if p.High <= p.Low {
		return fmt.Errorf("magnitude policy: high bound %g must exceed low bound %g", p.High, p.Low)
	}
	if p.Ceiling < 0 {
		return fmt.Errorf("magnitude policy: ceiling must be non-negative, got %g", p.Ceiling)
	}
	return nil
}

// Magnitude returns the effect magnitude for filtered force f and the trial's
// target level.
func (p MagnitudePolicy) Magnitude(f, target float64) float64 {
	switch {
	case f < p.Low:
		return target
	case f > p.High:
		return p.Ceiling
	default:
		frac := (f - p.Low) / (p.High - p.Low)
		return target + frac*(p.Ceiling-target)
	}
}
