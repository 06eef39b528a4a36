// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package trial

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultLevel is the perturbation magnitude used for every trial unless a
// randomized policy is configured.
const DefaultLevel = 0.15

// LevelPolicy picks the target force level of trial i (0-based).
type LevelPolicy interface {
	Level(i int, rng Rand) float64
}

// FixedLevel uses the same level for every trial.
type FixedLevel float64

func (f FixedLevel) Level(int, Rand) float64 { return float64(f) }

// RandomLevels picks uniformly among discrete levels.
type RandomLevels []float64

func (r RandomLevels) Level(_ int, rng Rand) float64 {
	if len(r) == 0 {
		return DefaultLevel
	}
	return r[rng.IntN(len(r))]
}

// QuarterSteps returns the levels max/4, max/2, 3max/4 and max.
func QuarterSteps(max float64) RandomLevels {
	return RandomLevels{max / 4, max / 2, 3 * max / 4, max}
}

// ParseLevels parses a comma separated list such as "0.1,0.2,0.3".
func ParseLevels(s string) (RandomLevels, error) {
	var out RandomLevels
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid force level %q: %w", part, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("force level must be non-negative, got %g", v)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no force levels in %q", s)
	}
	return out, nil
}
