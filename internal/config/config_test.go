// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.validate())
	assert.Equal(t, 20, cfg.Trials)
	assert.Equal(t, 0.0349, cfg.ForceThreshold)
	assert.Equal(t, time.Millisecond, cfg.SamplePeriod())
	assert.Equal(t, 5*time.Millisecond, cfg.DAQReadTimeout())
}

func TestParseOverridesDefaults(t *testing.T) {
	in := `
# short pilot run
TRIALS=3
INITIAL_REST_S = 1.5
FILTER_FILL_MODE=PARITY
ADC_I2C_ADDRS=0x48, 0x4A
RANDOM_SEED=42
MQTT_BROKER=tcp://localhost:1883
`
	cfg, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Trials)
	assert.Equal(t, 1.5, cfg.InitialRestS)
	assert.Equal(t, "parity", cfg.FillMode)
	assert.Equal(t, []uint16{0x48, 0x4a}, cfg.ADCI2CAddrs)
	assert.Equal(t, uint64(42), cfg.RandomSeed)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	// untouched keys keep their defaults
	assert.Equal(t, 5.0, cfg.IntervalS)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"unknown key", "NOPE=1", "unknown config key"},
		{"missing equals", "TRIALS", "invalid config line 1"},
		{"bad int", "TRIALS=many", "invalid TRIALS"},
		{"bad float", "INTERVAL_S=x", "invalid INTERVAL_S"},
		{"zero trials", "TRIALS=0", "TRIALS must be positive"},
		{"inverted magnitude band", "MAGNITUDE_HIGH=0.01", "MAGNITUDE_HIGH"},
		{"serial without port", "DAQ_DRIVER=serial", "DAQ_SERIAL_PORT"},
		{"haptic without port", "HAPTIC_DRIVER=serial", "HAPTIC_SERIAL_PORT"},
		{"random without levels", "FORCE_LEVEL_POLICY=random", "FORCE_LEVELS"},
		{"grip channel range", "GRIP_CHANNEL=6", "GRIP_CHANNEL"},
		{"tolerance range", "TICK_TOLERANCE=1", "TICK_TOLERANCE"},
		{"overlapping trials", "INTERVAL_BETWEEN_TRIALS_S=0", "FORCE_DURATION_S"},
		{"force outlasts gap", "INTERVAL_BETWEEN_TRIALS_S=0.2\nFORCE_DURATION_S=0.3", "trials overlap"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "force_feedback_config.txt")
	require.NoError(t, os.WriteFile(path, []byte("TRIALS=2\nDATA_FILE=out.txt\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Trials)
	assert.Equal(t, "out.txt", cfg.DataFile)

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestShippedConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load("../../force_feedback_config.txt")
	require.NoError(t, err)

	want := Default()
	want.MQTTBroker = "tcp://localhost:1883"
	assert.Equal(t, want, cfg)
}
