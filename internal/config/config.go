// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/force_feedback/internal/trial"
)

// Config holds all application configuration values. Values are read once
// at process start; nothing reconfigures a running experiment.
type Config struct {
	// Protocol timing (seconds)
	Trials         int
	IntervalS      float64
	GapS           float64
	ForceDurationS float64
	InitialRestS   float64
	PostTrialS     float64

	// Biofeedback
	ForceThreshold float64
	FeedbackBand   float64

	// Clock and filters
	SamplePeriodS  float64
	TickTolerance  float64
	ForceWindow    int
	FeedbackWindow int
	FillMode       string // "growing" or "parity"

	// Force level selection
	LevelPolicy string // "fixed", "random" or "quarters"
	ForceLevel  float64
	ForceLevels string // comma separated levels for "random"
	RandomSeed  uint64 // 0 seeds from the wall clock

	// Magnitude mapping and effect
	MagnitudeLow      float64
	MagnitudeHigh     float64
	MagnitudeCeiling  float64
	BaselineMagnitude float64
	EffectGain        float64
	EffectDuration    float64

	// Acquisition
	DAQDriver        string // "mock", "serial" or "ads1115"
	DAQSerialPort    string
	DAQBaudRate      int
	DAQReadTimeoutMS int
	DAQChannels      int
	GripChannel      int
	ADCI2CBus        string
	ADCI2CAddrs      []uint16
	ADCMaxVoltage    float64
	MockGripLevel    float64

	// Haptic engine
	HapticDriver     string // "mock" or "serial"
	HapticSerialPort string
	HapticBaudRate   int

	// Output
	DataFile   string
	TimingFile string
	DBPath     string
	PlotFile   string

	// MQTT
	MQTTBroker             string
	MQTTClientIDController string
	MQTTClientIDConsole    string
	MQTTClientIDWeb        string
	MQTTClientIDDisplay    string

	// Topics
	TopicFeedback string
	TopicTrial    string
	TopicStatus   string
	StatusEvery   int // samples between status messages

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CBus string

	// Calibration
	CalibrationS    float64
	CalibrationFile string
}

// Default returns the configuration of the reference protocol.
func Default() *Config {
	return &Config{
		Trials:         20,
		IntervalS:      5,
		GapS:           2,
		ForceDurationS: 0.25,
		InitialRestS:   10,

		ForceThreshold: 0.0349,
		FeedbackBand:   0.004,

		SamplePeriodS:  0.001,
		TickTolerance:  0.1,
		ForceWindow:    50,
		FeedbackWindow: 25,
		FillMode:       "growing",

		LevelPolicy: "fixed",
		ForceLevel:  0.15,

		MagnitudeLow:      0.0349,
		MagnitudeHigh:     0.037,
		MagnitudeCeiling:  0.05,
		BaselineMagnitude: 0.09,
		EffectGain:        0.2,
		EffectDuration:    100,

		DAQDriver:        "mock",
		DAQBaudRate:      115200,
		DAQReadTimeoutMS: 5,
		DAQChannels:      6,
		GripChannel:      1,
		ADCI2CAddrs:      []uint16{0x48, 0x49},
		ADCMaxVoltage:    4.096,
		MockGripLevel:    0.02,

		HapticDriver:   "mock",
		HapticBaudRate: 115200,

		DataFile:   "volEMGData.txt",
		TimingFile: "voltiming.txt",

		MQTTClientIDController: "force-feedback-controller",
		MQTTClientIDConsole:    "force-feedback-console",
		MQTTClientIDWeb:        "force-feedback-web",
		MQTTClientIDDisplay:    "force-feedback-display",

		TopicFeedback: "force_feedback/feedback",
		TopicTrial:    "force_feedback/trial",
		TopicStatus:   "force_feedback/status",
		StatusEvery:   100,

		WebServerPort: 8080,

		CalibrationS:    5,
		CalibrationFile: "grip_calibration.json",
	}
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct. Keys not
// present in the file keep their Default value.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines from r on top of Default().
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func parseFloat(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return f, nil
}

func parseAddrs(key, value string) ([]uint16, error) {
	var out []uint16
	for _, field := range strings.Split(value, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		addr, err := strconv.ParseUint(field, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		out = append(out, uint16(addr))
	}
	return out, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Protocol timing
	case "TRIALS":
		c.Trials, err = parseInt(key, value)
	case "INTERVAL_S":
		c.IntervalS, err = parseFloat(key, value)
	case "INTERVAL_BETWEEN_TRIALS_S":
		c.GapS, err = parseFloat(key, value)
	case "FORCE_DURATION_S":
		c.ForceDurationS, err = parseFloat(key, value)
	case "INITIAL_REST_S":
		c.InitialRestS, err = parseFloat(key, value)
	case "POST_TRIAL_S":
		c.PostTrialS, err = parseFloat(key, value)

	// Biofeedback
	case "FORCE_THRESHOLD":
		c.ForceThreshold, err = parseFloat(key, value)
	case "FEEDBACK_BAND":
		c.FeedbackBand, err = parseFloat(key, value)

	// Clock and filters
	case "SAMPLE_PERIOD_S":
		c.SamplePeriodS, err = parseFloat(key, value)
	case "TICK_TOLERANCE":
		c.TickTolerance, err = parseFloat(key, value)
	case "FORCE_WINDOW":
		c.ForceWindow, err = parseInt(key, value)
	case "FEEDBACK_WINDOW":
		c.FeedbackWindow, err = parseInt(key, value)
	case "FILTER_FILL_MODE":
		c.FillMode = strings.ToLower(value)

	// Force level
	case "FORCE_LEVEL_POLICY":
		c.LevelPolicy = strings.ToLower(value)
	case "FORCE_LEVEL":
		c.ForceLevel, err = parseFloat(key, value)
	case "FORCE_LEVELS":
		c.ForceLevels = value
	case "RANDOM_SEED":
		c.RandomSeed, err = strconv.ParseUint(value, 0, 64)
		if err != nil {
			err = fmt.Errorf("invalid %s %q: %w", key, value, err)
		}

	// Magnitude
	case "MAGNITUDE_LOW":
		c.MagnitudeLow, err = parseFloat(key, value)
	case "MAGNITUDE_HIGH":
		c.MagnitudeHigh, err = parseFloat(key, value)
	case "MAGNITUDE_CEILING":
		c.MagnitudeCeiling, err = parseFloat(key, value)
	case "BASELINE_MAGNITUDE":
		c.BaselineMagnitude, err = parseFloat(key, value)
	case "EFFECT_GAIN":
		c.EffectGain, err = parseFloat(key, value)
	case "EFFECT_DURATION":
		c.EffectDuration, err = parseFloat(key, value)

	// Acquisition
	case "DAQ_DRIVER":
		c.DAQDriver = strings.ToLower(value)
	case "DAQ_SERIAL_PORT":
		c.DAQSerialPort = value
	case "DAQ_BAUD_RATE":
		c.DAQBaudRate, err = parseInt(key, value)
	case "DAQ_READ_TIMEOUT_MS":
		c.DAQReadTimeoutMS, err = parseInt(key, value)
	case "DAQ_CHANNELS":
		c.DAQChannels, err = parseInt(key, value)
	case "GRIP_CHANNEL":
		c.GripChannel, err = parseInt(key, value)
	case "ADC_I2C_BUS":
		c.ADCI2CBus = value
	case "ADC_I2C_ADDRS":
		c.ADCI2CAddrs, err = parseAddrs(key, value)
	case "ADC_MAX_VOLTAGE":
		c.ADCMaxVoltage, err = parseFloat(key, value)
	case "MOCK_GRIP_LEVEL":
		c.MockGripLevel, err = parseFloat(key, value)

	// Haptic
	case "HAPTIC_DRIVER":
		c.HapticDriver = strings.ToLower(value)
	case "HAPTIC_SERIAL_PORT":
		c.HapticSerialPort = value
	case "HAPTIC_BAUD_RATE":
		c.HapticBaudRate, err = parseInt(key, value)

	// Output
	case "DATA_FILE":
		c.DataFile = value
	case "TIMING_FILE":
		c.TimingFile = value
	case "DB_PATH":
		c.DBPath = value
	case "PLOT_FILE":
		c.PlotFile = value

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_CONTROLLER":
		c.MQTTClientIDController = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_FEEDBACK":
		c.TopicFeedback = value
	case "TOPIC_TRIAL":
		c.TopicTrial = value
	case "TOPIC_STATUS":
		c.TopicStatus = value
	case "STATUS_EVERY":
		c.StatusEvery, err = parseInt(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value

	// Calibration
	case "CALIBRATION_S":
		c.CalibrationS, err = parseFloat(key, value)
	case "CALIBRATION_FILE":
		c.CalibrationFile = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks cross-field constraints.
func (c *Config) validate() error {
	if c.Trials <= 0 {
		return fmt.Errorf("TRIALS must be positive, got %d", c.Trials)
	}
	if c.IntervalS <= 0 || c.ForceDurationS <= 0 {
		return fmt.Errorf("INTERVAL_S and FORCE_DURATION_S must be positive")
	}
	if c.GapS < 0 || c.InitialRestS < 0 || c.PostTrialS < 0 {
		return fmt.Errorf("INTERVAL_BETWEEN_TRIALS_S, INITIAL_REST_S and POST_TRIAL_S must not be negative")
	}
	if maxFD := trial.MaxForceDuration(c.IntervalS, c.GapS); c.Trials > 1 && c.ForceDurationS >= maxFD {
		return fmt.Errorf("FORCE_DURATION_S (%g) must be below INTERVAL_BETWEEN_TRIALS_S + INTERVAL_S/10000 (%g) or trials overlap",
			c.ForceDurationS, maxFD)
	}
	if c.SamplePeriodS <= 0 {
		return fmt.Errorf("SAMPLE_PERIOD_S must be positive, got %g", c.SamplePeriodS)
	}
	if c.TickTolerance <= 0 || c.TickTolerance >= 1 {
		return fmt.Errorf("TICK_TOLERANCE must be in (0, 1), got %g", c.TickTolerance)
	}
	if c.ForceWindow <= 0 || c.FeedbackWindow <= 0 {
		return fmt.Errorf("FORCE_WINDOW and FEEDBACK_WINDOW must be positive")
	}
	if c.FeedbackBand < 0 {
		return fmt.Errorf("FEEDBACK_BAND must not be negative, got %g", c.FeedbackBand)
	}
	if c.MagnitudeHigh <= c.MagnitudeLow {
		return fmt.Errorf("MAGNITUDE_HIGH (%g) must exceed MAGNITUDE_LOW (%g)", c.MagnitudeHigh, c.MagnitudeLow)
	}
	if c.DAQChannels <= 0 {
		return fmt.Errorf("DAQ_CHANNELS must be positive, got %d", c.DAQChannels)
	}
	if c.GripChannel < 0 || c.GripChannel >= c.DAQChannels {
		return fmt.Errorf("GRIP_CHANNEL %d out of range for %d channels", c.GripChannel, c.DAQChannels)
	}
	switch c.DAQDriver {
	case "mock", "ads1115":
	case "serial":
		if c.DAQSerialPort == "" {
			return fmt.Errorf("DAQ_SERIAL_PORT is required for DAQ_DRIVER=serial")
		}
	default:
		return fmt.Errorf("unknown DAQ_DRIVER %q", c.DAQDriver)
	}
	switch c.HapticDriver {
	case "mock":
	case "serial":
		if c.HapticSerialPort == "" {
			return fmt.Errorf("HAPTIC_SERIAL_PORT is required for HAPTIC_DRIVER=serial")
		}
	default:
		return fmt.Errorf("unknown HAPTIC_DRIVER %q", c.HapticDriver)
	}
	switch c.LevelPolicy {
	case "fixed", "quarters":
	case "random":
		if c.ForceLevels == "" {
			return fmt.Errorf("FORCE_LEVELS is required for FORCE_LEVEL_POLICY=random")
		}
	default:
		return fmt.Errorf("unknown FORCE_LEVEL_POLICY %q", c.LevelPolicy)
	}
	if c.DataFile == "" || c.TimingFile == "" {
		return fmt.Errorf("DATA_FILE and TIMING_FILE are required")
	}
	if c.StatusEvery <= 0 {
		return fmt.Errorf("STATUS_EVERY must be positive, got %d", c.StatusEvery)
	}
	return nil
}

// SamplePeriod returns SAMPLE_PERIOD_S as a duration.
func (c *Config) SamplePeriod() time.Duration {
	return time.Duration(c.SamplePeriodS * float64(time.Second))
}

// DAQReadTimeout returns DAQ_READ_TIMEOUT_MS as a duration.
func (c *Config) DAQReadTimeout() time.Duration {
	return time.Duration(c.DAQReadTimeoutMS) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
