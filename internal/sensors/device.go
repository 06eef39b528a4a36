// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors provides the acquisition devices that deliver one
// multi-channel voltage sample per control tick.
package sensors

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/relabs-tech/force_feedback/internal/config"
)

// ErrSampleTimeout is returned when a device did not answer within its read
// timeout. The control loop counts it as a dropped sample.
var ErrSampleTimeout = errors.New("sensors: sample read timed out")

// ErrMalformedSample is returned when a device answered with a line that
// does not parse as one sample.
var ErrMalformedSample = errors.New("sensors: malformed sample")

// IsDropped reports whether err loses one sample without ending the run.
func IsDropped(err error) bool {
	return errors.Is(err, ErrSampleTimeout) || errors.Is(err, ErrMalformedSample)
}

// Device reads one sample across all channels. Channel GripChannel carries
// the grip force; the rest are EMG.
type Device interface {
	Read(ctx context.Context) ([]float64, error)
	Channels() int
	Close() error
}

// Open builds the device selected by DAQ_DRIVER.
func Open(cfg *config.Config) (Device, error) {
	switch cfg.DAQDriver {
	case "mock":
		log.Printf("sensors: using mock DAQ (%d channels, grip level %.4f V)", cfg.DAQChannels, cfg.MockGripLevel)
		return NewMock(cfg.DAQChannels, cfg.GripChannel, cfg.MockGripLevel), nil
	case "serial":
		return OpenSerialDAQ(cfg.DAQSerialPort, cfg.DAQBaudRate, cfg.DAQChannels, cfg.DAQReadTimeout())
	case "ads1115":
		return OpenADS1115(cfg.ADCI2CBus, cfg.ADCI2CAddrs, cfg.DAQChannels, cfg.ADCMaxVoltage)
	default:
		return nil, fmt.Errorf("sensors: unknown DAQ driver %q", cfg.DAQDriver)
	}
}
