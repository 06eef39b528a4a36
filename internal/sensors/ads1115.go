// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"log"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

// channelsPerChip is the number of single-ended inputs of one ADS1115.
const channelsPerChip = 4

// ads1115Rate is the fastest conversion rate the chip supports.
const ads1115Rate = 860 * physic.Hertz

// ADS1115 samples the grip and EMG channels from ADS1115 ADCs sharing one
// I2C bus. Channel n maps to input n%4 of chip n/4.
type ADS1115 struct {
	bus  i2c.BusCloser
	pins []ads1x15.PinADC
}

// OpenADS1115 initializes the chips at addrs on busName ("" selects the
// first available bus) and opens the first channels inputs.
func OpenADS1115(busName string, addrs []uint16, channels int, maxVolts float64) (*ADS1115, error) {
	if channels <= 0 || channels > len(addrs)*channelsPerChip {
		return nil, fmt.Errorf("ADS1115: %d channels need %d chips, have %d addresses",
			channels, (channels+channelsPerChip-1)/channelsPerChip, len(addrs))
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("ADS1115: periph host init: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("ADS1115: open I2C bus %q: %w", busName, err)
	}

	a := &ADS1115{bus: bus}
	maxV := physic.ElectricPotential(maxVolts * float64(physic.Volt))
	inputs := []ads1x15.Channel{ads1x15.Channel0, ads1x15.Channel1, ads1x15.Channel2, ads1x15.Channel3}

	for chip := 0; chip*channelsPerChip < channels; chip++ {
		addr := addrs[chip]
		dev, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: addr})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("ADS1115: chip 0x%02X: %w", addr, err)
		}
		for in := 0; in < channelsPerChip && chip*channelsPerChip+in < channels; in++ {
			pin, err := dev.PinForChannel(inputs[in], maxV, ads1115Rate, ads1x15.BestQuality)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("ADS1115: chip 0x%02X input %d: %w", addr, in, err)
			}
			a.pins = append(a.pins, pin)
		}
		log.Printf("ADS1115: chip 0x%02X ready", addr)
	}
	log.Printf("ADS1115: %d channels on bus %q (full scale %.3f V)", channels, busName, maxVolts)
	return a, nil
}

// Read converts every channel once and returns volts.
func (a *ADS1115) Read(ctx context.Context) ([]float64, error) {
	out := make([]float64, len(a.pins))
	for i, pin := range a.pins {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := pin.Read()
		if err != nil {
			return nil, fmt.Errorf("ADS1115: channel %d: %w", i, err)
		}
		out[i] = float64(s.V) / float64(physic.Volt)
	}
	return out, nil
}

// Channels returns the channel count.
func (a *ADS1115) Channels() int { return len(a.pins) }

// Close halts the pins and releases the bus.
func (a *ADS1115) Close() error {
	for _, pin := range a.pins {
		if err := pin.Halt(); err != nil {
			log.Printf("ADS1115: halt %s: %v", pin, err)
		}
	}
	a.pins = nil
	if a.bus == nil {
		return nil
	}
	err := a.bus.Close()
	a.bus = nil
	return err
}
