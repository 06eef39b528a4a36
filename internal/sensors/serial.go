// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Port is the subset of serial.Port the DAQ needs.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// requestSample asks the DAQ firmware for one sample.
var requestSample = []byte("R\n")

// maxDrain bounds how much input a resync discards before giving up on
// the line going quiet.
const maxDrain = 4096

// SerialDAQ polls a microcontroller DAQ over a serial line. Each request is
// answered with one comma-separated line of channel voltages.
type SerialDAQ struct {
	port     Port
	channels int
	timeout  time.Duration
	buf      []byte
	scratch  []byte
	stale    bool // a previous request timed out, its reply may still arrive
}

// OpenSerialDAQ opens the DAQ serial port at 8N1.
func OpenSerialDAQ(path string, baud, channels int, timeout time.Duration) (*SerialDAQ, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("sensors: open DAQ %s: %w", path, err)
	}
	d, err := NewSerialDAQ(port, channels, timeout)
	if err != nil {
		port.Close()
		return nil, err
	}
	log.Printf("sensors: serial DAQ on %s at %d baud (%d channels, timeout %v)", path, baud, channels, timeout)
	return d, nil
}

// NewSerialDAQ wraps an already open port.
func NewSerialDAQ(port Port, channels int, timeout time.Duration) (*SerialDAQ, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("sensors: channel count must be positive, got %d", channels)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("sensors: read timeout must be positive, got %v", timeout)
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		return nil, fmt.Errorf("sensors: set read timeout: %w", err)
	}
	return &SerialDAQ{
		port:     port,
		channels: channels,
		timeout:  timeout,
		scratch:  make([]byte, 256),
	}, nil
}

// Read requests and parses one sample. It returns ErrSampleTimeout when no
// complete line arrived before the timeout and ErrMalformedSample when the
// line does not parse.
func (d *SerialDAQ) Read(ctx context.Context) ([]float64, error) {
	if d.stale {
		if err := d.drain(ctx); err != nil {
			return nil, err
		}
	}
	if _, err := d.port.Write(requestSample); err != nil {
		return nil, fmt.Errorf("sensors: request sample: %w", err)
	}

	deadline := time.Now().Add(d.timeout)
	for {
		if i := bytes.IndexByte(d.buf, '\n'); i >= 0 {
			line := string(d.buf[:i])
			d.buf = append(d.buf[:0], d.buf[i+1:]...)
			return parseLine(line, d.channels)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if time.Now().After(deadline) {
			d.stale = true
			return nil, ErrSampleTimeout
		}
		n, err := d.port.Read(d.scratch)
		if err != nil {
			return nil, fmt.Errorf("sensors: read DAQ: %w", err)
		}
		if n == 0 {
			// serial read timeout
			d.stale = true
			return nil, ErrSampleTimeout
		}
		d.buf = append(d.buf, d.scratch[:n]...)
	}
}

// drain discards input until one read timeout passes with nothing
// arriving, so a reply to a timed out request cannot be taken as the answer
// to the next one.
func (d *SerialDAQ) drain(ctx context.Context) error {
	if err := d.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("sensors: reset input: %w", err)
	}
	d.buf = d.buf[:0]

	for discarded := 0; discarded <= maxDrain; {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := d.port.Read(d.scratch)
		if err != nil {
			return fmt.Errorf("sensors: read DAQ: %w", err)
		}
		if n == 0 {
			d.stale = false
			return nil
		}
		discarded += n
	}
	// still streaming, try again on the next read
	return ErrSampleTimeout
}

func parseLine(line string, channels int) ([]float64, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != channels {
		return nil, fmt.Errorf("%w: expected %d channels, got %d in %q", ErrMalformedSample, channels, len(fields), line)
	}
	out := make([]float64, channels)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: channel %d: %v", ErrMalformedSample, i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Channels returns the channel count.
func (d *SerialDAQ) Channels() int { return d.channels }

// Close closes the port.
func (d *SerialDAQ) Close() error { return d.port.Close() }
