// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package haptic drives the force-feedback robot through a rendering host
// reached over a serial link.
package haptic

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/force_feedback/internal/actuation"
	"github.com/relabs-tech/force_feedback/internal/sample"
)

// ErrQueueFull is returned when a command cannot be queued without blocking
// the control loop.
var ErrQueueFull = errors.New("haptic: command queue full")

// ErrClosed is returned for commands issued after Close.
var ErrClosed = errors.New("haptic: bridge closed")

// DefaultQueueLen bounds the number of commands waiting for the writer.
const DefaultQueueLen = 64

// maxPendingErrors bounds the runtime errors kept between drains.
const maxPendingErrors = 32

// EngineError is a runtime error reported by the rendering host.
type EngineError struct {
	Code int
	Text string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("haptic engine error %d: %s", e.Code, e.Text)
}

// Bridge implements actuation.Actuator over the line protocol of the
// rendering host:
//
//	host <- START CONSTANT <duration> <dx> <dy> <dz>
//	host <- START SPRING <x> <y> <z>
//	host <- UPDATE <gain> <magnitude>
//	host <- STOP
//	host -> POS <x> <y> <z>
//	host -> ERR <code> <text>
//
// Commands are queued and written by a dedicated goroutine; positions and
// errors are parsed by another.
type Bridge struct {
	port io.ReadWriteCloser
	cmds chan string

	mu     sync.Mutex
	closed bool
	pos    sample.Vec3
	errs   []error

	writerDone chan struct{}
	readerDone chan struct{}
}

// OpenBridge opens the serial port of the rendering host at 8N1.
func OpenBridge(path string, baud int) (*Bridge, error) {
	opts := serial.OpenOptions{
		PortName:        path,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("haptic: open %s: %w", path, err)
	}
	log.Printf("haptic: bridge on %s at %d baud", path, baud)
	return NewBridge(port, DefaultQueueLen), nil
}

// NewBridge starts the writer and reader goroutines on port.
func NewBridge(port io.ReadWriteCloser, queueLen int) *Bridge {
	if queueLen <= 0 {
		queueLen = DefaultQueueLen
	}
	b := &Bridge{
		port:       port,
		cmds:       make(chan string, queueLen),
		writerDone: make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go b.writeLoop()
	go b.readLoop()
	return b
}

func (b *Bridge) enqueue(cmd string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	select {
	case b.cmds <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// StartEffect starts an effect and sets its initial gain and magnitude.
func (b *Bridge) StartEffect(kind actuation.EffectKind, p actuation.EffectParams) error {
	var cmd string
	switch kind {
	case actuation.EffectConstant:
		cmd = fmt.Sprintf("START CONSTANT %g %g %g %g", p.Duration, p.Direction.X, p.Direction.Y, p.Direction.Z)
	case actuation.EffectSpring:
		cmd = fmt.Sprintf("START SPRING %g %g %g", p.Position.X, p.Position.Y, p.Position.Z)
	default:
		return fmt.Errorf("haptic: unsupported effect %v", kind)
	}
	if err := b.enqueue(cmd); err != nil {
		return err
	}
	return b.UpdateEffect(p.Gain, p.Magnitude)
}

// UpdateEffect changes the gain and magnitude of the running effect.
func (b *Bridge) UpdateEffect(gain, magnitude float64) error {
	return b.enqueue(fmt.Sprintf("UPDATE %g %g", gain, magnitude))
}

// StopEffect stops the running effect.
func (b *Bridge) StopEffect() error {
	return b.enqueue("STOP")
}

// CurrentPosition returns the last position reported by the host.
func (b *Bridge) CurrentPosition() sample.Vec3 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos
}

// DrainErrors returns and clears the runtime errors seen since the last call.
func (b *Bridge) DrainErrors() []error {
	b.mu.Lock()
	defer b.mu.Unlock()
	errs := b.errs
	b.errs = nil
	return errs
}

func (b *Bridge) pushError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.errs) >= maxPendingErrors {
		b.errs = b.errs[1:]
	}
	b.errs = append(b.errs, err)
}

func (b *Bridge) writeLoop() {
	defer close(b.writerDone)
	for cmd := range b.cmds {
		if _, err := io.WriteString(b.port, cmd+"\n"); err != nil {
			b.pushError(fmt.Errorf("haptic: write %q: %w", cmd, err))
		}
	}
}

func (b *Bridge) readLoop() {
	defer close(b.readerDone)
	scanner := bufio.NewScanner(b.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := b.handleLine(line); err != nil {
			log.Printf("haptic: %v", err)
		}
	}
	if err := scanner.Err(); err != nil && !b.isClosed() {
		b.pushError(fmt.Errorf("haptic: read: %w", err))
	}
}

func (b *Bridge) handleLine(line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "POS":
		if len(fields) != 4 {
			return fmt.Errorf("malformed position %q", line)
		}
		var v [3]float64
		for i := range v {
			f, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return fmt.Errorf("malformed position %q: %w", line, err)
			}
			v[i] = f
		}
		b.mu.Lock()
		b.pos = sample.Vec3{X: v[0], Y: v[1], Z: v[2]}
		b.mu.Unlock()
	case "ERR":
		if len(fields) < 2 {
			return fmt.Errorf("malformed error report %q", line)
		}
		code, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("malformed error code %q: %w", line, err)
		}
		b.pushError(&EngineError{Code: code, Text: strings.Join(fields[2:], " ")})
	default:
		return fmt.Errorf("unexpected line %q", line)
	}
	return nil
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close flushes queued commands and closes the port.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.cmds)
	b.mu.Unlock()

	<-b.writerDone
	err := b.port.Close()
	<-b.readerDone
	return err
}
