// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package samplelog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/relabs-tech/force_feedback/internal/sample"
	"github.com/relabs-tech/force_feedback/internal/trial"
)

// ErrBacklog is returned when the background writer fell too far behind.
var ErrBacklog = errors.New("samplelog: writer backlog full")

// Async moves a slow sink onto its own goroutine. Samples are queued without
// blocking; a full queue or a failed background write is reported by the
// next call.
type Async struct {
	inner Sink
	queue chan sample.Record
	done  chan struct{}

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	closeErr  error
}

// NewAsync starts the writer goroutine.
func NewAsync(inner Sink, queueLen int) *Async {
	a := &Async{
		inner: inner,
		queue: make(chan sample.Record, queueLen),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for r := range a.queue {
		if a.failed() != nil {
			continue
		}
		if err := a.inner.WriteSample(r); err != nil {
			a.setErr(err)
		}
	}
}

func (a *Async) setErr(err error) {
	a.mu.Lock()
	if a.err == nil {
		a.err = err
	}
	a.mu.Unlock()
}

func (a *Async) failed() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// WriteSchedule is written synchronously, before any sample is queued.
func (a *Async) WriteSchedule(s trial.Schedule) error {
	return a.inner.WriteSchedule(s)
}

// WriteSample queues r.
func (a *Async) WriteSample(r sample.Record) error {
	if err := a.failed(); err != nil {
		return err
	}
	r.Channels = append([]float64(nil), r.Channels...)
	select {
	case a.queue <- r:
		return nil
	default:
		a.setErr(ErrBacklog)
		return ErrBacklog
	}
}

// Close drains the queue and closes the inner sink.
func (a *Async) Close() error {
	a.closeOnce.Do(func() {
		close(a.queue)
		<-a.done
		err := a.inner.Close()
		if ferr := a.failed(); ferr != nil {
			err = errors.Join(ferr, err)
		}
		if err != nil {
			a.closeErr = fmt.Errorf("samplelog: async: %w", err)
		}
	})
	return a.closeErr
}
