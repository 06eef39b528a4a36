// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/relabs-tech/force_feedback/internal/config"
	"github.com/relabs-tech/force_feedback/internal/sample"
)

// RunConsoleMQTT prints the biofeedback cue, trial events and run status
// published by the experiment controller.
func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := connectMQTT("console", cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}

	p := &consolePrinter{w: os.Stdout}
	if err := subscribe(client, "console", cfg.TopicFeedback,
		jsonHandler("console", "feedback", p.feedback)); err != nil {
		return err
	}
	if err := subscribe(client, "console", cfg.TopicTrial,
		jsonHandler("console", "trial", p.trial)); err != nil {
		return err
	}
	if err := subscribe(client, "console", cfg.TopicStatus,
		jsonHandler("console", "status", p.status)); err != nil {
		return err
	}

	waitForSignal()

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

// consolePrinter formats controller messages, one line each.
type consolePrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *consolePrinter) printf(format string, a ...interface{}) {
	p.mu.Lock()
	fmt.Fprintf(p.w, format, a...)
	p.mu.Unlock()
}

func (p *consolePrinter) feedback(m sample.FeedbackMsg) {
	p.printf("%-3s  avg=%.4f V  t=%8.3f s\n", m.Symbol, m.Average, m.Elapsed)
}

func (p *consolePrinter) trial(e sample.TrialEvent) {
	p.printf("[TRIAL %2d] %-5s t=%8.3f s  force=%.4f V  magnitude=%.3f\n",
		e.Trial, e.Kind, e.Elapsed, e.Filtered, e.Magnitude)
	if e.Finished {
		p.printf("Experiment is done!\n")
	}
}

func (p *consolePrinter) status(s sample.Status) {
	p.printf("[STATUS] trial %d/%d  t=%.1f s  samples=%d dropped=%d  level=%s\n",
		min(s.Trial, s.Trials), s.Trials, s.Elapsed, s.Accepted, s.Dropped, s.Level)
}
