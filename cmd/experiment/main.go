// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/experiment/main.go
//
// Grip-force perturbation experiment controller.
//
// Run:
//
//	go run ./cmd/experiment -config ./force_feedback_config.txt
//
// The operator presses ENTER to begin; any further line stops the run.
// Samples go to DATA_FILE, the trial timetable to TIMING_FILE.
package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/force_feedback/internal/app"
	"github.com/relabs-tech/force_feedback/internal/config"
)

func main() {
	configPath := flag.String("config", "./force_feedback_config.txt", "path to configuration file")
	flag.Parse()

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunExperiment(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
