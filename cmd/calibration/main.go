// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibration/main.go
//
// Guided grip force calibration.
//   1. Rest: the hand lies on the handle, the grip channel offset is captured.
//   2. Grip: the subject holds the target force, mean and spread are captured.
//
// Output:
//
//	Writes CALIBRATION_FILE (JSON) with the suggested FORCE_THRESHOLD and
//	FEEDBACK_BAND plus a steadiness confidence.
//
// Run:
//
//	go run ./cmd/calibration
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/relabs-tech/force_feedback/internal/app"
	"github.com/relabs-tech/force_feedback/internal/config"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "force_feedback_config.txt", "Path to configuration file")
	flag.Parse()

	// Initialize configuration
	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	if err := app.RunCalibration(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
