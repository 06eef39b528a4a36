// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package samplelog

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/relabs-tech/force_feedback/internal/sample"
	"github.com/relabs-tech/force_feedback/internal/trial"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultBatchSize is the number of samples inserted per transaction.
const DefaultBatchSize = 500

// SQLiteSink stores runs, their timetable and samples in a sqlite database.
// Samples are buffered and inserted in batches; it is too slow to sit on
// the control loop directly and is normally wrapped in Async.
type SQLiteSink struct {
	db        *sql.DB
	runID     string
	batchSize int
	pending   []sample.Record
	seq       int64
}

// OpenSQLite opens (or creates) the database at path, migrates it to the
// latest schema and registers a new run.
func OpenSQLite(path, runID string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("samplelog: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("samplelog: pragmas: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteSink{db: db, runID: runID, batchSize: DefaultBatchSize}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("samplelog: migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("samplelog: sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("samplelog: migrate instance: %w", err)
	}
	// m is not closed: that would close db.
	m.Log = &migrateLogger{}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("samplelog: migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("samplelog: [migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// WriteSchedule registers the run and its trials.
func (s *SQLiteSink) WriteSchedule(sched trial.Schedule) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("samplelog: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO runs (run_id, trials) VALUES (?, ?)`, s.runID, len(sched)); err != nil {
		return fmt.Errorf("samplelog: insert run: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO trials (run_id, trial_idx, start_s, end_s, level) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("samplelog: prepare trials: %w", err)
	}
	defer stmt.Close()
	for _, t := range sched {
		if _, err := stmt.Exec(s.runID, t.Index, t.Start, t.End, t.Level); err != nil {
			return fmt.Errorf("samplelog: insert trial %d: %w", t.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("samplelog: commit schedule: %w", err)
	}
	return nil
}

// WriteSample buffers r and flushes a full batch.
func (s *SQLiteSink) WriteSample(r sample.Record) error {
	r.Channels = append([]float64(nil), r.Channels...)
	s.pending = append(s.pending, r)
	if len(s.pending) >= s.batchSize {
		return s.Flush()
	}
	return nil
}

// Flush inserts all buffered samples in one transaction.
func (s *SQLiteSink) Flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("samplelog: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO samples
		(run_id, seq, t, channels, filtered, reference, pos_x, pos_y, pos_z, magnitude, active, trial_idx)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("samplelog: prepare samples: %w", err)
	}
	defer stmt.Close()

	seq := s.seq
	for _, r := range s.pending {
		ch, err := json.Marshal(r.Channels)
		if err != nil {
			return fmt.Errorf("samplelog: encode channels: %w", err)
		}
		seq++
		if _, err := stmt.Exec(s.runID, seq, r.Elapsed, string(ch), r.Filtered, r.Reference,
			r.Position.X, r.Position.Y, r.Position.Z, r.Magnitude, r.Active, r.Trial); err != nil {
			return fmt.Errorf("samplelog: insert sample %d: %w", seq, err)
		}
	}
	if _, err := tx.Exec(`UPDATE runs SET samples = ? WHERE run_id = ?`, seq, s.runID); err != nil {
		return fmt.Errorf("samplelog: update run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("samplelog: commit samples: %w", err)
	}
	s.seq = seq
	s.pending = s.pending[:0]
	return nil
}

// Close flushes, marks the run finished and closes the database.
func (s *SQLiteSink) Close() error {
	err := s.Flush()
	if _, uerr := s.db.Exec(`UPDATE runs SET finished_at = CURRENT_TIMESTAMP WHERE run_id = ?`, s.runID); uerr != nil && err == nil {
		err = fmt.Errorf("samplelog: finish run: %w", uerr)
	}
	if cerr := s.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
