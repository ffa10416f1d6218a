package store

import (
	"database/sql"
	"errors"
	"time"
)

// RunStatus is the lifecycle state of a stored run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusFinished RunStatus = "finished"
	RunStatusStopped  RunStatus = "stopped"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one detection run.
type Run struct {
	ID         string
	Source     string
	Weights    string
	Status     RunStatus
	Message    string
	Frames     int
	OutputDir  string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// RunRepository provides access to run records.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

// Create inserts a new run in the running state.
func (r *RunRepository) Create(run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}

	_, err := r.db.Exec(
		`INSERT INTO runs (id, source, weights, status, message, frames, output_dir, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Weights, string(run.Status), run.Message, run.Frames,
		run.OutputDir, run.StartedAt,
	)
	return err
}

// Finish records the final state of a run.
func (r *RunRepository) Finish(id string, status RunStatus, message string, frames int, outputDir string) error {
	result, err := r.db.Exec(
		`UPDATE runs SET status = ?, message = ?, frames = ?, output_dir = ?, finished_at = ?
		 WHERE id = ?`,
		string(status), message, frames, outputDir, time.Now(), id,
	)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(id string) (*Run, error) {
	row := r.db.QueryRow(
		`SELECT id, source, weights, status, message, frames, output_dir, started_at, finished_at
		 FROM runs WHERE id = ?`,
		id,
	)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List returns the most recent runs first. A non-positive limit returns all.
func (r *RunRepository) List(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, source, weights, status, message, frames, output_dir, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	run := &Run{}
	var status string
	var finished sql.NullTime

	err := s.Scan(&run.ID, &run.Source, &run.Weights, &status, &run.Message, &run.Frames,
		&run.OutputDir, &run.StartedAt, &finished)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}
