package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// FrameResult holds the class counts of one processed frame.
type FrameResult struct {
	ID         int64
	RunID      string
	FrameIndex int
	Path       string
	Counts     map[string]int
	CreatedAt  time.Time
}

// ResultRepository provides access to per-frame results.
type ResultRepository struct {
	db *sql.DB
}

// Results returns the frame result repository for this store.
func (s *Store) Results() *ResultRepository {
	return &ResultRepository{db: s.db}
}

// Append stores the counts of one frame.
func (r *ResultRepository) Append(fr *FrameResult) error {
	counts := fr.Counts
	if counts == nil {
		counts = map[string]int{}
	}
	data, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to encode counts: %w", err)
	}

	fr.CreatedAt = time.Now()
	result, err := r.db.Exec(
		`INSERT INTO frame_results (run_id, frame_index, path, counts, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		fr.RunID, fr.FrameIndex, fr.Path, string(data), fr.CreatedAt,
	)
	if err != nil {
		return err
	}

	fr.ID, err = result.LastInsertId()
	return err
}

// ListByRun returns the results of a run ordered by frame index.
func (r *ResultRepository) ListByRun(runID string) ([]*FrameResult, error) {
	rows, err := r.db.Query(
		`SELECT id, run_id, frame_index, path, counts, created_at
		 FROM frame_results WHERE run_id = ? ORDER BY frame_index ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*FrameResult
	for rows.Next() {
		fr := &FrameResult{}
		var counts string

		if err := rows.Scan(&fr.ID, &fr.RunID, &fr.FrameIndex, &fr.Path, &counts, &fr.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(counts), &fr.Counts); err != nil {
			return nil, fmt.Errorf("failed to decode counts of frame %d: %w", fr.FrameIndex, err)
		}
		results = append(results, fr)
	}

	return results, rows.Err()
}

// Totals sums the class counts over every frame of a run.
func (r *ResultRepository) Totals(runID string) (map[string]int, error) {
	rows, err := r.db.Query(
		`SELECT j.key, SUM(j.value)
		 FROM frame_results AS f, json_each(f.counts) AS j
		 WHERE f.run_id = ?
		 GROUP BY j.key`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var class string
		var n int
		if err := rows.Scan(&class, &n); err != nil {
			return nil, err
		}
		totals[class] = n
	}

	return totals, rows.Err()
}
