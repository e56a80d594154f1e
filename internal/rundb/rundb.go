// Package rundb persists registration runs in a sqlite database so
// batches of alignments can be compared after the fact.
package rundb

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DB wraps the sqlite handle for run persistence.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the run database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			policy TEXT NOT NULL,
			target_file TEXT,
			source_file TEXT,
			target_points INTEGER,
			source_points INTEGER,
			initial_cost DOUBLE,
			final_cost DOUBLE,
			iterations INTEGER,
			converged BOOLEAN,
			pose TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

// Run is one recorded registration run. Pose is the final source pose as
// a JSON-encoded row-major 4x4 matrix.
type Run struct {
	RunID        string
	Policy       string
	TargetFile   string
	SourceFile   string
	TargetPoints int
	SourcePoints int
	InitialCost  float64
	FinalCost    float64
	Iterations   int
	Converged    bool
	Pose         string
	CreatedAt    time.Time
}

// RecordRun inserts a run, assigning a fresh RunID when empty.
func (db *DB) RecordRun(r *Run) error {
	if r.RunID == "" {
		r.RunID = uuid.NewString()
	}
	_, err := db.Exec(`
		INSERT INTO runs (
			run_id, policy, target_file, source_file,
			target_points, source_points,
			initial_cost, final_cost, iterations, converged, pose
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Policy, r.TargetFile, r.SourceFile,
		r.TargetPoints, r.SourcePoints,
		r.InitialCost, r.FinalCost, r.Iterations, r.Converged, r.Pose,
	)
	return err
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	rows, err := db.Query(`
		SELECT run_id, policy, target_file, source_file,
			target_points, source_points,
			initial_cost, final_cost, iterations, converged, pose, created_at
		FROM runs ORDER BY created_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(
			&r.RunID, &r.Policy, &r.TargetFile, &r.SourceFile,
			&r.TargetPoints, &r.SourcePoints,
			&r.InitialCost, &r.FinalCost, &r.Iterations, &r.Converged, &r.Pose, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
