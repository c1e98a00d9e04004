// Package sqlite provides a single-file metric repository for runs that have
// no database server, built on the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/trainlog/internal/store"
)

const migration = `
CREATE TABLE IF NOT EXISTS training_runs (
	run_key     TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	version     TEXT NOT NULL,
	log_dir     TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	status      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metric_points (
	run_key     TEXT NOT NULL REFERENCES training_runs(run_key),
	name        TEXT NOT NULL,
	step        INTEGER NOT NULL,
	value       REAL NOT NULL,
	recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_metric_points_run_name_step ON metric_points(run_key, name, step);
`

// MetricStore implements store.MetricRepository on SQLite.
type MetricStore struct {
	db *sql.DB
}

var _ store.MetricRepository = (*MetricStore)(nil)

// Open opens the database at path in WAL mode. Pragmas are passed in the DSN
// so that every pooled connection enforces foreign keys.
func Open(path string) (*MetricStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	params := url.Values{}
	for _, pragma := range []string{
		"journal_mode(WAL)",
		"busy_timeout(5000)",
		"synchronous(NORMAL)",
		"foreign_keys(1)",
	} {
		params.Add("_pragma", pragma)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}
	return &MetricStore{db: db}, nil
}

// Migrate creates the tables.
func (s *MetricStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, migration); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *MetricStore) Close() error {
	return s.db.Close()
}

// UpsertRun implements store.MetricRepository.
func (s *MetricStore) UpsertRun(ctx context.Context, run store.RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO training_runs (run_key, name, version, log_dir, started_at, status)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_key) DO UPDATE SET log_dir = excluded.log_dir`,
		run.Key, run.Name, run.Version, run.LogDir, run.StartedAt.UTC(), store.RunStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert run %s: %w", run.Key, err)
	}
	return nil
}

// InsertPoints writes all points in one transaction.
func (s *MetricStore) InsertPoints(ctx context.Context, points []store.MetricPoint) (err error) {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metric_points (run_key, name, step, value, recorded_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert point: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()
	for _, p := range points {
		if _, err = stmt.ExecContext(ctx, p.RunKey, p.Name, p.Step, p.Value, p.RecordedAt.UTC()); err != nil {
			return fmt.Errorf("sqlite: insert point %s: %w", p.Name, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit points: %w", err)
	}
	return nil
}

// CompleteRun implements store.MetricRepository.
func (s *MetricStore) CompleteRun(ctx context.Context, runKey string, status string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE training_runs SET finished_at = ?, status = ? WHERE run_key = ?`,
		finishedAt.UTC(), status, runKey,
	)
	if err != nil {
		return fmt.Errorf("sqlite: complete run %s: %w", runKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun implements store.MetricRepository.
func (s *MetricStore) GetRun(ctx context.Context, runKey string) (store.RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_key, name, version, log_dir, started_at, finished_at, status
		 FROM training_runs WHERE run_key = ?`,
		runKey,
	)
	var (
		run      store.RunRecord
		finished sql.NullTime
	)
	err := row.Scan(&run.Key, &run.Name, &run.Version, &run.LogDir, &run.StartedAt, &finished, &run.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return store.RunRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.RunRecord{}, fmt.Errorf("sqlite: get run %s: %w", runKey, err)
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}

// ListPoints implements store.MetricRepository.
func (s *MetricStore) ListPoints(ctx context.Context, runKey, name string, limit int) ([]store.MetricPoint, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_key, name, step, value, recorded_at
		 FROM metric_points
		 WHERE run_key = ? AND (? = '' OR name = ?)
		 ORDER BY name, step
		 LIMIT ?`,
		runKey, name, name, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list points %s: %w", runKey, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var points []store.MetricPoint
	for rows.Next() {
		var p store.MetricPoint
		if err := rows.Scan(&p.RunKey, &p.Name, &p.Step, &p.Value, &p.RecordedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate points: %w", err)
	}
	return points, nil
}
