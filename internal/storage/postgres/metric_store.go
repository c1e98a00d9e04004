// Package postgres provides the Postgres-backed metric repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/trainlog/internal/store"
)

// Schema creates the tables MetricStore writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS training_runs (
	run_key     TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	version     TEXT NOT NULL,
	log_dir     TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	status      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metric_points (
	run_key     TEXT NOT NULL REFERENCES training_runs(run_key),
	name        TEXT NOT NULL,
	step        BIGINT NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_metric_points_run_name_step ON metric_points(run_key, name, step);
`

var pointColumns = []string{"run_key", "name", "step", "value", "recorded_at"}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type conn interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error)
	Close()
}

// MetricStore implements store.MetricRepository using Postgres.
type MetricStore struct {
	pool conn
}

var _ store.MetricRepository = (*MetricStore)(nil)

// NewMetricStore opens a pool using cfg.
func NewMetricStore(ctx context.Context, cfg Config) (*MetricStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &MetricStore{pool: pool}, nil
}

// NewMetricStoreWithPool wraps an existing pool (or a pgxmock pool in tests).
func NewMetricStoreWithPool(pool conn) (*MetricStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &MetricStore{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *MetricStore) Close() {
	s.pool.Close()
}

// Migrate applies Schema.
func (s *MetricStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate metric schema: %w", err)
	}
	return nil
}

// UpsertRun inserts the run as running or refreshes its log directory.
func (s *MetricStore) UpsertRun(ctx context.Context, run store.RunRecord) error {
	query := `
		INSERT INTO training_runs (run_key, name, version, log_dir, started_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_key) DO UPDATE
		SET log_dir = EXCLUDED.log_dir;
	`
	_, err := s.pool.Exec(ctx, query, run.Key, run.Name, run.Version, run.LogDir, run.StartedAt, store.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}
	return nil
}

// InsertPoints bulk-loads points with COPY.
func (s *MetricStore) InsertPoints(ctx context.Context, points []store.MetricPoint) error {
	if len(points) == 0 {
		return nil
	}
	rows := make([][]any, len(points))
	for i, p := range points {
		rows[i] = []any{p.RunKey, p.Name, p.Step, p.Value, p.RecordedAt}
	}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"metric_points"}, pointColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy metric points: %w", err)
	}
	if n != int64(len(points)) {
		return fmt.Errorf("copied %d of %d metric points", n, len(points))
	}
	return nil
}

// CompleteRun records the final status of a run.
func (s *MetricStore) CompleteRun(ctx context.Context, runKey string, status string, finishedAt time.Time) error {
	query := `
		UPDATE training_runs
		SET finished_at = $1, status = $2
		WHERE run_key = $3;
	`
	res, err := s.pool.Exec(ctx, query, finishedAt, status, runKey)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun retrieves a single run by key.
func (s *MetricStore) GetRun(ctx context.Context, runKey string) (store.RunRecord, error) {
	query := `
		SELECT run_key, name, version, log_dir, started_at, finished_at, status
		FROM training_runs
		WHERE run_key = $1;
	`
	var run store.RunRecord
	err := s.pool.QueryRow(ctx, query, runKey).Scan(
		&run.Key,
		&run.Name,
		&run.Version,
		&run.LogDir,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.RunRecord{}, store.ErrNotFound
		}
		return store.RunRecord{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListPoints retrieves the metric series of a run ordered by step.
func (s *MetricStore) ListPoints(ctx context.Context, runKey, name string, limit int) ([]store.MetricPoint, error) {
	query := `
		SELECT run_key, name, step, value, recorded_at
		FROM metric_points
		WHERE run_key = $1 AND ($2::text = '' OR name = $2)
		ORDER BY name, step
		LIMIT NULLIF($3::int, 0);
	`
	if limit < 0 {
		limit = 0
	}
	rows, err := s.pool.Query(ctx, query, runKey, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list metric points: %w", err)
	}
	defer rows.Close()

	var points []store.MetricPoint
	for rows.Next() {
		var p store.MetricPoint
		if err := rows.Scan(&p.RunKey, &p.Name, &p.Step, &p.Value, &p.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan metric point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metric points: %w", err)
	}
	return points, nil
}
