package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatusRunning is stored until a run is completed with its final status.
const RunStatusRunning = "running"

// RunKey identifies a run across stores as "<name>/<version>".
func RunKey(name, version string) string {
	return name + "/" + version
}

// RunRecord models the training_runs table.
type RunRecord struct {
	Key        string     `json:"key"`
	Name       string     `json:"name"`
	Version    string     `json:"version"`
	LogDir     string     `json:"log_dir"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
}

// MetricPoint is one scalar of one step.
type MetricPoint struct {
	RunKey     string    `json:"run_key"`
	Name       string    `json:"name"`
	Step       int64     `json:"step"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// MetricRepository persists runs and their metric series.
type MetricRepository interface {
	// UpsertRun inserts the run as running, or refreshes its log dir.
	UpsertRun(ctx context.Context, run RunRecord) error
	// InsertPoints appends points; an empty slice is a no-op.
	InsertPoints(ctx context.Context, points []MetricPoint) error
	// CompleteRun records the final status, or returns ErrNotFound.
	CompleteRun(ctx context.Context, runKey string, status string, finishedAt time.Time) error
	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, runKey string) (RunRecord, error)
	// ListPoints returns the series of name (all names when empty) by step,
	// capped at limit when limit > 0.
	ListPoints(ctx context.Context, runKey, name string, limit int) ([]MetricPoint, error)
}
