package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/trainlog/internal/clock/system"
	"github.com/JakeFAU/trainlog/internal/evalviz"
	"github.com/JakeFAU/trainlog/internal/run"
	"github.com/JakeFAU/trainlog/internal/store"
	"github.com/JakeFAU/trainlog/internal/trainlog"
)

// StoreConfig configures NewStore.
type StoreConfig struct {
	Repo    store.MetricRepository
	Session run.Session
	LogDir  string
	Clock   run.Clock
	Logger  *zap.Logger
}

// Store persists every metric point and the run lifecycle through a
// store.MetricRepository.
type Store struct {
	repo   store.MetricRepository
	key    string
	clock  run.Clock
	logger *zap.Logger
}

var _ trainlog.Sink = (*Store)(nil)

// NewStore records the run as running and returns the sink.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.Repo == nil {
		return nil, trainlog.Unavailable("store", "set store.driver and store.dsn")
	}
	if cfg.Session.Version == "" {
		return nil, fmt.Errorf("store sink requires a run session")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = system.New()
	}
	key := store.RunKey(cfg.Session.Name, cfg.Session.Version)
	err := cfg.Repo.UpsertRun(ctx, store.RunRecord{
		Key:       key,
		Name:      cfg.Session.Name,
		Version:   cfg.Session.Version,
		LogDir:    cfg.LogDir,
		StartedAt: cfg.Session.Started,
	})
	if err != nil {
		return nil, trainlog.WrapBackend("store", "upsert run", err)
	}
	return &Store{repo: cfg.Repo, key: key, clock: clock, logger: logger}, nil
}

// Name implements trainlog.Sink.
func (s *Store) Name() string { return "store" }

// RunKey returns the key the run is stored under.
func (s *Store) RunKey() string { return s.key }

// Log does nothing.
func (s *Store) Log(string) {}

// Info does nothing.
func (s *Store) Info(string) {}

// LogMetrics inserts one point per prefixed metric.
func (s *Store) LogMetrics(ctx context.Context, metrics trainlog.Metrics, step int64, prefix string) error {
	if len(metrics) == 0 {
		return nil
	}
	at := s.clock.Now()
	points := make([]store.MetricPoint, 0, len(metrics))
	for _, k := range sortedKeys(metrics) {
		points = append(points, store.MetricPoint{
			RunKey:     s.key,
			Name:       prefix + k,
			Step:       step,
			Value:      metrics[k],
			RecordedAt: at,
		})
	}
	if err := s.repo.InsertPoints(ctx, points); err != nil {
		return trainlog.WrapBackend("store", "insert points", err)
	}
	s.logger.Debug("metric points stored", zap.Int("points", len(points)), zap.Int64("step", step))
	return nil
}

// LogHyperparams does nothing.
func (s *Store) LogHyperparams(context.Context, trainlog.Params) error { return nil }

// DumpConfig does nothing.
func (s *Store) DumpConfig(context.Context, any) error { return nil }

// LogValResults does nothing.
func (s *Store) LogValResults(context.Context, evalviz.Results, trainlog.ValContext) error {
	return nil
}

// Finalize marks the run complete.
func (s *Store) Finalize(ctx context.Context, status trainlog.Status) error {
	if err := s.repo.CompleteRun(ctx, s.key, string(status), s.clock.Now()); err != nil {
		return trainlog.WrapBackend("store", "complete run", err)
	}
	return nil
}
