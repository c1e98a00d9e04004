// Package app builds the configured logging backends of a training run and
// owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/trainlog/internal/api"
	"github.com/JakeFAU/trainlog/internal/clock/system"
	"github.com/JakeFAU/trainlog/internal/config"
	"github.com/JakeFAU/trainlog/internal/metrics"
	memorypublisher "github.com/JakeFAU/trainlog/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/trainlog/internal/publisher/pubsub"
	"github.com/JakeFAU/trainlog/internal/rank"
	"github.com/JakeFAU/trainlog/internal/run"
	"github.com/JakeFAU/trainlog/internal/storage"
	gcsstorage "github.com/JakeFAU/trainlog/internal/storage/gcs"
	localstorage "github.com/JakeFAU/trainlog/internal/storage/local"
	memorystorage "github.com/JakeFAU/trainlog/internal/storage/memory"
	pgstore "github.com/JakeFAU/trainlog/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/trainlog/internal/storage/sqlite"
	"github.com/JakeFAU/trainlog/internal/store"
	"github.com/JakeFAU/trainlog/internal/telemetry"
	"github.com/JakeFAU/trainlog/internal/tracking"
	"github.com/JakeFAU/trainlog/internal/trainlog"
	"github.com/JakeFAU/trainlog/internal/trainlog/sinks"
)

// ServiceName identifies the process in telemetry.
const ServiceName = "trainlog"

// App contains the run's sink and the infrastructure behind it.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     run.Clock
	rank      int
	session   run.Session
	registry  *prometheus.Registry
	board     *api.Board
	server    *api.Server
	sink      trainlog.Sink
	repo      store.MetricRepository
	telemetry *telemetry.Providers
	closers   []func(context.Context) error

	env            rank.Lookup
	console        io.Writer
	trackingClient tracking.Client
	publisher      sinks.Publisher
	scalars        sinks.ScalarWriterFactory
}

// Option customizes New.
type Option func(*App)

// WithClock sets the clock that stamps the run version.
func WithClock(c run.Clock) Option { return func(a *App) { a.clock = c } }

// WithEnv sets the environment lookup used for rank detection.
func WithEnv(env rank.Lookup) Option { return func(a *App) { a.env = env } }

// WithConsole sets where the structured backend echoes log lines.
func WithConsole(w io.Writer) Option { return func(a *App) { a.console = w } }

// WithTrackingClient replaces the HTTP tracking client.
func WithTrackingClient(c tracking.Client) Option { return func(a *App) { a.trackingClient = c } }

// WithPublisher replaces the configured notification publisher.
func WithPublisher(p sinks.Publisher) Option { return func(a *App) { a.publisher = p } }

// WithScalarWriter replaces the TensorBoard scalar writer.
func WithScalarWriter(f sinks.ScalarWriterFactory) Option { return func(a *App) { a.scalars = f } }

// New resolves the rank, stamps the run session and builds the configured
// backends. Processes other than the coordinator get a no-op sink and open
// nothing.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		clock:    system.New(),
		registry: prometheus.NewRegistry(),
		board:    api.NewBoard(),
	}
	for _, opt := range opts {
		opt(a)
	}

	r, err := rank.Resolve(cfg.Run.Rank, a.env)
	if err != nil {
		return nil, fmt.Errorf("resolve rank: %w", err)
	}
	a.rank = r
	a.session = run.NewSession(cfg.Run.Name, a.clock)
	logger.Info("creating application",
		zap.String("run", a.session.Name),
		zap.String("version", a.session.Version),
		zap.Int("rank", a.rank),
		zap.Strings("backends", cfg.Backends),
	)

	a.sink, err = trainlog.Open(a.rank, func() (trainlog.Sink, error) {
		return a.buildSink(ctx)
	})
	if err != nil {
		_ = a.closeAll(ctx)
		return nil, err
	}

	httpMetrics, err := metrics.NewHTTP(a.registry)
	if err != nil {
		_ = a.closeAll(ctx)
		return nil, fmt.Errorf("http metrics init failed: %w", err)
	}
	a.server = api.NewServer(api.Options{
		Session:     a.session,
		Board:       a.board,
		Repo:        a.repo,
		Gatherer:    a.registry,
		HTTPMetrics: httpMetrics,
		APIKey:      cfg.Server.APIKey,
		Logger:      logger.Named("api"),
	})
	return a, nil
}

func (a *App) buildSink(ctx context.Context) (trainlog.Sink, error) {
	if a.cfg.Telemetry.Enabled {
		providers, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:    ServiceName,
			ServiceVersion: a.session.Version,
			ProjectID:      a.cfg.Telemetry.ProjectID,
			Registerer:     a.registry,
		})
		if err != nil {
			return nil, fmt.Errorf("telemetry init failed: %w", err)
		}
		a.telemetry = providers
	}

	logDir := a.session.LogDir(a.cfg.Run.SaveDir)
	var backends []trainlog.Sink
	for _, name := range a.cfg.Backends {
		var (
			s   trainlog.Sink
			err error
		)
		switch name {
		case config.BackendStructured:
			s, err = a.setupStructured()
		case config.BackendTracking:
			s, err = a.setupTracking(ctx)
		case config.BackendPrometheus:
			s, err = sinks.NewPrometheus(a.registry)
		case config.BackendStore:
			s, err = a.setupStore(ctx, logDir)
		case config.BackendNotify:
			s, err = a.setupNotify(ctx, logDir)
		case config.BackendLog:
			s = sinks.NewLog(a.logger.Named("sink"))
		default:
			err = fmt.Errorf("unknown backend %q", name)
		}
		if err != nil {
			if len(backends) > 0 {
				_ = trainlog.Fanout(backends...).Finalize(ctx, trainlog.StatusFailed)
			}
			return nil, fmt.Errorf("%s backend: %w", name, err)
		}
		a.logger.Debug("backend ready", zap.String("backend", name))
		backends = append(backends, s)
	}

	sink := trainlog.Fanout(backends...)
	if a.telemetry == nil {
		return sink, nil
	}
	return traceSink(ctx, sink, a.telemetry.Tracer, a.telemetry.Meter)
}

// traceSink wraps sink in spans and latency metrics. On failure the
// already-open backends are finalized as failed.
func traceSink(ctx context.Context, sink trainlog.Sink, tp trace.TracerProvider, mp otelmetric.MeterProvider) (trainlog.Sink, error) {
	traced, err := trainlog.Traced(sink, tp, mp)
	if err != nil {
		err = fmt.Errorf("trace sink: %w", err)
		return nil, multierr.Append(err, sink.Finalize(ctx, trainlog.StatusFailed))
	}
	return traced, nil
}

func (a *App) setupStructured() (trainlog.Sink, error) {
	s, err := sinks.NewStructured(sinks.StructuredConfig{
		Name:    a.cfg.Run.Name,
		SaveDir: a.cfg.Run.SaveDir,
		Rank:    a.rank,
		Session: a.session,
		Clock:   a.clock,
		Console: a.console,
		Scalars: a.scalars,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("structured backend", zap.String("log_dir", s.LogDir()))
	return s, nil
}

func (a *App) setupTracking(ctx context.Context) (trainlog.Sink, error) {
	client := a.trackingClient
	if client == nil && a.cfg.Tracking.BaseURL != "" {
		httpClient, err := tracking.NewHTTPClient(tracking.Config{
			BaseURL: a.cfg.Tracking.BaseURL,
			APIKey:  a.cfg.Tracking.APIKey,
			Timeout: a.cfg.Tracking.Timeout,

			RequestsPerSecond: a.cfg.Tracking.RequestsPerSecond,
			Burst:             a.cfg.Tracking.Burst,
			OnThrottle: func(endpoint string, d time.Duration) {
				a.logger.Debug("tracking request throttled", zap.String("endpoint", endpoint), zap.Duration("delay", d))
			},
		})
		if err != nil {
			return nil, err
		}
		client = httpClient
	}
	if client == nil {
		return nil, trainlog.Unavailable("tracking", "set tracking.base_url")
	}
	artifacts, err := a.setupArtifacts(ctx)
	if err != nil {
		return nil, err
	}
	return sinks.NewTracking(ctx, sinks.TrackingConfig{
		Client:     client,
		Name:       a.cfg.Run.Name,
		Project:    a.cfg.Tracking.Project,
		Tags:       a.cfg.Tracking.Tags,
		Session:    a.session,
		Clock:      a.clock,
		NumSamples: a.cfg.Eval.NumSamples,
		Artifacts:  artifacts,
	})
}

func (a *App) setupArtifacts(ctx context.Context) (storage.BlobStore, error) {
	switch a.cfg.Artifacts.Driver {
	case "gcs":
		a.logger.Info("using GCS artifact store", zap.String("bucket", a.cfg.Artifacts.Bucket))
		blobs, closeFn, err := gcsstorage.Open(ctx, gcsstorage.Config{
			Bucket: a.cfg.Artifacts.Bucket,
			Prefix: a.cfg.Artifacts.Prefix,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.addCloser(func(context.Context) error { return closeFn() })
		return blobs, nil
	case "local":
		a.logger.Info("using local artifact store", zap.String("path", a.cfg.Artifacts.LocalDir))
		blobs, err := localstorage.New(localstorage.Config{
			Dir:    a.cfg.Artifacts.LocalDir,
			Prefix: a.cfg.Artifacts.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobs, nil
	case "memory":
		a.logger.Info("using in-memory artifact store")
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

func (a *App) setupStore(ctx context.Context, logDir string) (trainlog.Sink, error) {
	repo, err := a.openRepository(ctx)
	if err != nil {
		return nil, err
	}
	a.repo = repo
	return sinks.NewStore(ctx, sinks.StoreConfig{
		Repo:    repo,
		Session: a.session,
		LogDir:  logDir,
		Clock:   a.clock,
		Logger:  a.logger.Named("store"),
	})
}

func (a *App) openRepository(ctx context.Context) (store.MetricRepository, error) {
	switch a.cfg.Store.Driver {
	case "postgres":
		if a.cfg.Store.DSN == "" {
			return nil, trainlog.Unavailable("store", "set store.dsn")
		}
		pg, err := pgstore.NewMetricStore(ctx, pgstore.Config{
			DSN:             a.cfg.Store.DSN,
			MaxConns:        a.cfg.Store.MaxConns,
			MinConns:        a.cfg.Store.MinConns,
			MaxConnLifetime: a.cfg.Store.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres metric store init failed: %w", err)
		}
		a.addCloser(func(context.Context) error {
			pg.Close()
			return nil
		})
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		a.logger.Info("postgres metric store initialized")
		return pg, nil
	default:
		if a.cfg.Store.Path == "" {
			return nil, trainlog.Unavailable("store", "set store.path")
		}
		db, err := sqlitestore.Open(a.cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		a.addCloser(func(context.Context) error { return db.Close() })
		if err := db.Migrate(ctx); err != nil {
			return nil, err
		}
		a.logger.Info("sqlite metric store initialized", zap.String("path", a.cfg.Store.Path))
		return db, nil
	}
}

func (a *App) setupNotify(ctx context.Context, logDir string) (trainlog.Sink, error) {
	pub := a.publisher
	if pub == nil {
		switch a.cfg.Notify.Driver {
		case "memory":
			a.logger.Warn("using in-memory notification publisher")
			pub = memorypublisher.New()
		default:
			if a.cfg.Notify.ProjectID != "" && a.cfg.Notify.Topic != "" {
				gp, closeFn, err := gcppublisher.Open(ctx, a.cfg.Notify.ProjectID, a.cfg.Notify.Topic, a.logger)
				if err != nil {
					return nil, err
				}
				a.addCloser(func(context.Context) error {
					closeFn()
					return nil
				})
				a.logger.Info("Pub/Sub publisher initialized",
					zap.String("project", a.cfg.Notify.ProjectID),
					zap.String("topic", a.cfg.Notify.Topic),
				)
				pub = gp
			}
		}
	}
	if pub == nil {
		return nil, trainlog.Unavailable("notify", "set notify.project_id and notify.topic")
	}
	return sinks.NewNotifier(sinks.NotifierConfig{
		Publisher: pub,
		Topic:     a.cfg.Notify.Topic,
		Session:   a.session,
		LogDir:    logDir,
		Clock:     a.clock,
		Logger:    a.logger.Named("notify"),
	})
}

func (a *App) addCloser(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Sink returns the run's sink: every configured backend on the coordinator,
// a no-op elsewhere.
func (a *App) Sink() trainlog.Sink { return a.sink }

// Session returns the run session.
func (a *App) Session() run.Session { return a.session }

// Rank returns the resolved process rank.
func (a *App) Rank() int { return a.rank }

// Coordinator reports whether this process owns the backends.
func (a *App) Coordinator() bool { return trainlog.IsCoordinator(a.rank) }

// Board returns the stats board served by the monitor API.
func (a *App) Board() *api.Board { return a.board }

// Server returns the monitor API server.
func (a *App) Server() *api.Server { return a.server }

// Registry returns the Prometheus registry behind /metrics.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Close releases infrastructure in reverse order of creation and flushes
// telemetry. It does not finalize the sink; callers do that with the run's
// terminal status first.
func (a *App) Close(ctx context.Context) error {
	err := a.closeAll(ctx)
	if syncErr := a.logger.Sync(); syncErr != nil {
		a.logger.Debug("logger sync failed", zap.Error(syncErr))
	}
	a.logger.Info("shutdown complete")
	return err
}

func (a *App) closeAll(ctx context.Context) error {
	var errs error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	if a.telemetry != nil {
		errs = multierr.Append(errs, a.telemetry.Shutdown(ctx))
		a.telemetry = nil
	}
	if errs != nil {
		a.logger.Warn("close infrastructure", zap.Error(errs))
	}
	return errs
}
