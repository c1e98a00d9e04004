package sinks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/trainlog/internal/clock/system"
	"github.com/JakeFAU/trainlog/internal/evalviz"
	"github.com/JakeFAU/trainlog/internal/logging"
	"github.com/JakeFAU/trainlog/internal/run"
	"github.com/JakeFAU/trainlog/internal/tensorboard"
	"github.com/JakeFAU/trainlog/internal/trainlog"
)

const (
	// LogFileName is the plain-text log inside the run directory.
	LogFileName = "logs.txt"
	// ConfigFileName receives DumpConfig output.
	ConfigFileName = "train_cfg.yml"
	// ScalarPhase labels the single series AddScalars writes per metric.
	ScalarPhase = "Val"
)

// ScalarWriter records scalar time series.
type ScalarWriter interface {
	AddScalar(tag string, value float64, step int64) error
	AddScalars(mainTag string, values map[string]float64, step int64) error
	Flush() error
	Close() error
}

// ScalarWriterFactory opens a ScalarWriter rooted at dir.
type ScalarWriterFactory func(dir string) (ScalarWriter, error)

// TensorBoard opens a TensorBoard event writer.
func TensorBoard(dir string) (ScalarWriter, error) {
	w, err := tensorboard.NewWriter(dir)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// StructuredConfig configures NewStructured.
type StructuredConfig struct {
	Name    string
	SaveDir string
	// Rank of this process; only rank 0 (or a negative rank) may open the
	// scalar writer.
	Rank int
	// Session overrides the session derived from Name and Clock.
	Session run.Session
	Clock   run.Clock
	// Console receives colorized log lines; nil means stderr.
	Console io.Writer
	// Scalars opens the scalar writer on first use; nil means TensorBoard.
	Scalars ScalarWriterFactory
}

// Structured writes a text log to the console and the run directory, scalar
// series through a lazily opened ScalarWriter, and config dumps as YAML.
type Structured struct {
	session   run.Session
	dir       string
	rank      int
	logger    *logging.RunLogger
	factory   ScalarWriterFactory
	writer    ScalarWriter
	finalized bool
}

var _ trainlog.Sink = (*Structured)(nil)

// NewStructured creates save_dir/logs-<version> and attaches the run logger.
func NewStructured(cfg StructuredConfig) (*Structured, error) {
	if strings.TrimSpace(cfg.SaveDir) == "" {
		return nil, trainlog.Unavailable("structured", "set run.save_dir")
	}
	session := cfg.Session
	if session.Version == "" {
		clock := cfg.Clock
		if clock == nil {
			clock = system.New()
		}
		session = run.NewSession(cfg.Name, clock)
	}
	dir := session.LogDir(cfg.SaveDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, trainlog.WrapBackend("structured", "create run dir", err)
	}
	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}
	logger, err := logging.NewRunLogger(logging.RunLoggerConfig{
		Name:     session.Name,
		Console:  console,
		FilePath: filepath.Join(dir, LogFileName),
	})
	if err != nil {
		return nil, trainlog.WrapBackend("structured", "open log", err)
	}
	factory := cfg.Scalars
	if factory == nil {
		factory = TensorBoard
	}
	return &Structured{
		session: session,
		dir:     dir,
		rank:    cfg.Rank,
		logger:  logger,
		factory: factory,
	}, nil
}

// Name implements trainlog.Sink.
func (s *Structured) Name() string { return "structured" }

// Session returns the run identity.
func (s *Structured) Session() run.Session { return s.session }

// LogDir returns the run directory.
func (s *Structured) LogDir() string { return s.dir }

// Log implements trainlog.Sink.
func (s *Structured) Log(msg string) { s.logger.Info(msg) }

// Info implements trainlog.Sink.
func (s *Structured) Info(msg string) { s.logger.Info(msg) }

// Experiment returns the scalar writer, opening it on first use under the
// run directory.
func (s *Structured) Experiment() (ScalarWriter, error) {
	if !trainlog.IsCoordinator(s.rank) {
		return nil, fmt.Errorf("scalar writer on rank %d: %w", s.rank, trainlog.ErrNotCoordinator)
	}
	if s.writer != nil {
		return s.writer, nil
	}
	w, err := s.factory(s.dir)
	if err != nil {
		return nil, trainlog.WrapBackend("structured", "open scalar writer", err)
	}
	if w == nil {
		return nil, trainlog.Unavailable("structured", "scalar writer factory returned no writer")
	}
	s.writer = w
	return w, nil
}

// LogMetrics writes one summary line and one scalar point per metric.
func (s *Structured) LogMetrics(_ context.Context, metrics trainlog.Metrics, step int64, prefix string) error {
	if len(metrics) == 0 {
		return nil
	}
	s.logger.Info(fmt.Sprintf("%s: %s", prefix, formatMapping(metrics)))
	w, err := s.Experiment()
	if err != nil {
		return err
	}
	for _, k := range sortedKeys(metrics) {
		if err := w.AddScalars(prefix+k, map[string]float64{ScalarPhase: metrics[k]}, step); err != nil {
			return trainlog.WrapBackend("structured", "add scalars", err)
		}
	}
	return nil
}

// LogHyperparams implements trainlog.Sink.
func (s *Structured) LogHyperparams(_ context.Context, params trainlog.Params) error {
	s.logger.Info("hyperparams: " + formatMapping(params))
	return nil
}

// DumpConfig writes cfg as YAML to train_cfg.yml in the run directory.
func (s *Structured) DumpConfig(_ context.Context, cfg any) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	path := filepath.Join(s.dir, ConfigFileName)
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return trainlog.WrapBackend("structured", "dump config", err)
	}
	return nil
}

// LogValResults does nothing; qualitative results go to the tracking sink.
func (s *Structured) LogValResults(context.Context, evalviz.Results, trainlog.ValContext) error {
	return nil
}

// Save flushes pending scalar events and the log.
func (s *Structured) Save() error {
	var errs error
	if s.writer != nil {
		errs = multierr.Append(errs, s.writer.Flush())
	}
	if err := s.logger.Sync(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("sync run log: %w", err))
	}
	return errs
}

// Finalize closes the scalar writer and the log file. Repeated calls are
// ignored.
func (s *Structured) Finalize(_ context.Context, status trainlog.Status) error {
	if s.finalized {
		return nil
	}
	s.finalized = true
	s.logger.Info("run finished: " + string(status))
	var errs error
	if s.writer != nil {
		errs = multierr.Append(errs, s.writer.Flush())
		errs = multierr.Append(errs, s.writer.Close())
	}
	errs = multierr.Append(errs, s.Save())
	errs = multierr.Append(errs, s.logger.Close())
	if errs != nil {
		return trainlog.WrapBackend("structured", "finalize", errs)
	}
	return nil
}
