package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/trainlog/internal/evalviz"
	"github.com/JakeFAU/trainlog/internal/trainlog"
)

// Log emits every operation as a structured zap entry. It is useful while
// debugging a driver, or on hosts where the run directory is not kept.
type Log struct {
	logger *zap.Logger
}

var _ trainlog.Sink = (*Log)(nil)

// NewLog wires a Zap logger to the sink interface.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Name implements trainlog.Sink.
func (s *Log) Name() string { return "log" }

// Log implements trainlog.Sink.
func (s *Log) Log(msg string) { s.logger.Info(msg) }

// Info implements trainlog.Sink.
func (s *Log) Info(msg string) { s.logger.Info(msg) }

// LogMetrics logs one entry with a field per metric.
func (s *Log) LogMetrics(_ context.Context, metrics trainlog.Metrics, step int64, prefix string) error {
	if len(metrics) == 0 {
		return nil
	}
	fields := make([]zap.Field, 0, len(metrics)+2)
	fields = append(fields, zap.Int64("step", step), zap.String("prefix", prefix))
	for _, k := range sortedKeys(metrics) {
		fields = append(fields, zap.Float64(prefix+k, metrics[k]))
	}
	s.logger.Info("metrics", fields...)
	return nil
}

// LogHyperparams implements trainlog.Sink.
func (s *Log) LogHyperparams(_ context.Context, params trainlog.Params) error {
	s.logger.Info("hyperparams", zap.Any("params", map[string]any(params)))
	return nil
}

// DumpConfig implements trainlog.Sink.
func (s *Log) DumpConfig(_ context.Context, cfg any) error {
	s.logger.Debug("config", zap.Any("config", cfg))
	return nil
}

// LogValResults logs the batch size.
func (s *Log) LogValResults(_ context.Context, results evalviz.Results, vc trainlog.ValContext) error {
	s.logger.Info("validation results",
		zap.Int("samples", len(results)),
		zap.String("split", vc.Split.Name),
		zap.Int("classes", len(vc.ClassNames)),
	)
	return nil
}

// Finalize implements trainlog.Sink.
func (s *Log) Finalize(_ context.Context, status trainlog.Status) error {
	s.logger.Info("run finalized", zap.String("status", string(status)))
	return nil
}
