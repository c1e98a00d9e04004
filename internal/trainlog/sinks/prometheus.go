package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/trainlog/internal/evalviz"
	"github.com/JakeFAU/trainlog/internal/trainlog"
)

// Prometheus exposes the latest value of every metric as a gauge so a
// running job can be scraped or watched on the monitor endpoint.
type Prometheus struct {
	metric     *prometheus.GaugeVec
	step       prometheus.Gauge
	logLines   prometheus.Counter
	valResults prometheus.Counter
	valSamples prometheus.Counter
	finalized  *prometheus.CounterVec
}

var _ trainlog.Sink = (*Prometheus)(nil)

// NewPrometheus registers the collectors against reg (default registry when nil).
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &Prometheus{
		metric: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trainlog_metric",
			Help: "Latest value of each logged metric, keyed by prefixed name.",
		}, []string{"name"}),
		step: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trainlog_step",
			Help: "Step of the most recent LogMetrics call.",
		}),
		logLines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trainlog_log_lines_total",
			Help: "Text log lines emitted through the sink.",
		}),
		valResults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trainlog_val_results_total",
			Help: "Validation result batches received.",
		}),
		valSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trainlog_val_samples_total",
			Help: "Validation samples received across batches.",
		}),
		finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trainlog_finalized_total",
			Help: "Runs finalized, partitioned by status.",
		}, []string{"status"}),
	}
	for _, collector := range []prometheus.Collector{
		s.metric,
		s.step,
		s.logLines,
		s.valResults,
		s.valSamples,
		s.finalized,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register trainlog collector: %w", err)
		}
	}
	return s, nil
}

// Name implements trainlog.Sink.
func (s *Prometheus) Name() string { return "prometheus" }

// Log counts the line.
func (s *Prometheus) Log(string) { s.logLines.Inc() }

// Info counts the line.
func (s *Prometheus) Info(string) { s.logLines.Inc() }

// LogMetrics sets one gauge per prefixed metric name.
func (s *Prometheus) LogMetrics(_ context.Context, metrics trainlog.Metrics, step int64, prefix string) error {
	if len(metrics) == 0 {
		return nil
	}
	for k, v := range metrics {
		s.metric.WithLabelValues(prefix + k).Set(v)
	}
	s.step.Set(float64(step))
	return nil
}

// LogHyperparams does nothing; parameters are not time series.
func (s *Prometheus) LogHyperparams(context.Context, trainlog.Params) error { return nil }

// DumpConfig does nothing.
func (s *Prometheus) DumpConfig(context.Context, any) error { return nil }

// LogValResults counts the batch and its samples.
func (s *Prometheus) LogValResults(_ context.Context, results evalviz.Results, _ trainlog.ValContext) error {
	s.valResults.Inc()
	s.valSamples.Add(float64(len(results)))
	return nil
}

// Finalize counts the terminal status.
func (s *Prometheus) Finalize(_ context.Context, status trainlog.Status) error {
	s.finalized.WithLabelValues(string(status)).Inc()
	return nil
}
