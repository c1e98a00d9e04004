package trainlog

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/JakeFAU/trainlog/internal/evalviz"
)

const instrumentationName = "github.com/JakeFAU/trainlog/internal/trainlog"

type traced struct {
	next     Sink
	tracer   trace.Tracer
	duration metric.Float64Histogram
}

// Traced wraps next so every fallible operation runs in a span and its
// latency is recorded in the trainlog.sink.duration histogram.
func Traced(next Sink, tp trace.TracerProvider, mp metric.MeterProvider) (Sink, error) {
	hist, err := mp.Meter(instrumentationName).Float64Histogram(
		"trainlog.sink.duration",
		metric.WithDescription("Latency of sink operations."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &traced{next: next, tracer: tp.Tracer(instrumentationName), duration: hist}, nil
}

func (t *traced) Name() string    { return t.next.Name() }
func (t *traced) Log(msg string)  { t.next.Log(msg) }
func (t *traced) Info(msg string) { t.next.Info(msg) }

func (t *traced) LogMetrics(ctx context.Context, metrics Metrics, step int64, prefix string) error {
	return t.run(ctx, "log_metrics", func(ctx context.Context) error {
		return t.next.LogMetrics(ctx, metrics, step, prefix)
	}, attribute.Int64("step", step), attribute.Int("metrics", len(metrics)))
}

func (t *traced) LogHyperparams(ctx context.Context, params Params) error {
	return t.run(ctx, "log_hyperparams", func(ctx context.Context) error {
		return t.next.LogHyperparams(ctx, params)
	})
}

func (t *traced) DumpConfig(ctx context.Context, cfg any) error {
	return t.run(ctx, "dump_config", func(ctx context.Context) error {
		return t.next.DumpConfig(ctx, cfg)
	})
}

func (t *traced) LogValResults(ctx context.Context, results evalviz.Results, vc ValContext) error {
	return t.run(ctx, "log_val_results", func(ctx context.Context) error {
		return t.next.LogValResults(ctx, results, vc)
	}, attribute.Int("samples", len(results)))
}

func (t *traced) Finalize(ctx context.Context, status Status) error {
	return t.run(ctx, "finalize", func(ctx context.Context) error {
		return t.next.Finalize(ctx, status)
	}, attribute.String("status", string(status)))
}

func (t *traced) run(ctx context.Context, op string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	base := []attribute.KeyValue{attribute.String("sink", t.next.Name()), attribute.String("op", op)}
	ctx, span := t.tracer.Start(ctx, "trainlog."+op, trace.WithAttributes(append(base, attrs...)...))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	t.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(base...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
