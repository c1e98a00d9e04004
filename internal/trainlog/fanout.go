package trainlog

import (
	"context"
	"strings"

	"go.uber.org/multierr"

	"github.com/JakeFAU/trainlog/internal/evalviz"
)

// Multi drives several sinks as one. Every operation reaches every sink in
// registration order even when an earlier sink fails; the failures are
// combined into one error.
type Multi struct {
	sinks []Sink
}

var _ Sink = (*Multi)(nil)

// Fanout combines sinks, skipping nils. A single sink is returned unchanged
// and no sinks yields Nop.
func Fanout(sinks ...Sink) Sink {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	switch len(kept) {
	case 0:
		return Nop{}
	case 1:
		return kept[0]
	}
	return &Multi{sinks: kept}
}

// Sinks returns the combined sinks.
func (m *Multi) Sinks() []Sink {
	return append([]Sink(nil), m.sinks...)
}

// Name joins the member names with "+".
func (m *Multi) Name() string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

// Log implements Sink.
func (m *Multi) Log(msg string) {
	for _, s := range m.sinks {
		s.Log(msg)
	}
}

// Info implements Sink.
func (m *Multi) Info(msg string) {
	for _, s := range m.sinks {
		s.Info(msg)
	}
}

// LogMetrics implements Sink.
func (m *Multi) LogMetrics(ctx context.Context, metrics Metrics, step int64, prefix string) error {
	if len(metrics) == 0 {
		return nil
	}
	return m.each(func(s Sink) error { return s.LogMetrics(ctx, metrics, step, prefix) })
}

// LogHyperparams implements Sink.
func (m *Multi) LogHyperparams(ctx context.Context, params Params) error {
	return m.each(func(s Sink) error { return s.LogHyperparams(ctx, params) })
}

// DumpConfig implements Sink.
func (m *Multi) DumpConfig(ctx context.Context, cfg any) error {
	return m.each(func(s Sink) error { return s.DumpConfig(ctx, cfg) })
}

// LogValResults implements Sink.
func (m *Multi) LogValResults(ctx context.Context, results evalviz.Results, vc ValContext) error {
	return m.each(func(s Sink) error { return s.LogValResults(ctx, results, vc) })
}

// Finalize implements Sink.
func (m *Multi) Finalize(ctx context.Context, status Status) error {
	return m.each(func(s Sink) error { return s.Finalize(ctx, status) })
}

func (m *Multi) each(fn func(Sink) error) error {
	var errs error
	for _, s := range m.sinks {
		errs = multierr.Append(errs, fn(s))
	}
	return errs
}
