package trainlog

import (
	"context"

	"github.com/JakeFAU/trainlog/internal/evalviz"
)

// IsCoordinator reports whether rank performs durable writes. Negative ranks
// mean the process is not part of a distributed job.
func IsCoordinator(rank int) bool {
	return rank <= 0
}

// Open is the coordinator gate. Non-coordinator ranks get Nop and build is
// never called, so no directory, file or network resource is created for
// them.
func Open(rank int, build func() (Sink, error)) (Sink, error) {
	if !IsCoordinator(rank) {
		return Nop{}, nil
	}
	return build()
}

// Nop discards everything.
type Nop struct{}

var _ Sink = Nop{}

// Name implements Sink.
func (Nop) Name() string { return "nop" }

// Log implements Sink.
func (Nop) Log(string) {}

// Info implements Sink.
func (Nop) Info(string) {}

// LogMetrics implements Sink.
func (Nop) LogMetrics(context.Context, Metrics, int64, string) error { return nil }

// LogHyperparams implements Sink.
func (Nop) LogHyperparams(context.Context, Params) error { return nil }

// DumpConfig implements Sink.
func (Nop) DumpConfig(context.Context, any) error { return nil }

// LogValResults implements Sink.
func (Nop) LogValResults(context.Context, evalviz.Results, ValContext) error { return nil }

// Finalize implements Sink.
func (Nop) Finalize(context.Context, Status) error { return nil }
