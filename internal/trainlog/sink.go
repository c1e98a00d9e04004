package trainlog

import (
	"context"

	"github.com/JakeFAU/trainlog/internal/dataset"
	"github.com/JakeFAU/trainlog/internal/evalviz"
)

// DefaultValPrefix namespaces validation metrics.
const DefaultValPrefix = "Val_metrics/"

// Metrics maps metric names to scalar values for one step.
type Metrics map[string]float64

// Params is a hyperparameter snapshot.
type Params map[string]any

// Status is the terminal state a run is finalized with.
type Status string

// Supported terminal states.
const (
	StatusSuccess     Status = "success"
	StatusFailed      Status = "failed"
	StatusFinished    Status = "finished"
	StatusInterrupted Status = "interrupted"
)

// Valid reports whether s is one of the supported states.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusFinished, StatusInterrupted:
		return true
	default:
		return false
	}
}

// ValContext carries what a sink needs to visualize validation results.
type ValContext struct {
	ClassNames []string
	Split      dataset.Split
}

// Sink receives the lifecycle of one run:
//
//	construct -> (Log | Info | LogMetrics | LogHyperparams | DumpConfig)*
//	  -> LogValResults after each validation epoch -> Finalize exactly once
//
// Log and Info never fail. LogMetrics with an empty map does nothing.
// Operations after Finalize are the caller's mistake and their effect is
// undefined. Implementations are not required to be safe for concurrent use.
type Sink interface {
	Name() string
	Log(msg string)
	Info(msg string)
	LogMetrics(ctx context.Context, metrics Metrics, step int64, prefix string) error
	LogHyperparams(ctx context.Context, params Params) error
	DumpConfig(ctx context.Context, cfg any) error
	LogValResults(ctx context.Context, results evalviz.Results, vc ValContext) error
	Finalize(ctx context.Context, status Status) error
}
