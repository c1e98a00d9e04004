// Package replay drives a trainlog.Sink from a recorded training session: a
// JSON Lines stream of log, metric, hyperparameter, config, loss, validation
// and finalize records.
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/trainlog/internal/api"
	"github.com/JakeFAU/trainlog/internal/dataset"
	"github.com/JakeFAU/trainlog/internal/evalviz"
	"github.com/JakeFAU/trainlog/internal/stats"
	"github.com/JakeFAU/trainlog/internal/trainlog"
)

// Record types.
const (
	TypeLog         = "log"
	TypeInfo        = "info"
	TypeHyperparams = "hyperparams"
	TypeConfig      = "config"
	TypeMetrics     = "metrics"
	TypeLoss        = "loss"
	TypeEpochEnd    = "epoch_end"
	TypeValResults  = "val_results"
	TypeFinalize    = "finalize"
)

// TrainPrefix namespaces smoothed training losses.
const TrainPrefix = "train/"

// Event is one recorded call. Only the fields of its Type are set.
type Event struct {
	Type       string             `json:"type"`
	Msg        string             `json:"msg,omitempty"`
	Params     map[string]any     `json:"params,omitempty"`
	Config     map[string]any     `json:"config,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Prefix     *string            `json:"prefix,omitempty"`
	Step       int64              `json:"step,omitempty"`
	Epoch      int                `json:"epoch,omitempty"`
	BatchSize  int                `json:"batch_size,omitempty"`
	Losses     map[string]float64 `json:"losses,omitempty"`
	Results    evalviz.Results    `json:"results,omitempty"`
	ClassNames []string           `json:"class_names,omitempty"`
	Status     string             `json:"status,omitempty"`
}

// Config configures a Driver.
type Config struct {
	Sink trainlog.Sink
	// Board, when set, receives every running statistic after each update.
	Board *api.Board
	// Split is the validation split of val_results records.
	Split dataset.Split
	// ClassNames apply to val_results records that carry none.
	ClassNames []string
	// Window sizes the per-loss moving averages.
	Window int
	Logger *zap.Logger
}

// Driver replays events through a sink while keeping a moving average per
// loss key and an epoch AverageMeter per loss key.
type Driver struct {
	cfg       Config
	logger    *zap.Logger
	smoothed  map[string]*stats.MovingAverage
	epoch     map[string]*stats.AverageMeter
	finalized bool
}

// NewDriver validates cfg.
func NewDriver(cfg Config) (*Driver, error) {
	if cfg.Sink == nil {
		return nil, errors.New("replay requires a sink")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		cfg:      cfg,
		logger:   logger,
		smoothed: make(map[string]*stats.MovingAverage),
		epoch:    make(map[string]*stats.AverageMeter),
	}, nil
}

// Run replays r until EOF, a finalize record, an error or cancellation. The
// sink is always finalized: with the recorded status, with "finished" at EOF,
// "interrupted" on cancellation and "failed" on error.
func (d *Driver) Run(ctx context.Context, r io.Reader) error {
	err := d.replay(ctx, r)
	if d.finalized {
		return err
	}
	status := trainlog.StatusFinished
	switch {
	case ctx.Err() != nil:
		status = trainlog.StatusInterrupted
	case err != nil:
		status = trainlog.StatusFailed
	}
	// Finalize must run even after cancellation.
	finalizeErr := d.cfg.Sink.Finalize(context.WithoutCancel(ctx), status)
	d.finalized = true
	return errors.Join(err, finalizeErr)
}

func (d *Driver) replay(ctx context.Context, r io.Reader) error {
	dec := json.NewDecoder(r)
	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil
		}
		var ev Event
		err := dec.Decode(&ev)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("record %d: decode: %w", line, err)
		}
		if err := d.Apply(ctx, ev); err != nil {
			return fmt.Errorf("record %d (%s): %w", line, ev.Type, err)
		}
		if d.finalized {
			return nil
		}
	}
}

// Apply dispatches one event.
func (d *Driver) Apply(ctx context.Context, ev Event) error {
	sink := d.cfg.Sink
	switch ev.Type {
	case TypeLog:
		sink.Log(ev.Msg)
	case TypeInfo:
		sink.Info(ev.Msg)
	case TypeHyperparams:
		return sink.LogHyperparams(ctx, ev.Params)
	case TypeConfig:
		return sink.DumpConfig(ctx, ev.Config)
	case TypeMetrics:
		prefix := trainlog.DefaultValPrefix
		if ev.Prefix != nil {
			prefix = *ev.Prefix
		}
		return sink.LogMetrics(ctx, ev.Metrics, ev.Step, prefix)
	case TypeLoss:
		return d.applyLoss(ctx, ev)
	case TypeEpochEnd:
		d.endEpoch(ev.Epoch)
	case TypeValResults:
		names := ev.ClassNames
		if len(names) == 0 {
			names = d.cfg.ClassNames
		}
		return sink.LogValResults(ctx, ev.Results, trainlog.ValContext{ClassNames: names, Split: d.cfg.Split})
	case TypeFinalize:
		status := trainlog.Status(ev.Status)
		if !status.Valid() {
			return fmt.Errorf("invalid status %q", ev.Status)
		}
		d.finalized = true
		return sink.Finalize(ctx, status)
	default:
		return fmt.Errorf("unknown record type %q", ev.Type)
	}
	return nil
}

func (d *Driver) applyLoss(ctx context.Context, ev Event) error {
	if len(ev.Losses) == 0 {
		return nil
	}
	n := ev.BatchSize
	if n <= 0 {
		n = 1
	}
	keys := make([]string, 0, len(ev.Losses))
	for k := range ev.Losses {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	smoothed := make(trainlog.Metrics, len(keys))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := ev.Losses[k]
		ma, ok := d.smoothed[k]
		if ok {
			ma.Push(v)
		} else {
			ma = stats.NewMovingAverage(v, d.cfg.Window)
			d.smoothed[k] = ma
		}
		meter, ok := d.epoch[k]
		if ok {
			meter.UpdateN(v, n)
		} else {
			meter = &stats.AverageMeter{}
			meter.UpdateN(v, n)
			d.epoch[k] = meter
		}
		avg, err := ma.Avg()
		if err != nil {
			return fmt.Errorf("smooth %s: %w", k, err)
		}
		smoothed[k] = avg
		parts = append(parts, fmt.Sprintf("%s %.4f (%.4f)", k, v, avg))
		if d.cfg.Board != nil {
			d.cfg.Board.SetMovingAverage(TrainPrefix+k, ma)
			d.cfg.Board.SetAverageMeter("epoch/"+k, meter)
		}
	}
	d.cfg.Sink.Info(fmt.Sprintf("epoch %d step %d: %s", ev.Epoch, ev.Step, strings.Join(parts, ", ")))
	return d.cfg.Sink.LogMetrics(ctx, smoothed, ev.Step, TrainPrefix)
}

func (d *Driver) endEpoch(epoch int) {
	if len(d.epoch) == 0 {
		return
	}
	keys := make([]string, 0, len(d.epoch))
	for k := range d.epoch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		m := d.epoch[k]
		parts = append(parts, fmt.Sprintf("%s %.4f", k, m.Avg()))
		m.Reset()
		if d.cfg.Board != nil {
			d.cfg.Board.SetAverageMeter("epoch/"+k, m)
		}
	}
	d.cfg.Sink.Info(fmt.Sprintf("epoch %d done: %s", epoch, strings.Join(parts, ", ")))
	d.logger.Debug("epoch meters reset", zap.Int("epoch", epoch))
}

// Smoothed returns the moving average of loss key.
func (d *Driver) Smoothed(key string) (*stats.MovingAverage, bool) {
	m, ok := d.smoothed[key]
	return m, ok
}

// EpochMeter returns the epoch meter of loss key.
func (d *Driver) EpochMeter(key string) (*stats.AverageMeter, bool) {
	m, ok := d.epoch[key]
	return m, ok
}
