package sinks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/JakeFAU/trainlog/internal/clock/system"
	"github.com/JakeFAU/trainlog/internal/dataset"
	"github.com/JakeFAU/trainlog/internal/evalviz"
	"github.com/JakeFAU/trainlog/internal/id/uuid"
	"github.com/JakeFAU/trainlog/internal/run"
	"github.com/JakeFAU/trainlog/internal/storage"
	"github.com/JakeFAU/trainlog/internal/tracking"
	"github.com/JakeFAU/trainlog/internal/trainlog"
)

// IDGenerator issues remote run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// TrackingConfig configures NewTracking.
type TrackingConfig struct {
	Client  tracking.Client
	Name    string
	Project string
	Tags    []string
	Session run.Session
	Clock   run.Clock
	IDs     IDGenerator
	// NumSamples caps visualized samples per validation pass.
	NumSamples int
	// Dataset enumerates split records; nil reads COCO annotations.
	Dataset dataset.Provider
	// Artifacts, when set, receives each visualized image and the returned
	// URI becomes the image reference. Otherwise the local path is used.
	Artifacts storage.BlobStore
	// OpenImage reads an image for upload; nil means os.Open.
	OpenImage func(path string) (io.ReadCloser, error)
}

// Tracking forwards metrics, hyperparameters and evaluation tables to a
// remote tracking service. Text logs and config dumps stay local.
type Tracking struct {
	client     tracking.Client
	run        tracking.Run
	numSamples int
	provider   dataset.Provider
	indexes    map[dataset.Split]*dataset.Index
	artifacts  storage.BlobStore
	openImage  func(string) (io.ReadCloser, error)
	uploaded   map[string]string
	prefix     string
}

var _ trainlog.Sink = (*Tracking)(nil)

// NewTracking registers a remote run and returns the sink.
func NewTracking(ctx context.Context, cfg TrackingConfig) (*Tracking, error) {
	if cfg.Client == nil {
		return nil, trainlog.Unavailable("tracking", "set tracking.base_url")
	}
	session := cfg.Session
	if session.Version == "" {
		clock := cfg.Clock
		if clock == nil {
			clock = system.New()
		}
		session = run.NewSession(cfg.Name, clock)
	}
	ids := cfg.IDs
	if ids == nil {
		ids = uuid.New()
	}
	id, err := ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("tracking run id: %w", err)
	}
	remote := tracking.Run{
		ID:      id,
		Name:    session.Name,
		Version: session.Version,
		Project: cfg.Project,
		Tags:    cfg.Tags,
	}
	if err := cfg.Client.CreateRun(ctx, remote); err != nil {
		return nil, trainlog.WrapBackend("tracking", "create run", err)
	}
	numSamples := cfg.NumSamples
	if numSamples <= 0 {
		numSamples = evalviz.DefaultNumEvalSamples
	}
	provider := cfg.Dataset
	if provider == nil {
		provider = dataset.COCO{}
	}
	openImage := cfg.OpenImage
	if openImage == nil {
		openImage = func(path string) (io.ReadCloser, error) {
			return os.Open(filepath.Clean(path))
		}
	}
	return &Tracking{
		client:     cfg.Client,
		run:        remote,
		numSamples: numSamples,
		provider:   provider,
		indexes:    make(map[dataset.Split]*dataset.Index),
		artifacts:  cfg.Artifacts,
		openImage:  openImage,
		uploaded:   make(map[string]string),
	}, nil
}

// Name implements trainlog.Sink.
func (t *Tracking) Name() string { return "tracking" }

// Run returns the remote run.
func (t *Tracking) Run() tracking.Run { return t.run }

// Prefix returns the prefix of the last LogMetrics call.
func (t *Tracking) Prefix() string { return t.prefix }

// Log does nothing; text stays with the local sinks.
func (t *Tracking) Log(string) {}

// Info does nothing; text stays with the local sinks.
func (t *Tracking) Info(string) {}

// LogMetrics sends prefix+name keyed metrics for step.
func (t *Tracking) LogMetrics(ctx context.Context, metrics trainlog.Metrics, step int64, prefix string) error {
	if len(metrics) == 0 {
		return nil
	}
	t.prefix = prefix
	keyed := make(map[string]float64, len(metrics))
	for k, v := range metrics {
		keyed[prefix+k] = v
	}
	return trainlog.WrapBackend("tracking", "log metrics", t.client.LogMetrics(ctx, t.run.ID, keyed, step))
}

// LogHyperparams implements trainlog.Sink.
func (t *Tracking) LogHyperparams(ctx context.Context, params trainlog.Params) error {
	return trainlog.WrapBackend("tracking", "log params", t.client.LogParams(ctx, t.run.ID, params))
}

// DumpConfig does nothing; the service records the config itself.
func (t *Tracking) DumpConfig(context.Context, any) error { return nil }

// LogValResults submits the eval_samples table for the first NumSamples
// results. When no sample has a qualifying detection nothing is sent.
func (t *Tracking) LogValResults(ctx context.Context, results evalviz.Results, vc trainlog.ValContext) error {
	index, ok := t.indexes[vc.Split]
	if !ok {
		index = dataset.NewIndex(t.provider, vc.Split)
		t.indexes[vc.Split] = index
	}
	builder := evalviz.Builder{
		NumSamples: t.numSamples,
		Resolve: func(ctx context.Context, id int) (string, error) {
			path, err := index.Path(ctx, id)
			if err != nil {
				return "", err
			}
			return t.imageRef(ctx, id, path)
		},
	}
	rows, err := builder.Build(ctx, results, vc.ClassNames)
	if err != nil {
		return fmt.Errorf("build eval table: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	table := evalviz.NewTable(rows, vc.ClassNames)
	return trainlog.WrapBackend("tracking", "log table", t.client.LogTable(ctx, t.run.ID, table))
}

func (t *Tracking) imageRef(ctx context.Context, id int, path string) (string, error) {
	if t.artifacts == nil {
		return path, nil
	}
	if uri, ok := t.uploaded[path]; ok {
		return uri, nil
	}
	f, err := t.openImage(path)
	if err != nil {
		return "", fmt.Errorf("open image %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	key := storage.ArtifactPath(t.run.Name, t.run.Version, id, path)
	uri, err := t.artifacts.PutObject(ctx, key, storage.ContentType(path), f)
	if err != nil {
		return "", trainlog.WrapBackend("artifacts", "put object", err)
	}
	t.uploaded[path] = uri
	return uri, nil
}

// Save has nothing to flush; every call already reached the service.
func (t *Tracking) Save() error { return nil }

// Finalize closes the remote run with status, then saves.
func (t *Tracking) Finalize(ctx context.Context, status trainlog.Status) error {
	err := trainlog.WrapBackend("tracking", "finish run", t.client.FinishRun(ctx, t.run.ID, string(status)))
	return multierr.Append(err, t.Save())
}
