package sinks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/trainlog/internal/clock/system"
	"github.com/JakeFAU/trainlog/internal/evalviz"
	"github.com/JakeFAU/trainlog/internal/run"
	"github.com/JakeFAU/trainlog/internal/trainlog"
)

// Publisher sends a payload to a topic and returns the message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RunFinished is published when a run is finalized.
type RunFinished struct {
	Name       string    `json:"name"`
	Version    string    `json:"version"`
	Status     string    `json:"status"`
	FinishedAt time.Time `json:"finished_at"`
	LogDir     string    `json:"log_dir,omitempty"`
}

// NotifierConfig configures NewNotifier.
type NotifierConfig struct {
	Publisher Publisher
	Topic     string
	Session   run.Session
	LogDir    string
	Clock     run.Clock
	Logger    *zap.Logger
}

// Notifier announces the end of a run. Every other operation is a no-op.
type Notifier struct {
	pub     Publisher
	topic   string
	session run.Session
	logDir  string
	clock   run.Clock
	logger  *zap.Logger
}

var _ trainlog.Sink = (*Notifier)(nil)

// NewNotifier validates cfg and returns the sink.
func NewNotifier(cfg NotifierConfig) (*Notifier, error) {
	if cfg.Publisher == nil {
		return nil, trainlog.Unavailable("notify", "set notify.project_id and notify.topic")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = system.New()
	}
	return &Notifier{
		pub:     cfg.Publisher,
		topic:   cfg.Topic,
		session: cfg.Session,
		logDir:  cfg.LogDir,
		clock:   clock,
		logger:  logger,
	}, nil
}

// Name implements trainlog.Sink.
func (n *Notifier) Name() string { return "notify" }

// Log does nothing.
func (n *Notifier) Log(string) {}

// Info does nothing.
func (n *Notifier) Info(string) {}

// LogMetrics does nothing.
func (n *Notifier) LogMetrics(context.Context, trainlog.Metrics, int64, string) error { return nil }

// LogHyperparams does nothing.
func (n *Notifier) LogHyperparams(context.Context, trainlog.Params) error { return nil }

// DumpConfig does nothing.
func (n *Notifier) DumpConfig(context.Context, any) error { return nil }

// LogValResults does nothing.
func (n *Notifier) LogValResults(context.Context, evalviz.Results, trainlog.ValContext) error {
	return nil
}

// Finalize publishes RunFinished.
func (n *Notifier) Finalize(ctx context.Context, status trainlog.Status) error {
	msg := RunFinished{
		Name:       n.session.Name,
		Version:    n.session.Version,
		Status:     string(status),
		FinishedAt: n.clock.Now().UTC(),
		LogDir:     n.logDir,
	}
	id, err := n.pub.Publish(ctx, n.topic, msg)
	if err != nil {
		return trainlog.WrapBackend("notify", "publish", err)
	}
	n.logger.Info("run finished notification published", zap.String("message_id", id), zap.String("status", msg.Status))
	return nil
}
