// Package config loads and validates trainlog configuration via Viper.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/trainlog/internal/dataset"
	"github.com/JakeFAU/trainlog/internal/rank"
)

// Backend names accepted in the backends list.
const (
	BackendStructured = "structured"
	BackendTracking   = "tracking"
	BackendPrometheus = "prometheus"
	BackendStore      = "store"
	BackendNotify     = "notify"
	BackendLog        = "log"
)

var knownBackends = []string{
	BackendStructured,
	BackendTracking,
	BackendPrometheus,
	BackendStore,
	BackendNotify,
	BackendLog,
}

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging    LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Run        RunConfig       `mapstructure:"run" yaml:"run"`
	Backends   []string        `mapstructure:"backends" yaml:"backends"`
	Tracking   TrackingConfig  `mapstructure:"tracking" yaml:"tracking"`
	Eval       EvalConfig      `mapstructure:"eval" yaml:"eval"`
	Artifacts  ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	Store      StoreConfig     `mapstructure:"store" yaml:"store"`
	Notify     NotifyConfig    `mapstructure:"notify" yaml:"notify"`
	Telemetry  TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Server     ServerConfig    `mapstructure:"server" yaml:"server"`
	Data       DataConfig      `mapstructure:"data" yaml:"data"`
	ClassNames []string        `mapstructure:"class_names" yaml:"class_names"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development" yaml:"development"`
}

// RunConfig names the run and places its directory.
type RunConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	SaveDir string `mapstructure:"save_dir" yaml:"save_dir"`
	// Rank of this process; rank.Auto reads the launcher environment.
	Rank int `mapstructure:"rank" yaml:"rank"`
}

// TrackingConfig points at the remote tracking service.
type TrackingConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string        `mapstructure:"api_key" yaml:"-"`
	Project string        `mapstructure:"project" yaml:"project"`
	Tags    []string      `mapstructure:"tags" yaml:"tags"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// RequestsPerSecond throttles each tracking endpoint; zero disables it.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// EvalConfig controls validation visualization.
type EvalConfig struct {
	NumSamples int `mapstructure:"num_samples" yaml:"num_samples"`
}

// ArtifactsConfig selects where visualized images are uploaded. An empty
// driver keeps local image paths in the tables.
type ArtifactsConfig struct {
	Driver   string `mapstructure:"driver" yaml:"driver"`
	LocalDir string `mapstructure:"local_dir" yaml:"local_dir"`
	Bucket   string `mapstructure:"bucket" yaml:"bucket"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// StoreConfig selects the metric database.
type StoreConfig struct {
	Driver          string        `mapstructure:"driver" yaml:"driver"`
	DSN             string        `mapstructure:"dsn" yaml:"-"`
	Path            string        `mapstructure:"path" yaml:"path"`
	MaxConns        int32         `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns" yaml:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" yaml:"max_conn_lifetime"`
}

// NotifyConfig holds run-finished notification settings.
type NotifyConfig struct {
	Driver    string `mapstructure:"driver" yaml:"driver"`
	ProjectID string `mapstructure:"project_id" yaml:"project_id"`
	Topic     string `mapstructure:"topic" yaml:"topic"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// ProjectID enables Cloud Trace export.
	ProjectID string `mapstructure:"project_id" yaml:"project_id"`
}

// ServerConfig controls the monitor HTTP server; an empty addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	// APIKey, when set, is required on every monitor request.
	APIKey string `mapstructure:"api_key" yaml:"-"`
}

// DataConfig describes the validation split.
type DataConfig struct {
	Val dataset.Split `mapstructure:"val" yaml:"val"`
}

// Enabled reports whether backend is listed.
func (c Config) Enabled(backend string) bool {
	return slices.Contains(c.Backends, backend)
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRAINLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("run.name", "trainlog")
	v.SetDefault("run.save_dir", "runs")
	v.SetDefault("run.rank", rank.Auto)
	v.SetDefault("backends", []string{BackendStructured})
	v.SetDefault("tracking.base_url", "")
	v.SetDefault("tracking.api_key", "")
	v.SetDefault("tracking.project", "")
	v.SetDefault("tracking.tags", []string{})
	v.SetDefault("tracking.timeout", "30s")
	v.SetDefault("tracking.requests_per_second", 0)
	v.SetDefault("tracking.burst", 1)
	v.SetDefault("eval.num_samples", 16)
	v.SetDefault("artifacts.driver", "")
	v.SetDefault("artifacts.local_dir", "")
	v.SetDefault("artifacts.bucket", "")
	v.SetDefault("artifacts.prefix", "trainlog")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.path", "trainlog.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("store.max_conn_lifetime", "30m")
	v.SetDefault("notify.driver", "pubsub")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.project_id", "")
	v.SetDefault("server.addr", "")
	v.SetDefault("server.api_key", "")
	v.SetDefault("data.val.name", "val")
	v.SetDefault("data.val.ann_path", "")
	v.SetDefault("data.val.img_path", "")
	v.SetDefault("class_names", []string{})
}

// Validate enforces required values and reasonable limits. Missing backend
// endpoints are not errors here; the backend reports them when it is built.
func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return fmt.Errorf("backends must list at least one backend")
	}
	for _, b := range c.Backends {
		if !slices.Contains(knownBackends, b) {
			return fmt.Errorf("unknown backend %q (want one of %s)", b, strings.Join(knownBackends, ", "))
		}
	}
	if c.Run.Rank < rank.Auto {
		return fmt.Errorf("run.rank must be >= %d", rank.Auto)
	}
	if c.Eval.NumSamples < 0 {
		return fmt.Errorf("eval.num_samples must be >= 0")
	}
	if c.Tracking.Timeout < 0 {
		return fmt.Errorf("tracking.timeout must be >= 0")
	}
	if c.Tracking.RequestsPerSecond < 0 {
		return fmt.Errorf("tracking.requests_per_second must be >= 0")
	}
	switch c.Artifacts.Driver {
	case "", "memory":
	case "local":
		if c.Artifacts.LocalDir == "" {
			return fmt.Errorf("artifacts.local_dir must be set when artifacts.driver is local")
		}
	case "gcs":
		if c.Artifacts.Bucket == "" {
			return fmt.Errorf("artifacts.bucket must be set when artifacts.driver is gcs")
		}
	default:
		return fmt.Errorf("unknown artifacts.driver %q", c.Artifacts.Driver)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	switch c.Notify.Driver {
	case "pubsub", "memory":
	default:
		return fmt.Errorf("unknown notify.driver %q", c.Notify.Driver)
	}
	return nil
}
