// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/trainlog/internal/app"
	"github.com/JakeFAU/trainlog/internal/config"
	memorypublisher "github.com/JakeFAU/trainlog/internal/publisher/memory"
	"github.com/JakeFAU/trainlog/internal/rank"
	"github.com/JakeFAU/trainlog/internal/tracking"
	"github.com/JakeFAU/trainlog/internal/trainlog"
	"github.com/JakeFAU/trainlog/internal/trainlog/sinks"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var start = time.Date(2024, 3, 5, 10, 0, 0, 0, time.Local)

func noEnv(string) (string, bool) { return "", false }

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Run:      config.RunConfig{Name: "yolo", SaveDir: filepath.Join(dir, "runs"), Rank: rank.Auto},
		Backends: []string{config.BackendStructured},
		Eval:     config.EvalConfig{NumSamples: 4},
		Store:    config.StoreConfig{Driver: "sqlite", Path: filepath.Join(dir, "metrics.db")},
		Notify:   config.NotifyConfig{Driver: "pubsub", Topic: "runs"},
	}
}

func newApp(t *testing.T, cfg config.Config, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{
		app.WithClock(fixedClock{t: start}),
		app.WithEnv(noEnv),
		app.WithConsole(io.Discard),
	}, opts...)
	a, err := app.New(context.Background(), cfg, zap.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestNewNonCoordinatorOpensNothing(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Backends = []string{config.BackendStructured, config.BackendTracking}
	a := newApp(t, cfg, app.WithEnv(func(key string) (string, bool) {
		if key == "RANK" {
			return "2", true
		}
		return "", false
	}))

	assert.Equal(t, 2, a.Rank())
	assert.False(t, a.Coordinator())
	assert.Equal(t, trainlog.Nop{}, a.Sink())
	_, err := os.Stat(cfg.Run.SaveDir)
	assert.True(t, os.IsNotExist(err), "non-coordinator must not create the run directory")
}

func TestNewCoordinatorWiresEveryBackend(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Backends = []string{
		config.BackendStructured,
		config.BackendTracking,
		config.BackendPrometheus,
		config.BackendStore,
		config.BackendNotify,
		config.BackendLog,
	}
	rec := tracking.NewRecorder()
	pub := memorypublisher.New()
	a := newApp(t, cfg, app.WithTrackingClient(rec), app.WithPublisher(pub))

	require.True(t, a.Coordinator())
	require.Equal(t, "2024-03-05-10-00-00", a.Session().Version)
	multi, ok := a.Sink().(*trainlog.Multi)
	require.True(t, ok)
	require.Equal(t, "structured+tracking+prometheus+store+notify+log", multi.Name())
	structured, ok := multi.Sinks()[0].(*sinks.Structured)
	require.True(t, ok)
	require.Equal(t, filepath.Join(cfg.Run.SaveDir, "logs-2024-03-05-10-00-00"), structured.LogDir())

	ctx := context.Background()
	sink := a.Sink()
	sink.Info("epoch 0 started")
	require.NoError(t, sink.LogMetrics(ctx, trainlog.Metrics{"mAP": 0.3}, 1, trainlog.DefaultValPrefix))
	require.NoError(t, sink.Finalize(ctx, trainlog.StatusSuccess))

	require.Len(t, rec.MetricCalls(), 1)
	status, finished := rec.Finished(rec.Runs()[0].ID)
	require.True(t, finished)
	require.Equal(t, "success", status)
	require.Len(t, pub.Messages(), 1)
	require.Equal(t, 1, testutil.CollectAndCount(a.Registry(), "trainlog_metric"))

	resp := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(resp,
		httptest.NewRequest(http.MethodGet, "/v1/runs/yolo/2024-03-05-10-00-00/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"name":"Val_metrics/mAP"`)

	raw, err := os.ReadFile(filepath.Join(structured.LogDir(), sinks.LogFileName))
	require.NoError(t, err)
	require.Contains(t, string(raw), "INFO: Val_metrics/: {mAP: 0.3}")
}

func TestNewMissingTrackingEndpoint(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Backends = []string{config.BackendStructured, config.BackendTracking}
	_, err := app.New(context.Background(), cfg, zap.NewNop(),
		app.WithClock(fixedClock{t: start}), app.WithEnv(noEnv), app.WithConsole(io.Discard))
	require.ErrorIs(t, err, trainlog.ErrBackendUnavailable)
	require.ErrorContains(t, err, "tracking.base_url")
}

func TestNewMissingNotifyTopic(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Backends = []string{config.BackendNotify}
	_, err := app.New(context.Background(), cfg, zap.NewNop(), app.WithEnv(noEnv))
	require.ErrorIs(t, err, trainlog.ErrBackendUnavailable)
}

func TestNewInvalidRankEnv(t *testing.T) {
	t.Parallel()

	_, err := app.New(context.Background(), baseConfig(t), zap.NewNop(), app.WithEnv(func(key string) (string, bool) {
		return "x", key == "RANK"
	}))
	require.ErrorContains(t, err, "resolve rank")
}

func TestServerServesSessionAndStats(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Backends = []string{config.BackendLog}
	a := newApp(t, cfg)

	resp := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/v1/run", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"version":"2024-03-05-10-00-00"`)
	require.Same(t, a.Board(), a.Server().Board())
}
