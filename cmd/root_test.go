package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/trainlog/internal/app"
	"github.com/JakeFAU/trainlog/internal/config"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var start = time.Date(2024, 3, 5, 10, 0, 0, 0, time.Local)

// useTestApp swaps the package factories for deterministic ones; callers
// must not run in parallel.
func useTestApp(t *testing.T) {
	t.Helper()
	origApp, origClock := newApp, clock
	newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
		return app.New(ctx, cfg, zap.NewNop(),
			app.WithClock(fixedClock{t: start}),
			app.WithEnv(func(string) (string, bool) { return "", false }),
			app.WithConsole(io.Discard),
		)
	}
	clock = fixedClock{t: start}
	t.Cleanup(func() { newApp, clock = origApp, origClock })
}

func writeConfig(t *testing.T, saveDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trainlog.yaml")
	body := fmt.Sprintf(`run:
  name: yolo
  save_dir: %s
  rank: 0
backends: [structured]
`, saveDir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionPrintsRunVersion(t *testing.T) {
	useTestApp(t)
	saveDir := t.TempDir()

	out, err := execute(t, "--config", writeConfig(t, saveDir), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "trainlog ")
	assert.Contains(t, out, "run yolo 2024-03-05-10-00-00")
	assert.Contains(t, out, "logs "+filepath.Join(saveDir, "logs-2024-03-05-10-00-00"))
}

func TestInvalidConfigFails(t *testing.T) {
	useTestApp(t)

	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestReplayWritesRunLog(t *testing.T) {
	useTestApp(t)
	saveDir := t.TempDir()
	events := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(events, []byte(strings.Join([]string{
		`{"type":"hyperparams","params":{"lr":0.01}}`,
		`{"type":"loss","step":1,"epoch":0,"losses":{"box":1.0}}`,
		`{"type":"metrics","step":1,"metrics":{"mAP":0.25}}`,
		`{"type":"finalize","status":"success"}`,
	}, "\n")), 0o600))

	_, err := execute(t, "--config", writeConfig(t, saveDir), "replay", "--events", events)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(saveDir, "logs-2024-03-05-10-00-00", "logs.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "epoch 0 step 1: box 1.0000 (1.0000)")
	assert.Contains(t, string(raw), "Val_metrics/")
}

func TestReplayRequiresEventsFlag(t *testing.T) {
	useTestApp(t)

	_, err := execute(t, "--config", writeConfig(t, t.TempDir()), "replay")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "events" not set`)
}

func TestReplayMissingEventsFile(t *testing.T) {
	useTestApp(t)

	_, err := execute(t, "--config", writeConfig(t, t.TempDir()), "replay", "--events", filepath.Join(t.TempDir(), "nope.jsonl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open events")
}

func TestReplayReportsBadRecords(t *testing.T) {
	useTestApp(t)
	events := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(events, []byte(`{"type":"bogus"}`), 0o600))

	_, err := execute(t, "--config", writeConfig(t, t.TempDir()), "replay", "--events", events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown record type "bogus"`)
}

func TestResolveEnvRequiresRoot(t *testing.T) {
	t.Parallel()

	_, err := resolveEnv(context.Background())
	require.Error(t, err)
}
