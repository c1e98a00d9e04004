// Package logging includes tests for the zap logger helpers.
package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

var plainLine = regexp.MustCompile(`^\[yolo\]\[\d{2}-\d{2} \d{2}:\d{2}:\d{2}\]INFO: epoch 3 done$`)

func TestRunLoggerFileLineFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs.txt")
	logger, err := NewRunLogger(RunLoggerConfig{Name: "yolo", FilePath: path})
	require.NoError(t, err)

	logger.Info("epoch 3 done")
	logger.Debug("hidden below info")
	require.NoError(t, logger.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 1)
	require.Regexp(t, plainLine, lines[0])
}

func TestRunLoggerConsoleIsColored(t *testing.T) {
	t.Parallel()

	var console bytes.Buffer
	logger, err := NewRunLogger(RunLoggerConfig{Name: "yolo", Console: &console})
	require.NoError(t, err)

	logger.Warn("slow step")
	require.NoError(t, logger.Close())

	out := console.String()
	require.Contains(t, out, ansiBold+ansiMagenta+"[yolo]"+ansiReset)
	require.Contains(t, out, ansiYellow+"WARN:"+ansiReset+ansiWhite+"slow step"+ansiReset)
	require.True(t, strings.HasSuffix(out, "\n"))
}

func TestRunLoggerSpacingDiffersBySink(t *testing.T) {
	t.Parallel()

	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs.txt")
	logger, err := NewRunLogger(RunLoggerConfig{Name: "yolo", Console: &console, FilePath: path})
	require.NoError(t, err)

	logger.Info("epoch 1 done")
	require.NoError(t, logger.Close())

	require.Contains(t, console.String(), "INFO:"+ansiReset+ansiWhite+"epoch 1 done")
	require.NotContains(t, console.String(), "INFO:"+ansiReset+" ")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "INFO: epoch 1 done\n")
}

func TestRunLoggerAppendsFields(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs.txt")
	logger, err := NewRunLogger(RunLoggerConfig{Name: "yolo", FilePath: path})
	require.NoError(t, err)

	logger.With(zap.String("backend", "tracking")).Error("upload failed", zap.Int("step", 7))
	require.NoError(t, logger.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `ERROR: upload failed {"backend": "tracking", "step": 7}`)
}

func TestRunLoggerWithoutOutputsIsNop(t *testing.T) {
	t.Parallel()

	logger, err := NewRunLogger(RunLoggerConfig{Name: "quiet"})
	require.NoError(t, err)
	logger.Info("dropped")
	require.NoError(t, logger.Close())
}
