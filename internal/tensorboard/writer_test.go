package tensorboard

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time { return time.Unix(1700000000, 500000000) }

func TestWriterRoundTripScalars(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := newWriter(dir, fixedNow)
	require.NoError(t, err)

	require.NoError(t, w.AddScalar("train/loss", 1.5, 10))
	require.NoError(t, w.AddScalar("train/loss", 0.75, 20))
	require.NoError(t, w.Close())

	scalars, err := ReadScalars(w.Path())
	require.NoError(t, err)
	require.Len(t, scalars, 2)
	require.Equal(t, "train/loss", scalars[0].Tag)
	require.Equal(t, int64(10), scalars[0].Step)
	require.InDelta(t, 1.5, scalars[0].Value, 1e-6)
	require.InDelta(t, 1700000000.5, scalars[0].WallTime, 1e-3)
	require.Equal(t, int64(20), scalars[1].Step)
}

func TestWriterAddScalarsUsesPhaseSubdirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := newWriter(dir, fixedNow)
	require.NoError(t, err)

	require.NoError(t, w.AddScalars("Val_metrics/mAP", map[string]float64{"Val": 0.42}, 3))
	require.NoError(t, w.Flush())

	sub := filepath.Join(dir, "Val_metrics_mAP_Val")
	info, err := os.Stat(sub)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	files, err := EventFiles(sub)
	require.NoError(t, err)
	require.Len(t, files, 1)

	scalars, err := ReadScalars(files[0])
	require.NoError(t, err)
	require.Len(t, scalars, 1)
	require.Equal(t, "Val_metrics/mAP", scalars[0].Tag)
	require.InDelta(t, 0.42, scalars[0].Value, 1e-6)
	require.Equal(t, int64(3), scalars[0].Step)

	all, err := EventFiles(dir)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NoError(t, w.Close())
}

func TestWriterClosedRejectsWrites(t *testing.T) {
	t.Parallel()

	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.Error(t, w.AddScalar("x", 1, 1))
	require.NoError(t, w.Flush())
}

func TestReadScalarsDetectsCorruption(t *testing.T) {
	t.Parallel()

	w, err := newWriter(t.TempDir(), fixedNow)
	require.NoError(t, err)
	require.NoError(t, w.AddScalar("loss", 2, 1))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	raw[len(raw)-6] ^= 0xff
	require.NoError(t, os.WriteFile(w.Path(), raw, 0o600))

	_, err = ReadScalars(w.Path())
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestNewWriterRequiresDir(t *testing.T) {
	t.Parallel()

	_, err := NewWriter(" ")
	require.Error(t, err)
}
