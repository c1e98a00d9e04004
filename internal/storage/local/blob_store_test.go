// Package local_test tests the local filesystem blob store.
package local_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/trainlog/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("CreatesMissingDir", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "artifacts", "nested")
		store, err := local.New(local.Config{Dir: dir})
		require.NoError(t, err)
		assert.Equal(t, dir, store.Root())
		assert.DirExists(t, dir)
	})
	t.Run("MissingDir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{Dir: "  "})
		assert.Error(t, err)
	})
	t.Run("DirIsAFile", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{Dir: file})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{Dir: dir, Prefix: "/trainlog/"})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("WritesUnderPrefix", func(t *testing.T) {
		t.Parallel()
		key := "yolo/v1/samples/7-000007.jpg"
		uri, err := store.PutObject(ctx, key, "image/jpeg", bytes.NewReader([]byte("jpeg bytes")))
		require.NoError(t, err)

		want := filepath.Join(dir, "trainlog", key)
		assert.Equal(t, "file://"+filepath.ToSlash(want), uri)
		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(want)
		require.NoError(t, err)
		assert.Equal(t, []byte("jpeg bytes"), got)

		entries, err := os.ReadDir(filepath.Dir(want))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temp files must not be left behind")
	})

	t.Run("OverwritesExisting", func(t *testing.T) {
		t.Parallel()
		key := "yolo/v1/samples/9-000009.jpg"
		_, err := store.PutObject(ctx, key, "image/jpeg", bytes.NewReader([]byte("old")))
		require.NoError(t, err)
		_, err = store.PutObject(ctx, key, "image/jpeg", bytes.NewReader([]byte("new")))
		require.NoError(t, err)
		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(dir, "trainlog", key))
		require.NoError(t, err)
		assert.Equal(t, []byte("new"), got)
	})

	t.Run("EmptyKey", func(t *testing.T) {
		t.Parallel()
		_, err := store.PutObject(ctx, "", "image/jpeg", bytes.NewReader(nil))
		assert.Error(t, err)
	})

	t.Run("TraversalRejected", func(t *testing.T) {
		t.Parallel()
		_, err := store.PutObject(ctx, "../../escape.jpg", "image/jpeg", bytes.NewReader([]byte("x")))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "escapes")
	})

	t.Run("ReaderFailureLeavesNothing", func(t *testing.T) {
		t.Parallel()
		key := "yolo/v1/broken/1-000001.jpg"
		_, err := store.PutObject(ctx, key, "image/jpeg", failingReader{})
		require.Error(t, err)
		assert.NoFileExists(t, filepath.Join(dir, "trainlog", key))
		entries, err := os.ReadDir(filepath.Join(dir, "trainlog", "yolo", "v1", "broken"))
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		t.Parallel()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.PutObject(cctx, "yolo/x.jpg", "image/jpeg", bytes.NewReader([]byte("x")))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }
