// Package local implements a filesystem blob store, used when run artifacts
// should stay on the machine that trained the model.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Config places the artifact tree.
type Config struct {
	// Dir is the root directory; it is created when missing.
	Dir string `mapstructure:"local_dir" yaml:"local_dir"`
	// Prefix is prepended to every object key, as for bucket stores.
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// BlobStore writes artifacts below an absolute root directory.
type BlobStore struct {
	root   string
	prefix string
}

// New resolves cfg.Dir to an absolute directory, creating it when missing.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("artifact directory is required")
	}
	root, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact directory: %w", err)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat artifact directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("artifact path %s is not a directory", root)
	}
	return &BlobStore{root: root, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// Root returns the absolute artifact directory.
func (s *BlobStore) Root() string { return s.root }

// PutObject streams data to <root>/<prefix>/<key> and returns its file://
// URI. The file appears atomically: readers never observe a partial image.
// Keys must be relative and stay inside the root.
func (s *BlobStore) PutObject(ctx context.Context, key string, _ string, data io.Reader) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("object key is required")
	}
	rel := filepath.FromSlash(path.Join(s.prefix, key))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("object key %q escapes the artifact directory", key)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst := filepath.Join(s.root, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("create artifact parent: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	_, copyErr := io.Copy(tmp, data)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write artifact %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("publish artifact %s: %w", key, err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(dst)}).String(), nil
}
