// Package storage defines where run artifacts such as visualized validation
// images are uploaded. Implementations live in the gcs, local and memory
// subpackages; Postgres and SQLite metric stores live alongside them.
package storage

import (
	"context"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strconv"
)

// BlobStore uploads an object and returns a URI that addresses it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// ArtifactPath is the object key of a sample image uploaded for a run:
// <name>/<version>/samples/<id>-<file base name>.
func ArtifactPath(runName, version string, sampleID int, fileName string) string {
	return path.Join(runName, version, "samples", strconv.Itoa(sampleID)+"-"+filepath.Base(fileName))
}

// ContentType guesses the MIME type of fileName, defaulting to
// application/octet-stream.
func ContentType(fileName string) string {
	if ct := mime.TypeByExtension(filepath.Ext(fileName)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
