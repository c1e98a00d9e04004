package dataset

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

// ErrUnknownSample is returned when a sample id is absent from the split.
var ErrUnknownSample = errors.New("sample id not in validation split")

// Index is a lazily built id -> file-name table for one split.
//
// The table is populated by a single Provider call on the first FileName or Path call and is
// never rebuilt for the lifetime of the Index. If the underlying dataset
// changes afterwards the table is stale; callers that need fresh data create a
// new Index. An Index is not safe for concurrent use.
type Index struct {
	provider Provider
	split    Split
	names    map[int]string
}

// NewIndex creates an unpopulated Index.
func NewIndex(provider Provider, split Split) *Index {
	return &Index{provider: provider, split: split}
}

// Built reports whether the table has been populated.
func (x *Index) Built() bool {
	return x.names != nil
}

// FileName returns the file name recorded for id.
func (x *Index) FileName(ctx context.Context, id int) (string, error) {
	if x.names == nil {
		if x.provider == nil {
			return "", fmt.Errorf("no dataset provider configured")
		}
		records, err := x.provider.Records(ctx, x.split)
		if err != nil {
			return "", fmt.Errorf("load split %q: %w", x.split.Name, err)
		}
		names := make(map[int]string, len(records))
		for _, rec := range records {
			names[rec.ID] = rec.FileName
		}
		x.names = names
	}
	name, ok := x.names[id]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownSample, id)
	}
	return name, nil
}

// Path joins the split image root with the file name of id.
func (x *Index) Path(ctx context.Context, id int) (string, error) {
	name, err := x.FileName(ctx, id)
	if err != nil {
		return "", err
	}
	return filepath.Join(x.split.ImgPath, name), nil
}
