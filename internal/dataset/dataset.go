// Package dataset resolves validation sample ids to image files. Loading the
// images themselves is out of scope; providers only enumerate id/file-name
// records for a split.
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Split describes a validation split.
type Split struct {
	Name    string `mapstructure:"name" yaml:"name" json:"name"`
	AnnPath string `mapstructure:"ann_path" yaml:"ann_path" json:"ann_path"`
	ImgPath string `mapstructure:"img_path" yaml:"img_path" json:"img_path"`
}

// Record identifies one sample of a split.
type Record struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
}

// Provider enumerates the records of a split.
type Provider interface {
	Records(ctx context.Context, split Split) ([]Record, error)
}

// COCO reads records from the images array of a COCO-format annotation file.
type COCO struct{}

type cocoFile struct {
	Images []Record `json:"images"`
}

// Records parses split.AnnPath.
func (COCO) Records(ctx context.Context, split Split) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	if split.AnnPath == "" {
		return nil, fmt.Errorf("split %q has no annotation path", split.Name)
	}
	raw, err := os.ReadFile(filepath.Clean(split.AnnPath))
	if err != nil {
		return nil, fmt.Errorf("read annotations %s: %w", split.AnnPath, err)
	}
	var parsed cocoFile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse annotations %s: %w", split.AnnPath, err)
	}
	return parsed.Images, nil
}

// Static serves a fixed record list regardless of split.
type Static []Record

// Records returns a copy of the static records.
func (s Static) Records(context.Context, Split) ([]Record, error) {
	return append([]Record(nil), s...), nil
}
