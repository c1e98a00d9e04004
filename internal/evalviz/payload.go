// Package evalviz turns raw per-class detection predictions into the rows of
// an evaluation visualization table: one annotated image per sample plus the
// average confidence of every class.
package evalviz

import (
	"context"
	"fmt"
	"sort"
)

const (
	// ConfidenceThreshold is the floor a detection must reach to be drawn.
	ConfidenceThreshold = 0.25
	// DefaultNumEvalSamples bounds how many samples are visualized per pass.
	DefaultNumEvalSamples = 16
	// TableKey names the submitted table.
	TableKey = "eval_samples"
	// DomainPixel tags box coordinates as image pixels.
	DomainPixel = "pixel"
	// ClassScoreKey names the score attached to every box.
	ClassScoreKey = "class_score"
)

// Detection is one predicted box in x1,y1,x2,y2 pixel coordinates.
type Detection struct {
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
	Score float64 `json:"score"`
}

// SampleResult holds the detections of one validation sample keyed by class id.
type SampleResult struct {
	ID      int                 `json:"id"`
	Classes map[int][]Detection `json:"classes"`
}

// Results is an ordered set of sample results; order decides which samples
// are visualized.
type Results []SampleResult

// Position is a bounding box.
type Position struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// Box is one annotated box on a prediction image.
type Box struct {
	Position Position           `json:"position"`
	ClassID  int                `json:"class_id"`
	Caption  string             `json:"box_caption"`
	Scores   map[string]float64 `json:"scores"`
	Domain   string             `json:"domain"`
}

// Image references a sample image together with its prediction boxes.
type Image struct {
	Ref         string         `json:"ref"`
	Boxes       []Box          `json:"box_data"`
	ClassLabels map[int]string `json:"class_labels"`
}

// Row is one visualization record.
type Row struct {
	ID            int       `json:"id"`
	Prediction    Image     `json:"prediction"`
	AvgConfidence []float64 `json:"avg_confidence"`
}

// Cells flattens the row in column order: id, prediction, one average per class.
func (r Row) Cells() []any {
	cells := make([]any, 0, 2+len(r.AvgConfidence))
	cells = append(cells, r.ID, r.Prediction)
	for _, v := range r.AvgConfidence {
		cells = append(cells, v)
	}
	return cells
}

// Table is the payload submitted to a tracking service.
type Table struct {
	Key     string   `json:"key"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// NewTable builds the eval_samples table for rows.
func NewTable(rows []Row, classNames []string) Table {
	columns := make([]string, 0, 2+len(classNames))
	columns = append(columns, "id", "prediction")
	columns = append(columns, classNames...)
	return Table{Key: TableKey, Columns: columns, Rows: rows}
}

// Select returns the first min(len(results), n) results.
func Select(results Results, n int) Results {
	if n < 0 {
		n = 0
	}
	if n > len(results) {
		n = len(results)
	}
	return results[:n]
}

// BuildRow annotates one sample. Classes are visited in ascending id order and
// detections below ConfidenceThreshold are dropped. A class with no qualifying
// detection reports an average confidence of 0.
func BuildRow(id int, imageRef string, classes map[int][]Detection, classNames []string) (Row, error) {
	labels := make(map[int]string, len(classNames))
	for i, name := range classNames {
		labels[i] = name
	}
	avg := make([]float64, len(classNames))
	counts := make([]int, len(classNames))
	var boxes []Box

	for _, cls := range sortedClassIDs(classes) {
		if cls < 0 || cls >= len(classNames) {
			return Row{}, fmt.Errorf("sample %d: class id %d outside %d class names", id, cls, len(classNames))
		}
		for _, det := range classes[cls] {
			if det.Score < ConfidenceThreshold {
				continue
			}
			boxes = append(boxes, Box{
				Position: Position{MinX: det.X1, MinY: det.Y1, MaxX: det.X2, MaxY: det.Y2},
				ClassID:  cls,
				Caption:  fmt.Sprintf("%s %.3f", classNames[cls], det.Score),
				Scores:   map[string]float64{ClassScoreKey: det.Score},
				Domain:   DomainPixel,
			})
			avg[cls] += det.Score
			counts[cls]++
		}
	}
	for cls, n := range counts {
		if n > 0 {
			avg[cls] /= float64(n)
		}
	}
	return Row{
		ID:            id,
		Prediction:    Image{Ref: imageRef, Boxes: boxes, ClassLabels: labels},
		AvgConfidence: avg,
	}, nil
}

// Resolver maps a sample id to its image reference.
type Resolver func(ctx context.Context, id int) (string, error)

// Builder produces visualization rows for a validation pass.
type Builder struct {
	// NumSamples caps how many samples are visualized.
	NumSamples int
	// Resolve maps sample ids to image references. It is only invoked when
	// rows will be produced.
	Resolve Resolver
}

// Build selects the first NumSamples results and annotates each one, so every
// selected sample gets a row, with zero averages when none of its detections
// qualify. When no detection qualifies across the whole selection, Build
// returns no rows and never calls Resolve.
func (b Builder) Build(ctx context.Context, results Results, classNames []string) ([]Row, error) {
	selected := Select(results, b.NumSamples)
	rows := make([]Row, 0, len(selected))
	boxes := 0
	for _, res := range selected {
		row, err := BuildRow(res.ID, "", res.Classes, classNames)
		if err != nil {
			return nil, err
		}
		boxes += len(row.Prediction.Boxes)
		rows = append(rows, row)
	}
	if boxes == 0 {
		return nil, nil
	}
	if b.Resolve == nil {
		return nil, fmt.Errorf("no image resolver configured")
	}
	for i := range rows {
		ref, err := b.Resolve(ctx, rows[i].ID)
		if err != nil {
			return nil, fmt.Errorf("resolve sample %d: %w", rows[i].ID, err)
		}
		rows[i].Prediction.Ref = ref
	}
	return rows, nil
}

func sortedClassIDs(classes map[int][]Detection) []int {
	ids := make([]int, 0, len(classes))
	for cls := range classes {
		ids = append(ids, cls)
	}
	sort.Ints(ids)
	return ids
}
