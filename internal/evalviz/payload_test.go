package evalviz

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func pathResolver(ctx context.Context, id int) (string, error) {
	return fmt.Sprintf("/val/%06d.jpg", id), nil
}

func TestBuildRowFiltersByThreshold(t *testing.T) {
	t.Parallel()

	classes := map[int][]Detection{
		0: {{X1: 0, Y1: 0, X2: 10, Y2: 10, Score: 0.9}},
		1: {{X1: 5, Y1: 5, X2: 8, Y2: 8, Score: 0.1}},
	}
	row, err := BuildRow(1, "/val/1.jpg", classes, []string{"cat", "dog"})
	require.NoError(t, err)

	require.Len(t, row.Prediction.Boxes, 1)
	box := row.Prediction.Boxes[0]
	require.Equal(t, 0, box.ClassID)
	require.InDelta(t, 0.9, box.Scores[ClassScoreKey], 1e-12)
	require.Equal(t, "cat 0.900", box.Caption)
	require.Equal(t, DomainPixel, box.Domain)
	require.Equal(t, Position{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}, box.Position)
	require.Equal(t, []float64{0.9, 0}, row.AvgConfidence)
	require.Equal(t, map[int]string{0: "cat", 1: "dog"}, row.Prediction.ClassLabels)
}

func TestBuildRowAveragesQualifyingDetections(t *testing.T) {
	t.Parallel()

	classes := map[int][]Detection{
		1: {
			{Score: 0.5},
			{Score: 0.25},
			{Score: 0.2499},
			{Score: 0.75},
		},
	}
	row, err := BuildRow(3, "img", classes, []string{"cat", "dog"})
	require.NoError(t, err)
	require.Len(t, row.Prediction.Boxes, 3)
	require.InDelta(t, 0.0, row.AvgConfidence[0], 1e-12)
	require.InDelta(t, 0.5, row.AvgConfidence[1], 1e-12)
	require.Equal(t, "dog 0.250", row.Prediction.Boxes[1].Caption)
}

func TestBuildRowRejectsUnknownClass(t *testing.T) {
	t.Parallel()

	_, err := BuildRow(1, "img", map[int][]Detection{2: {{Score: 1}}}, []string{"cat", "dog"})
	require.Error(t, err)
}

func TestRowCellsColumnOrder(t *testing.T) {
	t.Parallel()

	row := Row{ID: 4, Prediction: Image{Ref: "x"}, AvgConfidence: []float64{0.3, 0}}
	cells := row.Cells()
	require.Len(t, cells, 4)
	require.Equal(t, 4, cells[0])
	require.Equal(t, row.Prediction, cells[1])
	require.Equal(t, 0.3, cells[2])

	table := NewTable([]Row{row}, []string{"cat", "dog"})
	require.Equal(t, TableKey, table.Key)
	require.Equal(t, []string{"id", "prediction", "cat", "dog"}, table.Columns)
}

func TestBuilderRespectsSampleCap(t *testing.T) {
	t.Parallel()

	var results Results
	for i := 0; i < 20; i++ {
		results = append(results, SampleResult{
			ID:      100 + i,
			Classes: map[int][]Detection{0: {{X2: 1, Y2: 1, Score: 0.8}}},
		})
	}
	b := Builder{NumSamples: 16, Resolve: pathResolver}
	rows, err := b.Build(context.Background(), results, []string{"cat"})
	require.NoError(t, err)
	require.Len(t, rows, 16)
	for i, row := range rows {
		require.Equal(t, 100+i, row.ID)
		require.Equal(t, fmt.Sprintf("/val/%06d.jpg", 100+i), row.Prediction.Ref)
	}
}

func TestBuilderNoQualifyingDetectionsYieldsNoRows(t *testing.T) {
	t.Parallel()

	results := Results{
		{ID: 1, Classes: map[int][]Detection{0: {{Score: 0.1}}}},
		{ID: 2, Classes: map[int][]Detection{1: {}}},
	}
	b := Builder{NumSamples: DefaultNumEvalSamples, Resolve: pathResolver}
	rows, err := b.Build(context.Background(), results, []string{"cat", "dog"})
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestBuilderSkipsResolverWhenNothingSelected(t *testing.T) {
	t.Parallel()

	called := false
	b := Builder{NumSamples: 0, Resolve: func(context.Context, int) (string, error) {
		called = true
		return "", nil
	}}
	rows, err := b.Build(context.Background(), Results{{ID: 1}}, []string{"cat"})
	require.NoError(t, err)
	require.Empty(t, rows)
	require.False(t, called)
}

func TestBuilderPropagatesResolveError(t *testing.T) {
	t.Parallel()

	boom := errors.New("missing")
	b := Builder{NumSamples: 4, Resolve: func(context.Context, int) (string, error) {
		return "", boom
	}}
	results := Results{{ID: 9, Classes: map[int][]Detection{0: {{Score: 0.9}}}}}
	_, err := b.Build(context.Background(), results, []string{"cat"})
	require.ErrorIs(t, err, boom)
}

func TestBuilderKeepsSamplesWithoutQualifyingDetections(t *testing.T) {
	t.Parallel()

	var resolved []int
	b := Builder{NumSamples: DefaultNumEvalSamples, Resolve: func(ctx context.Context, id int) (string, error) {
		resolved = append(resolved, id)
		return pathResolver(ctx, id)
	}}
	results := Results{
		{ID: 1, Classes: map[int][]Detection{0: {{X1: 0, Y1: 0, X2: 10, Y2: 10, Score: 0.9}}}},
		{ID: 2, Classes: map[int][]Detection{1: {{X1: 5, Y1: 5, X2: 8, Y2: 8, Score: 0.1}}}},
		{ID: 3},
	}
	rows, err := b.Build(context.Background(), results, []string{"cat", "dog"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []int{1, 2, 3}, resolved)

	require.Len(t, rows[0].Prediction.Boxes, 1)
	require.Equal(t, []float64{0.9, 0}, rows[0].AvgConfidence)
	for _, row := range rows[1:] {
		require.Empty(t, row.Prediction.Boxes)
		require.Equal(t, []float64{0, 0}, row.AvgConfidence)
		require.Equal(t, fmt.Sprintf("/val/%06d.jpg", row.ID), row.Prediction.Ref)
	}
}

func TestBuilderCapCountsLowConfidenceSamples(t *testing.T) {
	t.Parallel()

	var results Results
	for i := 0; i < 20; i++ {
		score := 0.8
		if i%2 == 1 {
			score = 0.1
		}
		results = append(results, SampleResult{
			ID:      i,
			Classes: map[int][]Detection{0: {{X2: 1, Y2: 1, Score: score}}},
		})
	}
	rows, err := Builder{NumSamples: 16, Resolve: pathResolver}.Build(context.Background(), results, []string{"cat"})
	require.NoError(t, err)
	require.Len(t, rows, 16)
	require.Equal(t, 15, rows[15].ID)
}

func TestSelectBounds(t *testing.T) {
	t.Parallel()

	results := Results{{ID: 1}, {ID: 2}, {ID: 3}}
	require.Len(t, Select(results, 2), 2)
	require.Len(t, Select(results, 10), 3)
	require.Empty(t, Select(results, -1))
}
