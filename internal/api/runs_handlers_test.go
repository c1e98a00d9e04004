package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/trainlog/internal/store"
)

type mockMetricRepo struct {
	run       store.RunRecord
	points    []store.MetricPoint
	err       error
	lastKey   string
	lastName  string
	lastLimit int
}

func (m *mockMetricRepo) UpsertRun(context.Context, store.RunRecord) error { return nil }

func (m *mockMetricRepo) InsertPoints(context.Context, []store.MetricPoint) error { return nil }

func (m *mockMetricRepo) CompleteRun(context.Context, string, string, time.Time) error { return nil }

func (m *mockMetricRepo) GetRun(_ context.Context, key string) (store.RunRecord, error) {
	m.lastKey = key
	if m.err != nil {
		return store.RunRecord{}, m.err
	}
	return m.run, nil
}

func (m *mockMetricRepo) ListPoints(_ context.Context, key, name string, limit int) ([]store.MetricPoint, error) {
	m.lastKey, m.lastName, m.lastLimit = key, name, limit
	if m.err != nil {
		return nil, m.err
	}
	return m.points, nil
}

func TestRunsHandlerGetRun(t *testing.T) {
	t.Parallel()

	started := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	finished := started.Add(time.Hour)
	repo := &mockMetricRepo{run: store.RunRecord{
		Key:        "yolo/2024-03-05-10-00-00",
		Name:       "yolo",
		Version:    "2024-03-05-10-00-00",
		StartedAt:  started,
		FinishedAt: &finished,
		Status:     "success",
	}}
	h := NewServer(Options{Repo: repo}).Handler()

	rec := serve(t, h, "/v1/runs/yolo/2024-03-05-10-00-00")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "yolo/2024-03-05-10-00-00", repo.lastKey)
	require.JSONEq(t, `{"run":{
		"key":"yolo/2024-03-05-10-00-00",
		"name":"yolo",
		"version":"2024-03-05-10-00-00",
		"status":"success",
		"started_at":"2024-03-05T10:00:00Z",
		"finished_at":"2024-03-05T11:00:00Z"}}`, rec.Body.String())
}

func TestRunsHandlerGetRunNotFound(t *testing.T) {
	t.Parallel()

	h := NewServer(Options{Repo: &mockMetricRepo{err: store.ErrNotFound}}).Handler()
	rec := serve(t, h, "/v1/runs/yolo/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)

	h = NewServer(Options{Repo: &mockMetricRepo{err: errors.New("db down")}}).Handler()
	rec = serve(t, h, "/v1/runs/yolo/v1")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRunsHandlerWithoutRepo(t *testing.T) {
	t.Parallel()

	h := NewServer(Options{}).Handler()
	require.Equal(t, http.StatusServiceUnavailable, serve(t, h, "/v1/runs/yolo/v1").Code)
	require.Equal(t, http.StatusServiceUnavailable, serve(t, h, "/v1/runs/yolo/v1/metrics").Code)
}

func TestRunsHandlerListPoints(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 5, 10, 5, 0, 0, time.UTC)
	repo := &mockMetricRepo{points: []store.MetricPoint{
		{RunKey: "yolo/v1", Name: "Val_metrics/mAP", Step: 1, Value: 0.25, RecordedAt: at},
	}}
	h := NewServer(Options{Repo: repo}).Handler()

	rec := serve(t, h, "/v1/runs/yolo/v1/metrics?name=Val_metrics/mAP&limit=50000")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "yolo/v1", repo.lastKey)
	require.Equal(t, "Val_metrics/mAP", repo.lastName)
	require.Equal(t, maxPointLimit, repo.lastLimit)
	require.JSONEq(t,
		`{"points":[{"name":"Val_metrics/mAP","step":1,"value":0.25,"recorded_at":"2024-03-05T10:05:00Z"}]}`,
		rec.Body.String())

	rec = serve(t, h, "/v1/runs/yolo/v1/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, defaultPointLimit, repo.lastLimit)
	require.Empty(t, repo.lastName)
}

func TestRunsHandlerListPointsInvalidLimit(t *testing.T) {
	t.Parallel()

	h := NewServer(Options{Repo: &mockMetricRepo{}}).Handler()
	rec := serve(t, h, "/v1/runs/yolo/v1/metrics?limit=-1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid limit")
}
