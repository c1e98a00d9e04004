package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/trainlog/internal/store"
)

const (
	defaultPointLimit = 1000
	maxPointLimit     = 10000
	runsTimeout       = 3 * time.Second
)

// RunsHandler exposes read-only endpoints over stored runs.
type RunsHandler struct {
	repo    store.MetricRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunsHandler wires the repository and logger.
func NewRunsHandler(repo store.MetricRepository, logger *zap.Logger) *RunsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunsHandler{
		repo:    repo,
		timeout: runsTimeout,
		logger:  logger,
	}
}

// GetRun handles GET /v1/runs/{name}/{version}. It returns {"run": {...}} on
// success, 404 when the repository reports store.ErrNotFound, 503 if no
// repository is configured, or 500 otherwise.
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "metric repository unavailable")
		return
	}
	key, err := parseRunKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.repo.GetRun(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get run failed", zap.String("run_key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(rec)})
}

// ListPoints handles GET /v1/runs/{name}/{version}/metrics?name=&limit=. It
// returns {"points": [...]} ordered by metric name then step, 400 for an
// invalid limit, 503 when the repository is missing, or 500 for repository
// errors.
func (h *RunsHandler) ListPoints(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "metric repository unavailable")
		return
	}
	key, err := parseRunKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r, defaultPointLimit, maxPointLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	points, err := h.repo.ListPoints(ctx, key, name, limit)
	if err != nil {
		h.logger.Error("list points failed", zap.String("run_key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list metric points")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"points": toPointDTOs(points),
	})
}

func parseRunKey(r *http.Request) (string, error) {
	name := chi.URLParam(r, "name")
	version := chi.URLParam(r, "version")
	if name == "" || version == "" {
		return "", errors.New("run name and version are required")
	}
	return store.RunKey(name, version), nil
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	limit := def
	if limStr := r.URL.Query().Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	return limit, nil
}

type runDTO struct {
	Key        string     `json:"key"`
	Name       string     `json:"name"`
	Version    string     `json:"version"`
	LogDir     string     `json:"log_dir,omitempty"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type pointDTO struct {
	Name       string    `json:"name"`
	Step       int64     `json:"step"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

func toRunDTO(rec store.RunRecord) runDTO {
	return runDTO{
		Key:        rec.Key,
		Name:       rec.Name,
		Version:    rec.Version,
		LogDir:     rec.LogDir,
		Status:     rec.Status,
		StartedAt:  rec.StartedAt.UTC(),
		FinishedAt: utcPtr(rec.FinishedAt),
	}
}

func toPointDTOs(in []store.MetricPoint) []pointDTO {
	out := make([]pointDTO, 0, len(in))
	for _, p := range in {
		out = append(out, pointDTO{
			Name:       p.Name,
			Step:       p.Step,
			Value:      p.Value,
			RecordedAt: p.RecordedAt.UTC(),
		})
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
