package tracking

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/JakeFAU/trainlog/internal/evalviz"
)

// MetricCall is one recorded LogMetrics call.
type MetricCall struct {
	RunID   string
	Step    int64
	Metrics map[string]float64
}

// Recorder is an in-memory Client for tests and dry runs. Calls against an
// unknown run fail the way a real service would.
type Recorder struct {
	mu       sync.Mutex
	runs     map[string]Run
	metrics  []MetricCall
	params   map[string]map[string]any
	tables   map[string][]evalviz.Table
	finished map[string]string
	err      error
}

var _ Client = (*Recorder)(nil)

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		runs:     make(map[string]Run),
		params:   make(map[string]map[string]any),
		tables:   make(map[string][]evalviz.Table),
		finished: make(map[string]string),
	}
}

// FailWith makes every subsequent call return err; nil restores success.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// CreateRun implements Client.
func (r *Recorder) CreateRun(_ context.Context, run Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	r.runs[run.ID] = run
	return nil
}

// LogMetrics implements Client.
func (r *Recorder) LogMetrics(_ context.Context, runID string, metrics map[string]float64, step int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(runID); err != nil {
		return err
	}
	r.metrics = append(r.metrics, MetricCall{RunID: runID, Step: step, Metrics: maps.Clone(metrics)})
	return nil
}

// LogParams implements Client.
func (r *Recorder) LogParams(_ context.Context, runID string, params map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(runID); err != nil {
		return err
	}
	r.params[runID] = maps.Clone(params)
	return nil
}

// LogTable implements Client.
func (r *Recorder) LogTable(_ context.Context, runID string, table evalviz.Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(runID); err != nil {
		return err
	}
	r.tables[runID] = append(r.tables[runID], table)
	return nil
}

// FinishRun implements Client.
func (r *Recorder) FinishRun(_ context.Context, runID string, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(runID); err != nil {
		return err
	}
	r.finished[runID] = status
	return nil
}

func (r *Recorder) check(runID string) error {
	if r.err != nil {
		return r.err
	}
	if _, ok := r.runs[runID]; !ok {
		return fmt.Errorf("unknown run %s", runID)
	}
	return nil
}

// Runs returns the registered runs.
func (r *Recorder) Runs() []Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Run, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run)
	}
	return out
}

// MetricCalls returns every LogMetrics call in order.
func (r *Recorder) MetricCalls() []MetricCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MetricCall(nil), r.metrics...)
}

// Params returns the last params logged for runID.
func (r *Recorder) Params(runID string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.params[runID])
}

// Tables returns the tables logged for runID.
func (r *Recorder) Tables(runID string) []evalviz.Table {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]evalviz.Table(nil), r.tables[runID]...)
}

// Finished returns the status a run was finished with.
func (r *Recorder) Finished(runID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.finished[runID]
	return status, ok
}
