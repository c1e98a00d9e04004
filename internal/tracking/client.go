// Package tracking talks to a remote experiment-tracking service. The service
// owns runs identified by an id; metrics, params and tables are attached to a
// run until it is finished.
package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/JakeFAU/trainlog/internal/evalviz"
	"github.com/JakeFAU/trainlog/internal/policy/ratelimit"
)

// DefaultTimeout bounds each HTTP request when Config.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// Run identifies a remote run.
type Run struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Project string   `json:"project,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// Client is the subset of a tracking service the sinks rely on.
type Client interface {
	CreateRun(ctx context.Context, run Run) error
	LogMetrics(ctx context.Context, runID string, metrics map[string]float64, step int64) error
	LogParams(ctx context.Context, runID string, params map[string]any) error
	LogTable(ctx context.Context, runID string, table evalviz.Table) error
	FinishRun(ctx context.Context, runID string, status string) error
}

// Config configures an HTTPClient.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RequestsPerSecond throttles each endpoint; zero means unlimited.
	RequestsPerSecond float64
	Burst             int
	// OnThrottle observes requests delayed by the throttle.
	OnThrottle func(endpoint string, d time.Duration)
}

// HTTPClient implements Client with JSON over HTTP. Requests carry the trace
// context of the caller.
type HTTPClient struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
	limiter *ratelimit.Limiter
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient validates cfg and returns a client.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("tracking base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse tracking base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("tracking base url must be http or https, got %q", base.Scheme)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL: base,
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: ratelimit.New(ratelimit.Config{
			RPS:     cfg.RequestsPerSecond,
			Burst:   cfg.Burst,
			OnDelay: cfg.OnThrottle,
		}),
	}, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

type metricsRequest struct {
	Step    int64              `json:"step"`
	Metrics map[string]float64 `json:"metrics"`
}

type paramsRequest struct {
	Params map[string]any `json:"params"`
}

type finishRequest struct {
	Status string `json:"status"`
}

// CreateRun registers run with the service.
func (c *HTTPClient) CreateRun(ctx context.Context, run Run) error {
	return c.post(ctx, "/api/v1/runs", run)
}

// LogMetrics attaches one step of metrics to the run.
func (c *HTTPClient) LogMetrics(ctx context.Context, runID string, metrics map[string]float64, step int64) error {
	return c.post(ctx, runPath(runID, "metrics"), metricsRequest{Step: step, Metrics: metrics})
}

// LogParams attaches hyperparameters to the run.
func (c *HTTPClient) LogParams(ctx context.Context, runID string, params map[string]any) error {
	return c.post(ctx, runPath(runID, "params"), paramsRequest{Params: params})
}

// LogTable attaches a visualization table to the run.
func (c *HTTPClient) LogTable(ctx context.Context, runID string, table evalviz.Table) error {
	return c.post(ctx, runPath(runID, "tables"), table)
}

// FinishRun closes the run with status.
func (c *HTTPClient) FinishRun(ctx context.Context, runID string, status string) error {
	return c.post(ctx, runPath(runID, "finish"), finishRequest{Status: status})
}

func runPath(runID, leaf string) string {
	return "/api/v1/runs/" + url.PathEscape(runID) + "/" + leaf
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) error {
	if err := c.limiter.Wait(ctx, path[strings.LastIndex(path, "/")+1:]); err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	endpoint := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{
			Method: http.MethodPost,
			Path:   path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(msg)),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
