// Package api hosts the monitor HTTP server of a training run. Notable routes:
//   - GET /healthz / readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the session of the current run.
//   - GET /v1/stats for a snapshot of the driver's running statistics.
//   - GET /v1/runs/{name}/{version} and /v1/runs/{name}/{version}/metrics for
//     stored runs via the store.MetricRepository interface.
package api
