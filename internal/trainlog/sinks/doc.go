// Package sinks implements the trainlog backends: the structured run log with
// scalar event files, the remote tracking service, Prometheus gauges, the
// metric store, run-finished notifications and a zap debug sink. Each type
// satisfies trainlog.Sink.
package sinks
