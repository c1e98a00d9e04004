// Package main hosts the trainlog entrypoint.
//
// Architecture overview:
//   - Sink lifecycle: a training loop (or the replay command) drives one trainlog.Sink through
//     Log/Info/LogMetrics/LogHyperparams/DumpConfig, LogValResults after each validation epoch, and
//     Finalize exactly once. Only the coordinator rank (rank 0, or a negative rank for single-process runs)
//     builds real backends; every other rank gets a no-op sink.
//   - Backends: structured files (logs.txt, train_cfg.yml, TensorBoard event files), a remote experiment
//     tracker with sample-image artifacts (memory/local/GCS blob stores), Prometheus gauges, a SQLite or
//     Postgres metrics store, a Pub/Sub run-lifecycle topic, and zap logs. internal/app builds the configured
//     set and fans calls out to all of them, reporting every backend's error.
//   - Monitor API: internal/api serves /healthz, /readyz, /metrics, the live run and running statistics, and
//     stored runs from the metrics store. It shares the Prometheus registry of the prometheus backend.
//   - Configuration & plumbing: Viper populates config from a YAML file and TRAINLOG_* env vars; zap provides
//     the process logger and the per-run text logger; OpenTelemetry spans wrap every sink call when
//     telemetry.enabled is set.
//
// Operational notes:
//   - Rank detection reads RANK, LOCAL_RANK, SLURM_PROCID and JSM_NAMESPACE_RANK in that order unless
//     run.rank is set explicitly.
//   - A backend whose endpoint is not configured fails at startup with ErrBackendUnavailable; backends built
//     before it are finalized as failed.
//   - SIGINT/SIGTERM stop a replay, finalize the run as interrupted and shut the monitor API down.
//
// Quick checklist:
//   - Configure: TRAINLOG_BACKENDS, TRAINLOG_RUN_SAVE_DIR, TRAINLOG_TRACKING_BASE_URL, TRAINLOG_STORE_DSN,
//     TRAINLOG_NOTIFY_PROJECT_ID/TOPIC and TRAINLOG_SERVER_ADDR, or the same keys in a config file.
//   - Run locally: go run ./cmd/trainlog --config trainlog.yaml replay --events run.jsonl --listen :8080
package main
