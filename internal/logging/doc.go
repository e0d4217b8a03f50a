// Package logging assembles structured slog loggers and formatting helpers used
// across solarverify.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline stages automatically
// tag log lines with run IDs, sample IDs, and stage names. Per-sample failures
// are only reported through these log lines, so every sample-scoped message
// should go through WithContext.
package logging
