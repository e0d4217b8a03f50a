// Package services defines shared utilities consumed by the pipeline stages
// and the external integrations they call.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, sample IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that separate fatal run
//     errors from per-sample failures.
//
// Subpackages hold the HTTP clients for the static map imagery service and the
// detection oracle.
package services
