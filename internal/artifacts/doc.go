// Package artifacts owns the on-disk output contract: directory layouts,
// per-run reset, overlays, manifests, the metrics table, and certificates.
//
// The shared layout is what the dashboards read:
//
//	data/fetched/<id>.jpg
//	outputs/overlays/<id>.jpg
//	outputs/manifests/<id>.json
//	outputs/metrics/pipeline_metrics.csv
//	outputs/valid_ids.json
//	certificates/<id>_certificate.txt
//
// The run-scoped layout nests the same tree under runs/<run-id>.
package artifacts
