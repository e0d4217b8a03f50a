// Package pipeline orchestrates a verification run.
//
// A run acquires the output lock, validates the certificate template, resets
// or creates the artifact layout, loads the input batch, and then drives every
// sample through fetch, decode, detect, derive, and write. Sample failures are
// logged and counted; they never abort the run. Only input, configuration, and
// lock errors are fatal.
//
// Samples may be processed by a bounded worker pool, but the metrics table and
// certificates are committed in input order.
package pipeline
