// Package main hosts the solarverify CLI entrypoint and command graph.
//
// The Cobra-based command tree runs verification batches, inspects the run
// ledger, checks readiness of the input, output root, certificate template,
// and detection oracle, and scaffolds configuration. Configuration resolution
// and logger setup live here so subcommands stay declarative while the work
// happens in the internal packages.
package main
