// Package preflight provides readiness checks for the files and services a
// verification run depends on.
//
// These checks run in two contexts:
//   - The pipeline runner calls CheckOracle before processing samples and
//     logs a warning when the detection service is not healthy.
//   - The CLI "solarverify check" command calls RunAll and prints every result.
//
// The oracle check is gated by oracle.health_check.
package preflight
