// Package metrics derives panel count, detected area, QC flag, health tier,
// and certificate eligibility from a detection result.
//
// Areas are in raw pixel units of the fetched imagery. The thresholds are only
// meaningful because every image is fetched at the same zoom and size.
package metrics
