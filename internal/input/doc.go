// Package input loads the tabular sample list (.csv or .xlsx) and normalizes
// sample identifiers.
package input
