// Package ledger records pipeline runs and per-sample outcomes in a SQLite
// database so past runs can be listed and inspected after their output
// directories have been reset.
//
// The schema is embedded and versioned; an incompatible database is rejected
// with ErrSchemaMismatch rather than migrated in place.
package ledger
