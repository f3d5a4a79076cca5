// Package store provides SQLite-backed durable storage for completed spans.
//
// The store is an append-only log keyed by run:
//   - Runs: one row per driven workout session
//   - Spans: completed block spans with their metrics, segments and rounds
//
// Spans are written once. A second write of the same (run, span id) pair is
// silently ignored so a driver may retry a turn's batch safely.
//
// Every span read is ordered by seq ASC, id ASC COLLATE BINARY, where seq is
// the order in which the run's spans were written. Wall time is never used
// for ordering.
//
// # Connections
//
// Every connection is opened in WAL mode with synchronous=NORMAL, a five
// second busy timeout and foreign keys enforced. The pool holds a single
// connection. The schema version lives in PRAGMA user_version; a database
// from a newer build is refused with ErrSchemaTooNew.
package store
