// Package store provides the SQLite-backed local policy store and run log.
//
// The store keeps:
//   - Policies: named policy documents with a version counter
//   - Applications: cached application resources for the policy catalog
//   - Runs and Outcomes: one row per reconciliation pass and per record
//
// # Ordering
//
// Listings are ordered by name COLLATE BINARY, outcomes by their sequence
// number within a run. Timestamps are recorded for display only.
//
// # Documents
//
// Documents are stored as canonical JSON (see doc.MarshalCanonical) next to
// their content hash, so an unchanged patch leaves the hash untouched.
//
// # Database Configuration
//
// Pragmas are passed in the DSN so the driver applies them to every
// connection:
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
