// Package engine drives reconciliation passes.
//
// The engine runs one pass at a time in a single goroutine: it stamps the
// pass with a run id, streams every record result from the reconciler into
// the run log and the metrics, and keeps the latest run in memory for the
// HTTP endpoint. In serve mode Run repeats passes on an interval until the
// context is cancelled.
//
// A record failure never ends a pass; it is annotated on the record's label
// and counted. Only a listing failure or cancellation ends a pass early, and
// the run is still finished in the log with that error.
//
// Run log writes are best-effort: a failed write is logged and the pass
// goes on, since the policy store has already been changed.
package engine
