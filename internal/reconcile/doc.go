// Package reconcile converges stored policies toward the documents computed
// from template fragments.
//
// A pass lists every stored policy and handles each record on its own:
//
//  1. Parse name: the name must be a SID, otherwise the record is Ignored.
//  2. Resolve principal: a principal that no longer exists, or is no longer
//     managed, has its policy deleted (Deleted).
//  3. Build desired: the default fragment and then each applicable
//     assignment's fragment are expanded with the principal's attributes and
//     merged in order. A failure leaves the record untouched (Ignored).
//  4. Compare: the stored document is compared with the desired one. A
//     comparison that fails counts as unequal and forces an update.
//  5. Converge: equal records are UpToDate, others are patched (Updated).
//
// Failures never abort the pass. They are annotated into the record's label
// as "[Failed: ...]" or "[Forced: ...]". Only a failed listing ends the pass
// early, because no record can be attributed.
//
// The pass is a pull-based sequence: each record's side effects complete
// before it is yielded, so a caller may stop at any point and re-run later.
package reconcile
