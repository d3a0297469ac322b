// Package catalog compiles the declarative policy field catalog into a
// schema tree.
//
// The concrete fields of a policy document live in policy.cue, embedded in
// the binary. Compile walks the CUE value with the cuelang.org/go API and
// builds one schema node per field. The applications map is special: the
// schema of each item depends on the application's managed properties,
// permissions and tracks, which are resolved on demand from an
// ApplicationSource (see FromApplication).
package catalog
