// Package schema implements the typed schema engine for policy documents.
//
// A schema is a tree of immutable nodes built once at startup. Every node
// interprets Document Values (package doc) of one field or substructure and
// offers the same operations:
//
//	Default   serialized default value, used wherever a value is absent
//	Validate  deserialize followed by serialize
//	Equal     structural equivalence, absent == default
//	Hash      consistent with Equal
//	Merge     combine two documents (scalars: last writer wins)
//	Expand    replace ${name} placeholders in string leaves
//
// The set of node kinds is closed: Boolean, Integer, Duration, String,
// Constant, Enum, Flags, StringArray, Object, ObjectArray, ObjectMap and
// LocalizedString. Each kind also implements Typed[T] for its native Go
// representation (bool, int64, time.Duration, string, int, []T, doc.Object).
//
// Nodes hold no mutable state apart from the per-key schema memo of
// ObjectMap, which is safe for concurrent use. A failed operation only
// discards the value under construction; the tree is never modified.
//
// All constraint violations are reported as *Error (see IsError).
package schema
