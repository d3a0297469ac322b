// Package doc provides the Document Value: the JSON-shaped tree exchanged
// with the policy store.
//
// A Document Value carries no type safety of its own. Meaning is assigned only
// by interpreting it through a schema node (see package schema).
//
// Conventions:
//   - An absent value is the nil Value, never Null{}
//   - Object.Get treats an explicit JSON null like a missing property
//   - Integral JSON numbers decode to Int, anything else to Float
//   - Marshal output is deterministic (object keys sorted)
package doc
