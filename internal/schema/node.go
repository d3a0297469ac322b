package schema

import (
	"github.com/roach88/emmsync/internal/doc"
)

// Lookup resolves a placeholder name during Expand. A false result
// substitutes the empty string.
type Lookup func(name string) (string, bool)

// NoLookup resolves every placeholder to the empty string.
func NoLookup(string) (string, bool) { return "", false }

// Kind identifies the node variant.
type Kind int

const (
	KindBoolean Kind = iota
	KindInteger
	KindDuration
	KindString
	KindConstant
	KindEnum
	KindFlags
	KindStringArray
	KindObject
	KindObjectArray
	KindObjectMap
	KindLocalizedString
)

var kindNames = [...]string{
	KindBoolean:         "boolean",
	KindInteger:         "integer",
	KindDuration:        "duration",
	KindString:          "string",
	KindConstant:        "constant",
	KindEnum:            "enum",
	KindFlags:           "flags",
	KindStringArray:     "string_array",
	KindObject:          "object",
	KindObjectArray:     "object_array",
	KindObjectMap:       "object_map",
	KindLocalizedString: "localized_string",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Node is the document-level contract shared by every schema node.
//
// A nil doc.Value means absent. Equal and Hash treat absent as the
// node's default. Merge of two absent values is absent unless the node is
// pinned. Expand of an absent value is absent.
//
// Node is a sealed interface: only types in this package implement it.
type Node interface {
	Title() string
	Description() string
	Kind() Kind

	Default() (doc.Value, error)
	Validate(v doc.Value) (doc.Value, error)
	Equal(a, b doc.Value) (bool, error)
	Hash(v doc.Value) (uint64, error)
	Merge(a, b doc.Value) (doc.Value, error)
	Expand(v doc.Value, lookup Lookup) (doc.Value, error)
	Format(v doc.Value) string

	// pinned nodes always produce their value, even when it equals the
	// default or both merge inputs are absent.
	pinned() bool
}

// Typed is the value-level contract of a node whose native representation
// is T. Every concrete node implements Typed for exactly one T.
type Typed[T any] interface {
	Node
	codec[T]
}

type codec[T any] interface {
	DefaultValue() T
	Serialize(v T) (doc.Value, error)
	Deserialize(v doc.Value) (T, error)
	EqualValues(a, b T) (bool, error)
	HashValue(v T) (uint64, error)
	MergeValues(a, b T) (T, error)
	ExpandValue(v T, lookup Lookup) (T, error)
	FormatValue(v T) string
}

type info struct {
	title       string
	description string
}

func (i info) Title() string { return i.title }
func (i info) Description() string { return i.description }

// Compile-time checks.
var (
	_ Typed[bool]       = (*Boolean)(nil)
	_ Typed[int64]      = (*Integer)(nil)
	_ Typed[string]     = (*String)(nil)
	_ Typed[string]     = (*Constant)(nil)
	_ Typed[int]        = (*Enum)(nil)
	_ Typed[[]int]      = (*Flags)(nil)
	_ Typed[[]string]   = (*StringArray)(nil)
	_ Typed[doc.Object] = (*Object)(nil)
	_ Typed[doc.Object] = (*LocalizedString)(nil)
)
