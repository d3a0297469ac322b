package schema

import (
	"fmt"
	"strings"

	"github.com/roach88/emmsync/internal/doc"
)

// array implements the list codec shared by the array node kinds.
// Distinct arrays behave as sets: equality ignores order, merge is a union
// and serialization rejects duplicates.
type array[T any] struct {
	elem     func(i int) codec[T]
	distinct bool
	def      []T
}

func (a array[T]) DefaultValue() []T {
	return append([]T(nil), a.def...)
}

func (a array[T]) Deserialize(v doc.Value) ([]T, error) {
	items, err := asArray(v)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for i, item := range items {
		val, err := a.elem(i).Deserialize(item)
		if err != nil {
			return nil, within(err, index(i))
		}
		out = append(out, val)
	}
	return out, nil
}

func (a array[T]) Serialize(vals []T) (doc.Value, error) {
	if a.distinct {
		unique, err := a.unique(vals)
		if err != nil {
			return nil, err
		}
		if len(unique) != len(vals) {
			return nil, Errorf("Duplicate items are not allowed.")
		}
	}
	out := make(doc.Array, 0, len(vals))
	for i, val := range vals {
		s, err := a.elem(i).Serialize(val)
		if err != nil {
			return nil, within(err, index(i))
		}
		out = append(out, s)
	}
	return out, nil
}

func (a array[T]) EqualValues(x, y []T) (bool, error) {
	if !a.distinct {
		if len(x) != len(y) {
			return false, nil
		}
		for i := range x {
			eq, err := a.elem(i).EqualValues(x[i], y[i])
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	}
	ux, err := a.unique(x)
	if err != nil {
		return false, err
	}
	uy, err := a.unique(y)
	if err != nil {
		return false, err
	}
	if len(ux) != len(uy) {
		return false, nil
	}
	for _, v := range uy {
		found, err := a.contains(ux, v)
		if err != nil || !found {
			return false, err
		}
	}
	return true, nil
}

func (a array[T]) HashValue(vals []T) (uint64, error) {
	if a.distinct {
		var err error
		if vals, err = a.unique(vals); err != nil {
			return 0, err
		}
	}
	var h uint64
	for i, v := range vals {
		vh, err := a.elem(i).HashValue(v)
		if err != nil {
			return 0, err
		}
		h ^= vh
	}
	return h, nil
}

func (a array[T]) MergeValues(x, y []T) ([]T, error) {
	merged := make([]T, 0, len(x)+len(y))
	merged = append(merged, x...)
	merged = append(merged, y...)
	if a.distinct {
		return a.unique(merged)
	}
	return merged, nil
}

func (a array[T]) ExpandValue(vals []T, lookup Lookup) ([]T, error) {
	out := make([]T, 0, len(vals))
	for i, v := range vals {
		e, err := a.elem(i).ExpandValue(v, lookup)
		if err != nil {
			return nil, within(err, index(i))
		}
		out = append(out, e)
	}
	if a.distinct {
		return a.unique(out)
	}
	return out, nil
}

func (a array[T]) FormatValue(vals []T) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = a.elem(i).FormatValue(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// unique keeps the first occurrence of every value.
func (a array[T]) unique(vals []T) ([]T, error) {
	out := make([]T, 0, len(vals))
	for _, v := range vals {
		found, err := a.contains(out, v)
		if err != nil {
			return nil, err
		}
		if !found {
			out = append(out, v)
		}
	}
	return out, nil
}

func (a array[T]) contains(vals []T, v T) (bool, error) {
	c := a.elem(0)
	for _, o := range vals {
		eq, err := c.EqualValues(o, v)
		if err != nil {
			return false, err
		}
		if eq {
			return true, nil
		}
	}
	return false, nil
}

// StringArray is a list of strings, distinct unless created with
// NewStringList.
type StringArray struct {
	typed[[]string]
	array[string]
	item *String
}

// NewStringArray returns a distinct string list (set semantics).
func NewStringArray(title, description string, item *String) *StringArray {
	return newStringArray(title, description, item, true)
}

// NewStringList returns an ordered string list that allows duplicates.
func NewStringList(title, description string, item *String) *StringArray {
	return newStringArray(title, description, item, false)
}

func newStringArray(title, description string, item *String, distinct bool) *StringArray {
	if item == nil {
		item = NewString(title, "", "")
	}
	n := &StringArray{item: item}
	n.array = array[string]{elem: func(int) codec[string] { return item }, distinct: distinct}
	n.typed = newTyped[[]string](title, description, n)
	return n
}

func (n *StringArray) Kind() Kind { return KindStringArray }
func (n *StringArray) Item() *String { return n.item }

// Flags is a distinct list of Enum names.
type Flags struct {
	typed[[]int]
	array[int]
	enum *Enum
}

// NewFlags builds a Flags node over enum. Defaults are entry names.
func NewFlags(title, description string, enum *Enum, defaults ...string) (*Flags, error) {
	n := &Flags{enum: enum}
	var def []int
	for _, name := range defaults {
		i, err := enum.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("flags %q: %w", title, err)
		}
		def = append(def, i)
	}
	n.array = array[int]{elem: func(int) codec[int] { return enum }, distinct: true, def: def}
	n.typed = newTyped[[]int](title, description, n)
	return n, nil
}

func (n *Flags) Kind() Kind { return KindFlags }
func (n *Flags) Enum() *Enum { return n.enum }

// ObjectArray is an ordered list of objects sharing one item schema.
// The item at position i is titled "Item i+1".
type ObjectArray struct {
	typed[[]doc.Object]
	array[doc.Object]
	item *Object
}

// NewObjectArray returns an ordered object list. A distinct list treats
// equal items as one.
func NewObjectArray(title, description string, item *Object, distinct bool) *ObjectArray {
	n := &ObjectArray{item: item}
	n.array = array[doc.Object]{elem: func(i int) codec[doc.Object] { return n.ItemAt(i) }, distinct: distinct}
	n.typed = newTyped[[]doc.Object](title, description, n)
	return n
}

func (n *ObjectArray) Kind() Kind    { return KindObjectArray }
func (n *ObjectArray) Item() *Object { return n.item }

// ItemAt returns the schema of the item at position i.
func (n *ObjectArray) ItemAt(i int) *Object {
	return n.item.Derive(fmt.Sprintf("Item %d", i+1), n.item.description, n.item.def)
}

func (n *ObjectArray) FormatValue(items []doc.Object) string {
	switch len(items) {
	case 0:
		return "[]"
	case 1:
		return "[1 object]"
	default:
		return fmt.Sprintf("[%d objects]", len(items))
	}
}
