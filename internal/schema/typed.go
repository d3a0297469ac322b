package schema

import (
	"github.com/roach88/emmsync/internal/doc"
)

// typed lifts a codec into the document-level Node operations.
// Concrete nodes embed it and point self back at themselves so that their
// own codec methods are used.
type typed[T any] struct {
	info
	self codec[T]
	pin  bool
}

func newTyped[T any](title, description string, self codec[T]) typed[T] {
	return typed[T]{info: info{title: title, description: description}, self: self}
}

func (t typed[T]) pinned() bool { return t.pin }

func (t typed[T]) value(v doc.Value) (T, error) {
	if v == nil {
		return t.self.DefaultValue(), nil
	}
	return t.self.Deserialize(v)
}

func (t typed[T]) Default() (doc.Value, error) {
	return t.self.Serialize(t.self.DefaultValue())
}

func (t typed[T]) Validate(v doc.Value) (doc.Value, error) {
	if v == nil {
		return nil, nil
	}
	val, err := t.self.Deserialize(v)
	if err != nil {
		return nil, err
	}
	return t.self.Serialize(val)
}

func (t typed[T]) Equal(a, b doc.Value) (bool, error) {
	if a == nil && b == nil {
		return true, nil
	}
	av, err := t.value(a)
	if err != nil {
		return false, err
	}
	bv, err := t.value(b)
	if err != nil {
		return false, err
	}
	return t.self.EqualValues(av, bv)
}

func (t typed[T]) Hash(v doc.Value) (uint64, error) {
	val, err := t.value(v)
	if err != nil {
		return 0, err
	}
	return t.self.HashValue(val)
}

func (t typed[T]) Merge(a, b doc.Value) (doc.Value, error) {
	if a == nil && b == nil && !t.pin {
		return nil, nil
	}
	av, err := t.value(a)
	if err != nil {
		return nil, err
	}
	bv, err := t.value(b)
	if err != nil {
		return nil, err
	}
	merged, err := t.self.MergeValues(av, bv)
	if err != nil {
		return nil, err
	}
	return t.self.Serialize(merged)
}

func (t typed[T]) Expand(v doc.Value, lookup Lookup) (doc.Value, error) {
	if v == nil {
		return nil, nil
	}
	if lookup == nil {
		lookup = NoLookup
	}
	val, err := t.self.Deserialize(v)
	if err != nil {
		return nil, err
	}
	expanded, err := t.self.ExpandValue(val, lookup)
	if err != nil {
		return nil, err
	}
	return t.self.Serialize(expanded)
}

func (t typed[T]) Format(v doc.Value) string {
	val, err := t.value(v)
	if err != nil {
		return message(err)
	}
	return t.self.FormatValue(val)
}

// scalar supplies last-writer-wins merge and identity expansion.
type scalar[T comparable] struct{}

func (scalar[T]) EqualValues(a, b T) (bool, error) { return a == b, nil }

func (scalar[T]) MergeValues(_, b T) (T, error) { return b, nil }

func (scalar[T]) ExpandValue(v T, _ Lookup) (T, error) { return v, nil }
