package schema

import (
	"fmt"

	"github.com/roach88/emmsync/internal/doc"
)

// EnumEntry is one allowed value of an Enum. Label is display text.
type EnumEntry struct {
	Name  string
	Label string
}

// Enum is a field restricted to a fixed list of names. Its typed value is
// the index of the entry.
type Enum struct {
	typed[int]
	scalar[int]
	entries []EnumEntry
	byName  map[string]int
	def     int
}

// EnumOption configures an Enum.
type EnumOption func(*enumConfig)

type enumConfig struct {
	defaultName *string
}

// EnumDefault selects the default entry by name. Without it the first entry
// is the default.
func EnumDefault(name string) EnumOption {
	return func(c *enumConfig) { c.defaultName = &name }
}

// NewEnum builds an Enum. It fails when a name repeats or the requested
// default is not one of the names. An Enum without entries accepts no value.
func NewEnum(title, description string, entries []EnumEntry, opts ...EnumOption) (*Enum, error) {
	var cfg enumConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	n := &Enum{
		entries: append([]EnumEntry(nil), entries...),
		byName:  make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		if _, dup := n.byName[e.Name]; dup {
			return nil, fmt.Errorf("enum %q: duplicate entry %q", title, e.Name)
		}
		n.byName[e.Name] = i
	}
	if cfg.defaultName != nil {
		i, ok := n.byName[*cfg.defaultName]
		if !ok {
			return nil, fmt.Errorf("enum %q: default %q is not an entry", title, *cfg.defaultName)
		}
		n.def = i
	}
	n.typed = newTyped[int](title, description, n)
	return n, nil
}

// MustEnum is like NewEnum but panics on error.
// Use only for trees built from literals.
func MustEnum(title, description string, entries []EnumEntry, opts ...EnumOption) *Enum {
	n, err := NewEnum(title, description, entries, opts...)
	if err != nil {
		panic(err)
	}
	return n
}

func (n *Enum) Kind() Kind { return KindEnum }
func (n *Enum) DefaultValue() int { return n.def }
func (n *Enum) Entries() []EnumEntry { return append([]EnumEntry(nil), n.entries...) }

// Name returns the entry name at index i.
func (n *Enum) Name(i int) (string, error) {
	if i < 0 || i >= len(n.entries) {
		return "", Errorf("Index %d is out of range for %s.", i, n.title)
	}
	return n.entries[i].Name, nil
}

// Resolve returns the index of name.
func (n *Enum) Resolve(name string) (int, error) {
	i, ok := n.byName[name]
	if !ok {
		return 0, Errorf("'%s' is not a valid value for %s.", name, n.title)
	}
	return i, nil
}

func (n *Enum) Serialize(v int) (doc.Value, error) {
	name, err := n.Name(v)
	if err != nil {
		return nil, err
	}
	return doc.String(name), nil
}

func (n *Enum) Deserialize(v doc.Value) (int, error) {
	s, err := asString(v)
	if err != nil {
		return 0, err
	}
	return n.Resolve(s)
}

func (n *Enum) HashValue(v int) (uint64, error) { return hashInt(int64(v)), nil }

func (n *Enum) FormatValue(v int) string {
	name, err := n.Name(v)
	if err != nil {
		return message(err)
	}
	return name
}

