package schema

import (
	"fmt"
	"strings"

	"github.com/roach88/emmsync/internal/doc"
)

// Property is a named child of an Object.
type Property struct {
	Name string
	Node Node
}

// P is shorthand for Property{name, node}.
func P(name string, node Node) Property {
	return Property{Name: name, Node: node}
}

// Object is a record with an ordered list of known properties.
//
// Serialization keeps properties the schema does not know, and omits known
// properties whose value equals the property default unless the property is
// pinned or the object's default document sets it. An object with a pinned
// property is pinned itself. Equality, hashing,
// merging and expansion only consider known properties.
type Object struct {
	typed[doc.Object]
	props []Property
	index map[string]int
	def   doc.Object
}

func NewObject(title, description string, props ...Property) *Object {
	n := &Object{
		props: append([]Property(nil), props...),
		index: make(map[string]int, len(props)),
	}
	for i, p := range props {
		if _, dup := n.index[p.Name]; dup {
			panic(fmt.Sprintf("schema: object %q declares property %q twice", title, p.Name))
		}
		n.index[p.Name] = i
	}
	n.typed = newTyped[doc.Object](title, description, n)
	n.pin = anyPinned(n.props)
	return n
}

// anyPinned reports whether an object must always be serialized because
// one of its properties is pinned.
func anyPinned(props []Property) bool {
	for _, p := range props {
		if p.Node.pinned() {
			return true
		}
	}
	return false
}

// Derive returns an Object sharing the properties of n with a new title,
// description and default document.
func (n *Object) Derive(title, description string, def doc.Object) *Object {
	d := &Object{props: n.props, index: n.index, def: def}
	d.typed = newTyped[doc.Object](title, description, d)
	d.pin = n.pin
	return d
}

func (n *Object) Kind() Kind { return KindObject }

// Properties returns the declared properties in order.
func (n *Object) Properties() []Property {
	return append([]Property(nil), n.props...)
}

// Property returns the node of the named property.
func (n *Object) Property(name string) (Node, bool) {
	i, ok := n.index[name]
	if !ok {
		return nil, false
	}
	return n.props[i].Node, true
}

func (n *Object) DefaultValue() doc.Object {
	if n.def == nil {
		return doc.Object{}
	}
	return n.def.Clone()
}

func (n *Object) Deserialize(v doc.Value) (doc.Object, error) {
	return asObject(v)
}

func (n *Object) Serialize(v doc.Object) (doc.Value, error) {
	out := n.DefaultValue()
	for name, pv := range v {
		if _, known := n.index[name]; !known && pv != nil {
			out[name] = doc.Clone(pv)
		}
	}
	for _, p := range n.props {
		pv := v.Get(p.Name)
		if pv == nil {
			continue
		}
		canon, err := p.Node.Validate(pv)
		if err != nil {
			return nil, within(err, p.Name)
		}
		if canon == nil {
			delete(out, p.Name)
			continue
		}
		if !p.Node.pinned() && !n.def.Has(p.Name) {
			isDefault, err := p.Node.Equal(canon, nil)
			if err != nil {
				return nil, within(err, p.Name)
			}
			if isDefault {
				delete(out, p.Name)
				continue
			}
		}
		out[p.Name] = canon
	}
	for _, p := range n.props {
		if p.Node.pinned() && !out.Has(p.Name) {
			d, err := p.Node.Default()
			if err != nil {
				return nil, within(err, p.Name)
			}
			out[p.Name] = d
		}
	}
	return out, nil
}

func (n *Object) EqualValues(a, b doc.Object) (bool, error) {
	for _, p := range n.props {
		eq, err := p.Node.Equal(a.Get(p.Name), b.Get(p.Name))
		if err != nil {
			return false, within(err, p.Name)
		}
		if !eq {
			return false, nil
		}
	}
	return true, nil
}

func (n *Object) HashValue(v doc.Object) (uint64, error) {
	var h uint64
	for _, p := range n.props {
		ph, err := p.Node.Hash(v.Get(p.Name))
		if err != nil {
			return 0, within(err, p.Name)
		}
		h ^= hashNamed(p.Name, ph)
	}
	return h, nil
}

func (n *Object) MergeValues(a, b doc.Object) (doc.Object, error) {
	out := n.DefaultValue()
	for _, p := range n.props {
		m, err := p.Node.Merge(a.Get(p.Name), b.Get(p.Name))
		if err != nil {
			return nil, within(err, p.Name)
		}
		if m != nil {
			out[p.Name] = m
		}
	}
	return out, nil
}

func (n *Object) ExpandValue(v doc.Object, lookup Lookup) (doc.Object, error) {
	out := n.DefaultValue()
	for _, p := range n.props {
		e, err := p.Node.Expand(v.Get(p.Name), lookup)
		if err != nil {
			return nil, within(err, p.Name)
		}
		if e != nil {
			out[p.Name] = e
		}
	}
	return out, nil
}

// FormatValue lists the known properties present in v, e.g. "{a, b}".
func (n *Object) FormatValue(v doc.Object) string {
	var names []string
	for _, p := range n.props {
		if v.Has(p.Name) {
			names = append(names, p.Name)
		}
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// Locale is one language offered by a LocalizedString.
type Locale struct {
	Tag  string // BCP 47 tag, e.g. "de-AT"
	Name string // display name
}

// MaxMessageLength caps every message of a LocalizedString.
const MaxMessageLength = 4096

// LocalizedString is an object with a default message and optional
// per-locale messages. Localized messages require a default message.
type LocalizedString struct {
	Object
}

func NewLocalizedString(title, description string, locales []Locale) *LocalizedString {
	messages := make([]Property, 0, len(locales))
	for _, l := range locales {
		messages = append(messages, P(l.Tag, NewMessage(l.Name, "", MaxMessageLength)))
	}
	base := NewObject(title, description,
		P("defaultMessage", NewMessage("Default Message", "The message displayed if no localized message is available for the user's locale.", MaxMessageLength)),
		P("localizedMessages", NewObject("Localized Messages", "Messages keyed by locale.", messages...)),
	)
	n := &LocalizedString{Object: *base}
	n.typed = newTyped[doc.Object](title, description, n)
	return n
}

func (n *LocalizedString) Kind() Kind { return KindLocalizedString }

func (n *LocalizedString) Serialize(v doc.Object) (doc.Value, error) {
	out, err := n.Object.Serialize(v)
	if err != nil {
		return nil, err
	}
	obj := out.(doc.Object)
	if obj.Has("localizedMessages") && !obj.Has("defaultMessage") {
		return nil, Errorf("A default message must be provided if any localized messages are provided.")
	}
	return obj, nil
}

func (n *LocalizedString) FormatValue(v doc.Object) string {
	if s, ok := v.Get("defaultMessage").(doc.String); ok {
		return n.props[0].Node.Format(s)
	}
	return "{}"
}
