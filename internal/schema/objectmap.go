package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/emmsync/internal/doc"
)

// Resolver returns the item schema for one key of an ObjectMap.
type Resolver func(key string) (*Object, error)

// ObjectMap is a list of objects identified by a key property, such as
// applications by package name. Two maps are equal when they hold the same
// keys with equal items; merging unions the keys and merges items sharing
// a key. Each key has its own item schema, resolved once per node.
type ObjectMap struct {
	typed[[]doc.Object]
	keyName string
	key     Node
	resolve Resolver

	mu       sync.Mutex
	items    map[string]*Object
	resolves singleflight.Group
}

// NewObjectMap builds a map whose items all share the properties of item.
// The schema for key k is item with title Format(k) and the default
// document {keyName: k}.
func NewObjectMap(title, description, keyName string, key Node, item *Object) *ObjectMap {
	return NewKeyedMap(title, description, keyName, key, func(k string) (*Object, error) {
		if _, err := key.Validate(doc.String(k)); err != nil {
			return nil, err
		}
		return item.Derive(key.Format(doc.String(k)), item.Description(), doc.Object{keyName: doc.String(k)}), nil
	})
}

// NewKeyedMap builds a map whose per-key schemas come from resolve.
// key is the String or Enum node describing the key property.
func NewKeyedMap(title, description, keyName string, key Node, resolve Resolver) *ObjectMap {
	n := &ObjectMap{
		keyName: keyName,
		key:     key,
		resolve: resolve,
		items:   make(map[string]*Object),
	}
	n.typed = newTyped[[]doc.Object](title, description, n)
	return n
}

func (n *ObjectMap) Kind() Kind { return KindObjectMap }
func (n *ObjectMap) DefaultValue() []doc.Object { return nil }

// ItemSchema returns the memoised schema for key. Concurrent callers for
// one key share a single resolver call; other keys are not held up by it.
// Resolver failures are not memoised.
func (n *ObjectMap) ItemSchema(key string) (*Object, error) {
	if s, ok := n.cached(key); ok {
		return s, nil
	}
	v, err, _ := n.resolves.Do(key, func() (any, error) {
		if s, ok := n.cached(key); ok {
			return s, nil
		}
		s, err := n.resolve(key)
		if err != nil {
			return nil, err
		}
		n.mu.Lock()
		n.items[key] = s
		n.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Object), nil
}

func (n *ObjectMap) cached(key string) (*Object, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.items[key]
	return s, ok
}

// defaultKey is used for items that omit the key property.
func (n *ObjectMap) defaultKey() (string, bool) {
	d, err := n.key.Default()
	if err != nil {
		return "", false
	}
	s, ok := d.(doc.String)
	if !ok || s == "" {
		return "", false
	}
	return string(s), true
}

// itemKey returns the key of item, falling back to the key default. An
// absent or empty key reports false.
func (n *ObjectMap) itemKey(item doc.Object) (string, bool, error) {
	raw := item.Get(n.keyName)
	if raw == nil {
		k, ok := n.defaultKey()
		return k, ok, nil
	}
	k, ok := raw.(doc.String)
	if !ok {
		return "", false, Errorf("Property %s is a %s, expected String.", n.keyName, doc.TypeName(raw))
	}
	return string(k), k != "", nil
}

func (n *ObjectMap) missingKeys(count int) error {
	return Errorf("%d items have no %s value.", count, n.key.Title())
}

func (n *ObjectMap) schemaOf(item doc.Object) (*Object, error) {
	k, ok, err := n.itemKey(item)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, n.missingKeys(1)
	}
	return n.ItemSchema(k)
}

// keyed maps items by key. It fails if items lack a key or share one.
func (n *ObjectMap) keyed(items []doc.Object) (map[string]doc.Object, []string, error) {
	byKey := make(map[string]doc.Object, len(items))
	var keys, dups []string
	missing := 0
	for _, item := range items {
		k, ok, err := n.itemKey(item)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			missing++
			continue
		}
		if _, seen := byKey[k]; seen {
			if !contains(dups, k) {
				dups = append(dups, k)
			}
			continue
		}
		byKey[k] = item
		keys = append(keys, k)
	}
	if missing > 0 {
		return nil, nil, n.missingKeys(missing)
	}
	if len(dups) > 0 {
		return nil, nil, Errorf("The following %s values occur more than once: %s", n.key.Title(), strings.Join(dups, ", "))
	}
	sort.Strings(keys)
	return byKey, keys, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (n *ObjectMap) Deserialize(v doc.Value) ([]doc.Object, error) {
	arr, err := asArray(v)
	if err != nil {
		return nil, err
	}
	items := make([]doc.Object, 0, len(arr))
	missing := 0
	for i, raw := range arr {
		item, err := asObject(raw)
		if err != nil {
			return nil, within(err, index(i))
		}
		_, ok, err := n.itemKey(item)
		if err != nil {
			return nil, within(err, index(i))
		}
		if !ok {
			missing++
		}
		items = append(items, item)
	}
	if missing > 0 {
		return nil, n.missingKeys(missing)
	}
	out := make([]doc.Object, 0, len(items))
	for i, item := range items {
		s, err := n.schemaOf(item)
		if err != nil {
			return nil, within(err, index(i))
		}
		if item, err = s.Deserialize(item); err != nil {
			return nil, within(err, index(i))
		}
		out = append(out, item)
	}
	return out, nil
}

func (n *ObjectMap) Serialize(items []doc.Object) (doc.Value, error) {
	if _, _, err := n.keyed(items); err != nil {
		return nil, err
	}
	out := make(doc.Array, 0, len(items))
	for i, item := range items {
		s, err := n.schemaOf(item)
		if err != nil {
			return nil, within(err, index(i))
		}
		v, err := s.Serialize(item)
		if err != nil {
			return nil, within(err, index(i))
		}
		out = append(out, v)
	}
	return out, nil
}

func (n *ObjectMap) EqualValues(a, b []doc.Object) (bool, error) {
	ka, _, err := n.keyed(a)
	if err != nil {
		return false, err
	}
	kb, keys, err := n.keyed(b)
	if err != nil {
		return false, err
	}
	if len(ka) != len(kb) {
		return false, nil
	}
	for _, k := range keys {
		ia, ok := ka[k]
		if !ok {
			return false, nil
		}
		s, err := n.ItemSchema(k)
		if err != nil {
			return false, within(err, k)
		}
		eq, err := s.EqualValues(ia, kb[k])
		if err != nil || !eq {
			return false, within(err, k)
		}
	}
	return true, nil
}

func (n *ObjectMap) HashValue(items []doc.Object) (uint64, error) {
	byKey, keys, err := n.keyed(items)
	if err != nil {
		return 0, err
	}
	var h uint64
	for _, k := range keys {
		s, err := n.ItemSchema(k)
		if err != nil {
			return 0, within(err, k)
		}
		ih, err := s.HashValue(byKey[k])
		if err != nil {
			return 0, within(err, k)
		}
		h ^= hashNamed(k, ih)
	}
	return h, nil
}

// MergeValues unions both maps by key. The result is ordered by key.
func (n *ObjectMap) MergeValues(a, b []doc.Object) ([]doc.Object, error) {
	ka, _, err := n.keyed(a)
	if err != nil {
		return nil, err
	}
	kb, _, err := n.keyed(b)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]doc.Object, len(ka)+len(kb))
	for k, item := range ka {
		merged[k] = item
	}
	for k, item := range kb {
		prev, ok := merged[k]
		if !ok {
			merged[k] = item
			continue
		}
		s, err := n.ItemSchema(k)
		if err != nil {
			return nil, within(err, k)
		}
		if merged[k], err = s.MergeValues(prev, item); err != nil {
			return nil, within(err, k)
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]doc.Object, 0, len(keys))
	for _, k := range keys {
		out = append(out, merged[k])
	}
	return out, nil
}

func (n *ObjectMap) ExpandValue(items []doc.Object, lookup Lookup) ([]doc.Object, error) {
	out := make([]doc.Object, 0, len(items))
	for i, item := range items {
		s, err := n.schemaOf(item)
		if err != nil {
			return nil, within(err, index(i))
		}
		e, err := s.ExpandValue(item, lookup)
		if err != nil {
			return nil, within(err, index(i))
		}
		out = append(out, e)
	}
	return out, nil
}

func (n *ObjectMap) FormatValue(items []doc.Object) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		raw := item.Get(n.keyName)
		if raw == nil {
			parts = append(parts, "{?}")
			continue
		}
		parts = append(parts, "{"+n.key.Format(raw)+"}")
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, ", "))
}
