package directory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/emmsync/internal/emm"
)

// Snapshot is the YAML form of a directory export.
type Snapshot struct {
	Users  []Entry `yaml:"users"`
	Groups []Entry `yaml:"groups"`
}

// Entry is one user or group of a snapshot. Groups lists the names or SIDs
// of the groups the entry belongs to directly.
type Entry struct {
	SID        string            `yaml:"sid"`
	Name       string            `yaml:"name"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
	Groups     []string          `yaml:"groups,omitempty"`
}

// File is a Directory backed by a snapshot. It is immutable after load.
type File struct {
	byID   map[string]*Principal
	byName map[string]*Principal
}

var _ Directory = (*File)(nil)

// LoadFile reads a YAML snapshot. Unknown fields are rejected.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file: %w", err)
	}
	var snap Snapshot
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to parse directory file %s: %w", path, err)
	}
	return NewFile(snap)
}

// NewFile builds a directory from a snapshot. Group references are resolved
// to SIDs; a reference to an unknown group is an error.
func NewFile(snap Snapshot) (*File, error) {
	f := &File{
		byID:   make(map[string]*Principal),
		byName: make(map[string]*Principal),
	}
	add := func(e Entry, kind Kind) error {
		sid, err := ParseSID(e.SID)
		if err != nil {
			return fmt.Errorf("%s %q: %w", kind, e.Name, err)
		}
		if e.Name == "" {
			return fmt.Errorf("%s %s: name is required", kind, e.SID)
		}
		p := &Principal{ID: sid.String(), Name: e.Name, Kind: kind, Attributes: e.Attributes}
		if _, dup := f.byID[p.ID]; dup {
			return fmt.Errorf("duplicate principal %s", p.ID)
		}
		key := foldName(e.Name)
		if _, dup := f.byName[key]; dup {
			return fmt.Errorf("duplicate principal name %q", e.Name)
		}
		f.byID[p.ID] = p
		f.byName[key] = p
		return nil
	}
	for _, e := range snap.Groups {
		if err := add(e, KindGroup); err != nil {
			return nil, err
		}
	}
	for _, e := range snap.Users {
		if err := add(e, KindUser); err != nil {
			return nil, err
		}
	}

	link := func(e Entry) error {
		p := f.lookup(e.SID)
		for _, ref := range e.Groups {
			g := f.lookup(ref)
			if g == nil || g.Kind != KindGroup {
				return fmt.Errorf("%s %q: unknown group %q", p.Kind, p.Name, ref)
			}
			p.Groups = append(p.Groups, g.ID)
		}
		return nil
	}
	for _, e := range append(append([]Entry{}, snap.Groups...), snap.Users...) {
		if err := link(e); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *File) lookup(id string) *Principal {
	if sid, err := ParseSID(id); err == nil {
		return f.byID[sid.String()]
	}
	return f.byName[foldName(id)]
}

// ResolvePrincipal returns a copy of the principal named by a SID or name.
func (f *File) ResolvePrincipal(_ context.Context, id string) (*Principal, error) {
	p := f.lookup(id)
	if p == nil {
		return nil, fmt.Errorf("principal %s: %w", id, emm.ErrNotFound)
	}
	cp := *p
	cp.Groups = append([]string(nil), p.Groups...)
	return &cp, nil
}

// IsMember walks nested groups breadth first. Cycles are tolerated.
func (f *File) IsMember(_ context.Context, p *Principal, groupID string) (bool, error) {
	if p == nil {
		return false, errors.New("is member: nil principal")
	}
	g := f.lookup(groupID)
	if g == nil || g.Kind != KindGroup {
		return false, fmt.Errorf("group %s: %w", groupID, emm.ErrNotFound)
	}
	seen := map[string]bool{}
	queue := append([]string(nil), p.Groups...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == g.ID {
			return true, nil
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		if next := f.byID[id]; next != nil {
			queue = append(queue, next.Groups...)
		}
	}
	return false, nil
}
