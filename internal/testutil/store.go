// Package testutil provides deterministic fakes for reconciliation tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/roach88/emmsync/internal/doc"
	"github.com/roach88/emmsync/internal/emm"
)

// Call is one recorded store call.
type Call struct {
	Op   string `yaml:"op"`
	Name string `yaml:"name"`
}

// Store is an in-memory policy store that records every call. Listing is
// ordered by name. Failures are injected per operation and name.
type Store struct {
	mu       sync.Mutex
	docs     map[string]doc.Object
	calls    []Call
	failures map[Call]error

	// ListErrAfter ends the listing with ListErr after that many records.
	ListErrAfter int
	ListErr      error

	// Int64Fields names top-level fields that Patch stores and returns as
	// decimal strings, the way the management API encodes int64 values.
	Int64Fields []string
}

// NewStore returns a store holding a copy of docs.
func NewStore(docs map[string]doc.Object) *Store {
	s := &Store{docs: make(map[string]doc.Object), failures: make(map[Call]error)}
	for name, obj := range docs {
		s.docs[name] = obj.Clone()
	}
	return s
}

// Fail makes op ("get", "patch" or "delete") on name return err.
func (s *Store) Fail(op, name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[Call{op, name}] = err
}

func (s *Store) record(op, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{op, name})
	return s.failures[Call{op, name}]
}

// Calls returns the recorded calls in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// Writes returns the recorded patch and delete calls.
func (s *Store) Writes() []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Op == "patch" || c.Op == "delete" {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Snapshot returns a copy of the stored documents.
func (s *Store) Snapshot() map[string]doc.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]doc.Object, len(s.docs))
	for name, obj := range s.docs {
		out[name] = obj.Clone()
	}
	return out
}

func (s *Store) List(ctx context.Context) iter.Seq2[emm.Record, error] {
	return func(yield func(emm.Record, error) bool) {
		s.mu.Lock()
		s.calls = append(s.calls, Call{Op: "list"})
		names := make([]string, 0, len(s.docs))
		for name := range s.docs {
			names = append(names, name)
		}
		sort.Strings(names)
		records := make([]emm.Record, len(names))
		for i, name := range names {
			records[i] = emm.Record{Name: name, Document: s.docs[name].Clone()}
		}
		s.mu.Unlock()

		for i, rec := range records {
			if s.ListErr != nil && i == s.ListErrAfter {
				yield(emm.Record{}, s.ListErr)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if s.ListErr != nil && s.ListErrAfter >= len(records) {
			yield(emm.Record{}, s.ListErr)
		}
	}
}

func (s *Store) Get(_ context.Context, name string) (doc.Object, error) {
	if err := s.record("get", name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.docs[name]
	if !ok {
		return nil, fmt.Errorf("policy %s: %w", name, emm.ErrNotFound)
	}
	return obj.Clone(), nil
}

func (s *Store) Patch(_ context.Context, name string, obj doc.Object) (doc.Object, error) {
	if err := s.record("patch", name); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("patch: nil document")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := obj.Clone()
	for _, f := range s.Int64Fields {
		if n, ok := stored[f].(doc.Int); ok {
			stored[f] = doc.String(strconv.FormatInt(int64(n), 10))
		}
	}
	s.docs[name] = stored
	return stored.Clone(), nil
}

func (s *Store) Delete(_ context.Context, name string) error {
	if err := s.record("delete", name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[name]; !ok {
		return fmt.Errorf("policy %s: %w", name, emm.ErrNotFound)
	}
	delete(s.docs, name)
	return nil
}

// Fragments is an in-memory fragment source keyed by fragment name. The
// default fragment is stored under emm.DefaultPolicy. Lookups are counted.
type Fragments struct {
	mu    sync.Mutex
	docs  map[string]doc.Value
	calls map[string]int
}

func NewFragments(docs map[string]doc.Value) *Fragments {
	return &Fragments{docs: docs, calls: make(map[string]int)}
}

func (f *Fragments) DefaultFragment(ctx context.Context) (doc.Value, error) {
	return f.FragmentForGroup(ctx, emm.DefaultPolicy)
}

func (f *Fragments) FragmentForGroup(_ context.Context, name string) (doc.Value, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return doc.Clone(f.docs[name]), nil
}

// Lookups returns how often name was fetched.
func (f *Fragments) Lookups(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}
