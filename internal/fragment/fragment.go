// Package fragment provides the template fragments that desired policies
// are merged from: one default fragment for every principal plus one per
// assignment.
package fragment

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/roach88/emmsync/internal/directory"
	"github.com/roach88/emmsync/internal/doc"
	"github.com/roach88/emmsync/internal/emm"
)

// Source is the template fragment port. A missing fragment is absent (nil
// value, nil error), not an error.
type Source interface {
	DefaultFragment(ctx context.Context) (doc.Value, error)
	FragmentForGroup(ctx context.Context, name string) (doc.Value, error)
}

// Assignment applies the fragment Name to the principals in AppliedTo
// (SIDs or names of users and groups).
type Assignment struct {
	Name      string   `yaml:"name" json:"name"`
	AppliedTo []string `yaml:"appliedTo" json:"appliedTo"`
}

// ValidateAssignments rejects empty, SID-like, default and repeated names.
func ValidateAssignments(assignments []Assignment) error {
	seen := make(map[string]bool, len(assignments))
	for i, a := range assignments {
		switch {
		case a.Name == "":
			return fmt.Errorf("assignment %d: name is required", i)
		case a.Name == emm.DefaultPolicy:
			return fmt.Errorf("assignment %q: the default fragment applies to everyone", a.Name)
		case directory.IsSIDLike(a.Name):
			return fmt.Errorf("assignment %q: names must not be SID-like", a.Name)
		case seen[a.Name]:
			return fmt.Errorf("assignment %q: declared twice", a.Name)
		}
		if _, err := emm.PolicyPath("x", a.Name); err != nil {
			return fmt.Errorf("assignment %q: %w", a.Name, err)
		}
		seen[a.Name] = true
	}
	return nil
}

// Getter reads one stored policy.
type Getter interface {
	Get(ctx context.Context, name string) (doc.Object, error)
}

// StoreSource reads fragments from non-SID policy records of a policy
// store: "default" and one record per assignment name.
type StoreSource struct {
	Store Getter
}

func (s StoreSource) DefaultFragment(ctx context.Context) (doc.Value, error) {
	return s.get(ctx, emm.DefaultPolicy)
}

func (s StoreSource) FragmentForGroup(ctx context.Context, name string) (doc.Value, error) {
	return s.get(ctx, name)
}

func (s StoreSource) get(ctx context.Context, name string) (doc.Value, error) {
	obj, err := s.Store.Get(ctx, name)
	if errors.Is(err, emm.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fragment %s: %w", name, err)
	}
	return obj, nil
}

// Names yields the default fragment name followed by the assignment names
// in declaration order.
func Names(assignments []Assignment) iter.Seq[string] {
	return func(yield func(string) bool) {
		if !yield(emm.DefaultPolicy) {
			return
		}
		for _, a := range assignments {
			if !yield(a.Name) {
				return
			}
		}
	}
}
