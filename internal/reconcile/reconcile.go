package reconcile

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/roach88/emmsync/internal/directory"
	"github.com/roach88/emmsync/internal/doc"
	"github.com/roach88/emmsync/internal/emm"
	"github.com/roach88/emmsync/internal/fragment"
	"github.com/roach88/emmsync/internal/schema"
)

// Store is the policy store port.
type Store interface {
	// List yields every stored policy once. A non-nil error ends the listing.
	List(ctx context.Context) iter.Seq2[emm.Record, error]

	// Get returns a stored document, or emm.ErrNotFound.
	Get(ctx context.Context, name string) (doc.Object, error)

	// Patch replaces a document and returns the stored copy.
	Patch(ctx context.Context, name string, obj doc.Object) (doc.Object, error)

	// Delete removes a document. A missing document yields emm.ErrNotFound.
	Delete(ctx context.Context, name string) error
}

// Config wires a Reconciler.
type Config struct {
	// Schema is the root node of policy documents.
	Schema schema.Node

	Store     Store
	Directory directory.Directory
	Fragments fragment.Source

	// Users is the managed population: SIDs or names of users and groups.
	// A principal outside it has its policy deleted.
	Users []string

	// Assignments are applied in order after the default fragment.
	Assignments []fragment.Assignment

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Reconciler runs reconciliation passes. It holds no state between passes.
type Reconciler struct {
	root        schema.Node
	store       Store
	dir         directory.Directory
	fragments   fragment.Source
	users       []string
	assignments []fragment.Assignment
	logger      *slog.Logger
}

// New validates cfg and returns a Reconciler.
func New(cfg Config) (*Reconciler, error) {
	switch {
	case cfg.Schema == nil:
		return nil, errors.New("reconcile: schema is required")
	case cfg.Store == nil:
		return nil, errors.New("reconcile: store is required")
	case cfg.Directory == nil:
		return nil, errors.New("reconcile: directory is required")
	case cfg.Fragments == nil:
		return nil, errors.New("reconcile: fragment source is required")
	}
	if err := fragment.ValidateAssignments(cfg.Assignments); err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		root:        cfg.Schema,
		store:       cfg.Store,
		dir:         cfg.Directory,
		fragments:   cfg.Fragments,
		users:       cfg.Users,
		assignments: cfg.Assignments,
		logger:      logger,
	}, nil
}

// Sync returns one reconciliation pass. Every iteration of the returned
// sequence starts a fresh pass with an empty cache. The error value is
// non-nil only when the listing fails or ctx is done; that ends the pass.
func (r *Reconciler) Sync(ctx context.Context) iter.Seq2[Result, error] {
	return func(yield func(Result, error) bool) {
		c := newRunCache()
		var seq int64
		for rec, err := range r.store.List(ctx) {
			if err != nil {
				yield(Result{}, &RemoteError{Op: "list", Err: err})
				return
			}
			if err := ctx.Err(); err != nil {
				yield(Result{}, err)
				return
			}
			seq++
			c.storePolicy(rec.Name, rec.Document)
			res := r.reconcile(ctx, c, rec.Name)
			res.Seq = seq
			r.logger.Debug("record reconciled",
				"policy", res.Name,
				"outcome", res.Outcome.String(),
				"stage", string(res.Stage))
			if !yield(res, nil) {
				return
			}
		}
	}
}

// reconcile runs the record state machine for one policy name.
func (r *Reconciler) reconcile(ctx context.Context, c *runCache, name string) Result {
	res := Result{Name: name, Label: name}

	sid, err := directory.ParseSID(name)
	if err != nil {
		res.Outcome = Ignored
		return res
	}

	p, err := c.principal(ctx, r.dir, sid.String())
	if err != nil {
		res.Label = fmt.Sprintf("%s (?)", name)
		res.Outcome = Ignored
		res.annotate("Failed", StageResolve, err)
		return res
	}
	display := "?"
	if p != nil {
		display = p.DisplayName()
	}
	res.Label = fmt.Sprintf("%s (%s)", name, display)

	// Policies belong to users; a group that is itself listed stays unmanaged.
	managed := false
	if p != nil && p.Kind == directory.KindUser {
		managed, err = r.contains(ctx, c, p, r.users)
		if err != nil {
			res.Outcome = Ignored
			res.annotate("Failed", StageResolve, err)
			return res
		}
	}
	if !managed {
		res.Outcome = Deleted
		if err := r.delete(ctx, c, name); err != nil {
			res.annotate("Failed", StageDelete, err)
		}
		return res
	}

	desired, err := r.desired(ctx, c, p)
	if err != nil {
		res.Outcome = Ignored
		res.annotate("Failed", StageBuild, err)
		return res
	}

	current, err := c.policy(ctx, r.store, name)
	equal := false
	if err == nil {
		var cur doc.Value
		if current != nil {
			cur = current
		}
		equal, err = r.root.Equal(cur, desired)
	}
	if err != nil {
		equal = false
		res.annotate("Forced", StageCompare, err)
	}
	if equal {
		res.Outcome = UpToDate
		return res
	}

	res.Outcome = Updated
	stored, err := r.store.Patch(ctx, name, desired)
	if err != nil {
		res.annotate("Failed", StagePatch, &RemoteError{Op: "patch", Name: name, Err: err})
		return res
	}
	c.storePolicy(name, stored)
	return res
}

// delete removes a policy. A policy that is already gone counts as deleted.
func (r *Reconciler) delete(ctx context.Context, c *runCache, name string) error {
	err := r.store.Delete(ctx, name)
	if err != nil && !errors.Is(err, emm.ErrNotFound) {
		return &RemoteError{Op: "delete", Name: name, Err: err}
	}
	c.storePolicy(name, nil)
	return nil
}

// contains reports whether p is one of ids or a member of one of them.
// Unknown ids match nobody.
func (r *Reconciler) contains(ctx context.Context, c *runCache, p *directory.Principal, ids []string) (bool, error) {
	for _, id := range ids {
		q, err := c.principal(ctx, r.dir, id)
		if err != nil {
			return false, err
		}
		if q == nil {
			r.logger.Warn("unknown principal", "principal", id)
			continue
		}
		if q.ID == p.ID {
			return true, nil
		}
		if q.Kind != directory.KindGroup {
			continue
		}
		ok, err := c.isMember(ctx, r.dir, p, q.ID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Desired builds the desired document of p outside of a pass.
func (r *Reconciler) Desired(ctx context.Context, p *directory.Principal) (doc.Object, error) {
	if p == nil {
		return nil, errors.New("desired: nil principal")
	}
	return r.desired(ctx, newRunCache(), p)
}

// desired folds merge over the default fragment and each applicable
// assignment's fragment, each expanded with p's attributes first. Absent
// fragments are skipped.
func (r *Reconciler) desired(ctx context.Context, c *runCache, p *directory.Principal) (doc.Object, error) {
	var acc doc.Value
	for name := range fragment.Names(r.assignments) {
		if name != emm.DefaultPolicy {
			ok, err := r.applies(ctx, c, p, name)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		frag, err := c.fragment(ctx, r.fragments, name)
		if err != nil {
			return nil, err
		}
		if frag == nil {
			continue
		}
		expanded, err := r.root.Expand(frag, p.Attribute)
		if err != nil {
			return nil, fmt.Errorf("fragment %s: %w", name, err)
		}
		if acc, err = r.root.Merge(acc, expanded); err != nil {
			return nil, fmt.Errorf("fragment %s: %w", name, err)
		}
	}
	if acc == nil {
		return doc.Object{}, nil
	}
	obj, ok := acc.(doc.Object)
	if !ok {
		return nil, schema.Errorf("Object expected but got %s.", doc.TypeName(acc))
	}
	return obj, nil
}

func (r *Reconciler) applies(ctx context.Context, c *runCache, p *directory.Principal, name string) (bool, error) {
	for _, a := range r.assignments {
		if a.Name == name {
			return r.contains(ctx, c, p, a.AppliedTo)
		}
	}
	return false, nil
}
