package reconcile

import (
	"context"
	"errors"

	"github.com/roach88/emmsync/internal/directory"
	"github.com/roach88/emmsync/internal/doc"
	"github.com/roach88/emmsync/internal/emm"
	"github.com/roach88/emmsync/internal/fragment"
)

// runCache memoises remote lookups by name for one pass. Entries are never
// invalidated within the pass; nil values record absence. Failures are not
// cached, so a later record retries the call.
type runCache struct {
	principals map[string]*directory.Principal
	members    map[membership]bool
	fragments  map[string]doc.Value
	policies   map[string]doc.Object
}

type membership struct {
	principal, group string
}

func newRunCache() *runCache {
	return &runCache{
		principals: make(map[string]*directory.Principal),
		members:    make(map[membership]bool),
		fragments:  make(map[string]doc.Value),
		policies:   make(map[string]doc.Object),
	}
}

// principal resolves id, returning nil for an unknown principal.
func (c *runCache) principal(ctx context.Context, dir directory.Directory, id string) (*directory.Principal, error) {
	if p, ok := c.principals[id]; ok {
		return p, nil
	}
	p, err := dir.ResolvePrincipal(ctx, id)
	if errors.Is(err, emm.ErrNotFound) {
		p, err = nil, nil
	}
	if err != nil {
		return nil, &RemoteError{Op: "resolve principal", Name: id, Err: err}
	}
	c.principals[id] = p
	return p, nil
}

// isMember reports group membership. An unknown group has no members.
func (c *runCache) isMember(ctx context.Context, dir directory.Directory, p *directory.Principal, group string) (bool, error) {
	key := membership{p.ID, group}
	if ok, hit := c.members[key]; hit {
		return ok, nil
	}
	ok, err := dir.IsMember(ctx, p, group)
	if errors.Is(err, emm.ErrNotFound) {
		ok, err = false, nil
	}
	if err != nil {
		return false, &RemoteError{Op: "check membership", Name: group, Err: err}
	}
	c.members[key] = ok
	return ok, nil
}

func (c *runCache) fragment(ctx context.Context, src fragment.Source, name string) (doc.Value, error) {
	if v, ok := c.fragments[name]; ok {
		return v, nil
	}
	var (
		v   doc.Value
		err error
	)
	if name == emm.DefaultPolicy {
		v, err = src.DefaultFragment(ctx)
	} else {
		v, err = src.FragmentForGroup(ctx, name)
	}
	if err != nil {
		return nil, &RemoteError{Op: "get fragment", Name: name, Err: err}
	}
	if _, isNull := v.(doc.Null); isNull {
		v = nil
	}
	c.fragments[name] = v
	return v, nil
}

// policy returns the stored document of name, or nil if there is none.
func (c *runCache) policy(ctx context.Context, store Store, name string) (doc.Object, error) {
	if obj, ok := c.policies[name]; ok {
		return obj, nil
	}
	obj, err := store.Get(ctx, name)
	if errors.Is(err, emm.ErrNotFound) {
		obj, err = nil, nil
	}
	if err != nil {
		return nil, &RemoteError{Op: "get", Name: name, Err: err}
	}
	c.policies[name] = obj
	return obj, nil
}

func (c *runCache) storePolicy(name string, obj doc.Object) {
	c.policies[name] = obj
}
