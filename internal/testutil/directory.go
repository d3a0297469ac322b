package testutil

import (
	"context"
	"sync"

	"github.com/roach88/emmsync/internal/directory"
)

// Directory wraps a directory and counts calls, optionally failing them.
type Directory struct {
	directory.Directory

	mu       sync.Mutex
	resolves map[string]int
	members  map[string]int

	// ResolveErr and MemberErr fail every call when set.
	ResolveErr error
	MemberErr  error
}

func NewDirectory(dir directory.Directory) *Directory {
	return &Directory{Directory: dir, resolves: make(map[string]int), members: make(map[string]int)}
}

func (d *Directory) ResolvePrincipal(ctx context.Context, id string) (*directory.Principal, error) {
	d.mu.Lock()
	d.resolves[id]++
	err := d.ResolveErr
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return d.Directory.ResolvePrincipal(ctx, id)
}

func (d *Directory) IsMember(ctx context.Context, p *directory.Principal, group string) (bool, error) {
	d.mu.Lock()
	d.members[p.ID+"|"+group]++
	err := d.MemberErr
	d.mu.Unlock()
	if err != nil {
		return false, err
	}
	return d.Directory.IsMember(ctx, p, group)
}

// Resolves returns how often id was resolved.
func (d *Directory) Resolves(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolves[id]
}

// MemberChecks returns how often membership of principal in group was
// checked.
func (d *Directory) MemberChecks(principal, group string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.members[principal+"|"+group]
}
