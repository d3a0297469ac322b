// Package directory resolves principals and group membership.
package directory

import (
	"context"

	"golang.org/x/text/cases"
)

// Kind distinguishes users from groups.
type Kind string

const (
	KindUser  Kind = "user"
	KindGroup Kind = "group"
)

// Principal is a directory identity.
type Principal struct {
	// ID is the canonical SID string.
	ID         string
	Name       string
	Kind       Kind
	Attributes map[string]string
	// Groups lists the IDs of the groups the principal belongs to directly.
	Groups []string
}

// foldName case-folds a name. Casers are stateful, so one is made per call.
func foldName(s string) string {
	return cases.Fold().String(s)
}

// Attribute looks up an attribute by case-insensitive name. The names "id"
// and "name" are always available.
func (p *Principal) Attribute(name string) (string, bool) {
	key := foldName(name)
	switch key {
	case "id", "sid":
		return p.ID, true
	case "name":
		return p.Name, true
	}
	for k, v := range p.Attributes {
		if foldName(k) == key {
			return v, true
		}
	}
	return "", false
}

// DisplayName returns the displayName attribute, or Name.
func (p *Principal) DisplayName() string {
	if v, ok := p.Attribute("displayName"); ok && v != "" {
		return v
	}
	return p.Name
}

// Directory is the directory service port.
type Directory interface {
	// ResolvePrincipal finds a principal by SID or name. Unknown principals
	// yield emm.ErrNotFound.
	ResolvePrincipal(ctx context.Context, id string) (*Principal, error)

	// IsMember reports whether p belongs to groupID, directly or through
	// nested groups. groupID may be a SID or a name.
	IsMember(ctx context.Context, p *Principal, groupID string) (bool, error)
}
