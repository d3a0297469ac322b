// Package emm holds the Android Management resource shapes shared by the
// remote client, the local store and the policy catalog.
package emm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/emmsync/internal/doc"
)

// ErrNotFound is returned by ports when a record, application or principal
// does not exist.
var ErrNotFound = errors.New("not found")

// Record is one stored policy. Name is the short policy name (the last
// segment of enterprises/<e>/policies/<name>).
type Record struct {
	Name     string
	Document doc.Object
}

// DefaultPolicy names the fragment that applies to every principal.
const DefaultPolicy = "default"

// EnterprisePath returns the resource name of an enterprise.
func EnterprisePath(enterprise string) (string, error) {
	if err := checkSegment(enterprise); err != nil {
		return "", err
	}
	return "enterprises/" + enterprise, nil
}

// PolicyPath returns the full resource name of a policy.
func PolicyPath(enterprise, name string) (string, error) {
	if err := checkSegment(name); err != nil {
		return "", err
	}
	return fmt.Sprintf("enterprises/%s/policies/%s", enterprise, name), nil
}

// ApplicationPath returns the full resource name of an application.
func ApplicationPath(enterprise, packageName string) (string, error) {
	if err := checkSegment(packageName); err != nil {
		return "", err
	}
	return fmt.Sprintf("enterprises/%s/applications/%s", enterprise, packageName), nil
}

// ShortName strips the collection prefix from a resource name.
func ShortName(resource string) string {
	if i := strings.LastIndexByte(resource, '/'); i >= 0 {
		return resource[i+1:]
	}
	return resource
}

func checkSegment(s string) error {
	if s == "" {
		return errors.New("empty resource name")
	}
	if strings.Contains(s, "/") {
		return fmt.Errorf("invalid resource name %q", s)
	}
	return nil
}

// Application is the subset of the Android Management application resource
// the catalog needs to derive per-app policy schemas.
type Application struct {
	Name              string            `json:"name,omitempty"`
	Title             string            `json:"title,omitempty"`
	Description       string            `json:"description,omitempty"`
	ManagedProperties []ManagedProperty `json:"managedProperties,omitempty"`
	Permissions       []AppPermission   `json:"permissions,omitempty"`
	AppTracks         []AppTrackInfo    `json:"appTracks,omitempty"`
}

// ManagedProperty describes one managed configuration key of an app.
// Type is one of BOOL, STRING, INTEGER, CHOICE, MULTISELECT, HIDDEN,
// BUNDLE and BUNDLE_ARRAY.
type ManagedProperty struct {
	Key              string                 `json:"key"`
	Type             string                 `json:"type"`
	Title            string                 `json:"title,omitempty"`
	Description      string                 `json:"description,omitempty"`
	DefaultValue     any                    `json:"defaultValue,omitempty"`
	Entries          []ManagedPropertyEntry `json:"entries,omitempty"`
	NestedProperties []ManagedProperty      `json:"nestedProperties,omitempty"`
}

type ManagedPropertyEntry struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

type AppPermission struct {
	PermissionID string `json:"permissionId"`
	Name         string `json:"name,omitempty"`
	Description  string `json:"description,omitempty"`
}

type AppTrackInfo struct {
	TrackID    string `json:"trackId"`
	TrackAlias string `json:"trackAlias,omitempty"`
}
