package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/emmsync/internal/doc"
	"github.com/roach88/emmsync/internal/emm"
	"github.com/roach88/emmsync/internal/schema"
)

// ApplicationSource looks up applications by package name.
// Unknown packages yield emm.ErrNotFound.
type ApplicationSource interface {
	Application(ctx context.Context, packageName string) (*emm.Application, error)
}

// lookupTimeout bounds one application lookup made while resolving an item
// schema. Resolution happens inside schema operations, which carry no
// context.
const lookupTimeout = 30 * time.Second

// Applications returns the applications map. Item schemas are resolved per
// package name from src and memoised by the map.
func Applications(title, description, keyName string, key schema.Node, src ApplicationSource) *schema.ObjectMap {
	return schema.NewKeyedMap(title, description, keyName, key, func(pkg string) (*schema.Object, error) {
		return ResolveApplication(src, keyName, pkg)
	})
}

// ResolveApplication builds the item schema for one package. Package names
// containing "/" are rejected; unknown packages get a generic schema
// described as not found.
func ResolveApplication(src ApplicationSource, keyName, pkg string) (*schema.Object, error) {
	if strings.Contains(pkg, "/") {
		return nil, schema.Errorf("Invalid package name: %s", pkg)
	}
	app, err := lookupApplication(src, pkg)
	if err != nil {
		return nil, err
	}
	base, err := FromApplication(app)
	if err != nil {
		return nil, err
	}
	title := pkg
	if app.Title != "" && app.Title != pkg {
		title = fmt.Sprintf("%s [%s]", pkg, app.Title)
	}
	return base.Derive(title, app.Description, doc.Object{keyName: doc.String(pkg)}), nil
}

func lookupApplication(src ApplicationSource, pkg string) (*emm.Application, error) {
	notFound := &emm.Application{Title: pkg, Description: "Application not found."}
	if src == nil {
		return notFound, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	app, err := src.Application(ctx, pkg)
	if errors.Is(err, emm.ErrNotFound) {
		return notFound, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up application %s: %w", pkg, err)
	}
	return app, nil
}

var (
	installType = schema.MustEnum("Install Type", "The type of installation to perform.", []schema.EnumEntry{
		{Name: "INSTALL_TYPE_UNSPECIFIED", Label: "Unspecified. Defaults to AVAILABLE."},
		{Name: "PREINSTALLED", Label: "The app is automatically installed and can be removed by the user."},
		{Name: "FORCE_INSTALLED", Label: "The app is automatically installed and can't be removed by the user."},
		{Name: "BLOCKED", Label: "The app is blocked and can't be installed."},
		{Name: "AVAILABLE", Label: "The app is available to install."},
		{Name: "REQUIRED_FOR_SETUP", Label: "The app is automatically installed and setup waits for it."},
		{Name: "KIOSK", Label: "The app is automatically installed in kiosk mode."},
	})
	autoUpdateMode = schema.MustEnum("Auto Update Mode", "Controls the auto-update mode for the app.", []schema.EnumEntry{
		{Name: "AUTO_UPDATE_MODE_UNSPECIFIED", Label: "Unspecified. Defaults to AUTO_UPDATE_DEFAULT."},
		{Name: "AUTO_UPDATE_DEFAULT", Label: "The app is automatically updated with low priority."},
		{Name: "AUTO_UPDATE_POSTPONED", Label: "The app is not automatically updated for up to 90 days after it becomes out of date."},
		{Name: "AUTO_UPDATE_HIGH_PRIORITY", Label: "The app is updated as soon as possible."},
	})
	permissionPolicyEntries = []schema.EnumEntry{
		{Name: "PERMISSION_POLICY_UNSPECIFIED", Label: "Policy not specified. The PROMPT behavior is used by default."},
		{Name: "PROMPT", Label: "Prompt the user to grant a permission."},
		{Name: "GRANT", Label: "Automatically grant a permission."},
		{Name: "DENY", Label: "Automatically deny a permission."},
	}
	defaultPermissionPolicy = schema.MustEnum("Default Permission Policy", "The default policy for all permissions requested by the app.", permissionPolicyEntries)
	grantPolicy             = schema.MustEnum("Policy", "The policy for granting the permission.", permissionPolicyEntries)
	delegatedScope          = schema.MustEnum("Delegated Scope", "", []schema.EnumEntry{
		{Name: "DELEGATED_SCOPE_UNSPECIFIED", Label: "No delegation scope specified."},
		{Name: "CERT_INSTALL", Label: "Grants access to certificate installation and management."},
		{Name: "MANAGED_CONFIGURATIONS", Label: "Grants access to managed configurations management."},
		{Name: "BLOCK_UNINSTALL", Label: "Grants access to blocking uninstallation."},
		{Name: "PERMISSION_GRANT", Label: "Grants access to permission policy and permission grant state."},
		{Name: "PACKAGE_ACCESS", Label: "Grants access to package access state."},
		{Name: "ENABLE_SYSTEM_APP", Label: "Grants access for enabling system apps."},
	})
	connectedWorkAndPersonalApp = schema.MustEnum("Connected Work And Personal App", "Controls whether the app can communicate with itself across profiles.", []schema.EnumEntry{
		{Name: "CONNECTED_WORK_AND_PERSONAL_APP_UNSPECIFIED", Label: "Unspecified. Defaults to CONNECTED_WORK_AND_PERSONAL_APPS_DISALLOWED."},
		{Name: "CONNECTED_WORK_AND_PERSONAL_APP_DISALLOWED", Label: "Default. Prevents the app from communicating cross-profile."},
		{Name: "CONNECTED_WORK_AND_PERSONAL_APP_ALLOWED", Label: "Allows the app to communicate across profiles after receiving user consent."},
	})
	alwaysOnVpnLockdownExemption = schema.MustEnum("Always-On VPN Lockdown Exemption", "Specifies whether the app is allowed networking when the VPN is not connected.", []schema.EnumEntry{
		{Name: "ALWAYS_ON_VPN_LOCKDOWN_EXEMPTION_UNSPECIFIED", Label: "Unspecified. Defaults to VPN_LOCKDOWN_ENFORCED."},
		{Name: "VPN_LOCKDOWN_ENFORCED", Label: "The app respects the always-on VPN lockdown setting."},
		{Name: "VPN_LOCKDOWN_EXEMPTION", Label: "The app is exempt from the always-on VPN lockdown setting."},
	})
	workProfileWidgets = schema.MustEnum("Work Profile Widgets", "Specifies whether the app is allowed to add widgets to the home screen.", []schema.EnumEntry{
		{Name: "WORK_PROFILE_WIDGETS_UNSPECIFIED", Label: "Unspecified. Defaults to workProfileWidgetsDefault."},
		{Name: "WORK_PROFILE_WIDGETS_ALLOWED", Label: "Work profile widgets are allowed."},
		{Name: "WORK_PROFILE_WIDGETS_DISALLOWED", Label: "Work profile widgets are disallowed."},
	})
)

// FromApplication builds the policy schema of one application entry. The
// managed configuration, permission and track fields depend on app.
func FromApplication(app *emm.Application) (*schema.Object, error) {
	managed, err := managedProperties("Managed Configuration", "Managed configuration applied to the app.", app.ManagedProperties)
	if err != nil {
		return nil, err
	}

	permissions := []schema.EnumEntry{{Name: "", Label: "Unspecified."}}
	seen := map[string]bool{"": true}
	for _, p := range app.Permissions {
		if seen[p.PermissionID] {
			continue
		}
		seen[p.PermissionID] = true
		permissions = append(permissions, schema.EnumEntry{Name: p.PermissionID, Label: p.Description})
	}
	permissionKey, err := schema.NewEnum("Permission", "The Android permission or group, e.g. android.permission.READ_CALENDAR.", permissions)
	if err != nil {
		return nil, err
	}

	var tracks []schema.EnumEntry
	seenTracks := map[string]bool{}
	for _, tr := range app.AppTracks {
		if tr.TrackID == "" || seenTracks[tr.TrackID] {
			continue
		}
		seenTracks[tr.TrackID] = true
		tracks = append(tracks, schema.EnumEntry{Name: tr.TrackID, Label: tr.TrackAlias})
	}
	trackEnum, err := schema.NewEnum("Track", "", tracks)
	if err != nil {
		return nil, err
	}
	trackIDs, err := schema.NewFlags("Accessible Track Ids", "The app's track IDs that a device belonging to the enterprise can access.", trackEnum)
	if err != nil {
		return nil, err
	}
	scopes, err := schema.NewFlags("Delegated Scopes", "The scopes delegated to the app from Android Device Policy.", delegatedScope)
	if err != nil {
		return nil, err
	}

	return schema.NewObject(app.Title, app.Description,
		schema.P("disabled", schema.NewBoolean("Disabled", "Whether the app is disabled. When disabled, the app data is still preserved.", false)),
		schema.P("installType", installType),
		schema.P("autoUpdateMode", autoUpdateMode),
		schema.P("managedConfiguration", managed),
		schema.P("defaultPermissionPolicy", defaultPermissionPolicy),
		schema.P("permissionGrants", schema.NewObjectMap("Permission Grants", "Explicit permission grants or denials for the app.", "permission", permissionKey,
			schema.NewObject("Permission Grant", "", schema.P("policy", grantPolicy)))),
		schema.P("minimumVersionCode", schema.NewInteger("Minimum Version Code", "The minimum version of the app that runs on the device.", 0)),
		schema.P("delegatedScopes", scopes),
		schema.P("accessibleTrackIds", trackIDs),
		schema.P("connectedWorkAndPersonalApp", connectedWorkAndPersonalApp),
		schema.P("alwaysOnVpnLockdownExemption", alwaysOnVpnLockdownExemption),
		schema.P("workProfileWidgets", workProfileWidgets),
	), nil
}

// managedProperties builds an Object over props, skipping empty and repeated
// keys.
func managedProperties(title, description string, props []emm.ManagedProperty) (*schema.Object, error) {
	var out []schema.Property
	seen := map[string]bool{}
	for _, p := range props {
		if p.Key == "" || seen[p.Key] {
			continue
		}
		seen[p.Key] = true
		node, err := FromManagedProperty(p)
		if err != nil {
			return nil, err
		}
		out = append(out, schema.P(p.Key, node))
	}
	return schema.NewObject(title, description, out...), nil
}

// FromManagedProperty maps one managed configuration property to a node.
func FromManagedProperty(p emm.ManagedProperty) (schema.Node, error) {
	title := p.Title
	if title == "" {
		title = p.Key
	}
	description := p.Description

	switch p.Type {
	case "BOOL":
		def, _ := p.DefaultValue.(bool)
		return schema.NewBoolean(title, description, def), nil

	case "STRING":
		def, _ := p.DefaultValue.(string)
		return schema.NewString(title, description, def), nil

	case "INTEGER":
		var def int64
		if d, err := doc.FromAny(p.DefaultValue); err == nil {
			if n, ok := d.(doc.Int); ok {
				def = int64(n)
			}
		}
		return schema.NewInteger(title, description, def, schema.Unbounded()), nil

	case "CHOICE":
		entries := choiceEntries(p.Entries)
		if def, ok := p.DefaultValue.(string); ok && hasEntry(entries, def) {
			return schema.NewEnum(title, description, entries, schema.EnumDefault(def))
		}
		entries = append([]schema.EnumEntry{{Name: "", Label: "Unspecified."}}, withoutName(entries, "")...)
		return schema.NewEnum(title, description, entries)

	case "MULTISELECT":
		if p.Entries == nil {
			return schema.NewStringList(title, description, nil), nil
		}
		entries := choiceEntries(p.Entries)
		enum, err := schema.NewEnum(title, description, entries)
		if err != nil {
			return nil, err
		}
		var defaults []string
		switch d := p.DefaultValue.(type) {
		case string:
			defaults = []string{d}
		case []any:
			for _, v := range d {
				if s, ok := v.(string); ok {
					defaults = append(defaults, s)
				}
			}
		case []string:
			defaults = d
		}
		defaults = filterEntries(entries, defaults)
		return schema.NewFlags(title, description, enum, defaults...)

	case "BUNDLE":
		obj, err := managedProperties(title, description, p.NestedProperties)
		if err != nil {
			return nil, err
		}
		if d, err := doc.FromAny(p.DefaultValue); err == nil {
			if def, ok := d.(doc.Object); ok && p.DefaultValue != nil {
				return obj.Derive(title, description, def), nil
			}
		}
		return obj, nil

	case "BUNDLE_ARRAY":
		item, err := managedProperties(title, description, p.NestedProperties)
		if err != nil {
			return nil, err
		}
		return schema.NewObjectArray(title, description, item, false), nil

	case "HIDDEN":
		def, _ := p.DefaultValue.(string)
		return schema.NewConstant(title, description, def), nil

	default:
		return nil, schema.Errorf("Type '%s' of managed property %s is invalid.", p.Type, title)
	}
}

func choiceEntries(in []emm.ManagedPropertyEntry) []schema.EnumEntry {
	var out []schema.EnumEntry
	seen := map[string]bool{}
	for _, e := range in {
		if seen[e.Value] {
			continue
		}
		seen[e.Value] = true
		out = append(out, schema.EnumEntry{Name: e.Value, Label: e.Name})
	}
	return out
}

func hasEntry(entries []schema.EnumEntry, name string) bool {
	for _, e := range entries {
		if e.Name == name {
			return true
		}
	}
	return false
}

func withoutName(entries []schema.EnumEntry, name string) []schema.EnumEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.Name != name {
			out = append(out, e)
		}
	}
	return out
}

func filterEntries(entries []schema.EnumEntry, names []string) []string {
	var out []string
	for _, n := range names {
		if hasEntry(entries, n) {
			out = append(out, n)
		}
	}
	return out
}
