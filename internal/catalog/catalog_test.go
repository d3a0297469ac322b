package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/emmsync/internal/doc"
	"github.com/roach88/emmsync/internal/emm"
	"github.com/roach88/emmsync/internal/schema"
)

type fakeApps map[string]*emm.Application

func (f fakeApps) Application(_ context.Context, pkg string) (*emm.Application, error) {
	app, ok := f[pkg]
	if !ok {
		return nil, emm.ErrNotFound
	}
	return app, nil
}

func mailApp() *emm.Application {
	return &emm.Application{
		Name:  "enterprises/LC01/applications/com.example.mail",
		Title: "Mail",
		ManagedProperties: []emm.ManagedProperty{
			{Key: "server", Type: "STRING", Title: "Server"},
			{Key: "port", Type: "INTEGER", Title: "Port", DefaultValue: float64(143)},
			{Key: "channel", Type: "HIDDEN", DefaultValue: "corp"},
		},
		Permissions: []emm.AppPermission{{PermissionID: "android.permission.READ_CONTACTS"}},
		AppTracks:   []emm.AppTrackInfo{{TrackID: "beta", TrackAlias: "Beta"}},
	}
}

func mustParse(t *testing.T, s string) doc.Value {
	t.Helper()
	v, err := doc.Parse([]byte(s))
	require.NoError(t, err)
	return v
}

func TestPolicyCompiles(t *testing.T) {
	root, err := Policy(Options{})
	require.NoError(t, err)
	assert.Equal(t, "Policy", root.Title())

	kinds := map[string]schema.Kind{
		"applications":              schema.KindObjectMap,
		"addUserDisabled":           schema.KindBoolean,
		"maximumTimeToLock":         schema.KindInteger,
		"locationMode":              schema.KindEnum,
		"keyguardDisabledFeatures":  schema.KindFlags,
		"frpAdminEmails":            schema.KindStringArray,
		"advancedSecurityOverrides": schema.KindObject,
		"choosePrivateKeyRules":     schema.KindObjectArray,
		"passwordPolicies":          schema.KindObjectMap,
		"deviceOwnerLockScreenInfo": schema.KindLocalizedString,
	}
	for name, kind := range kinds {
		node, ok := root.Property(name)
		require.True(t, ok, name)
		assert.Equal(t, kind, node.Kind(), name)
	}

	props := root.Properties()
	assert.Equal(t, "applications", props[0].Name)
}

func TestPolicyScenarioGroupWins(t *testing.T) {
	root, err := Policy(Options{})
	require.NoError(t, err)

	merged, err := root.Merge(
		mustParse(t, `{"locationMode": "LOCATION_ENFORCED"}`),
		mustParse(t, `{"locationMode": "LOCATION_DISABLED"}`),
	)
	require.NoError(t, err)
	assert.Equal(t, doc.Object{"locationMode": doc.String("LOCATION_DISABLED")}, merged)
}

func TestPolicyNestedConstraints(t *testing.T) {
	root, err := Policy(Options{})
	require.NoError(t, err)

	_, err = root.Validate(mustParse(t, `{"systemUpdate": {"type": "WINDOWED", "startMinutes": 1440}}`))
	require.Error(t, err)
	assert.Equal(t, "Value must not exceed 1439.", err.Error())

	_, err = root.Validate(mustParse(t, `{"passwordPolicies": [{"passwordScope": "SCOPE_WORLD"}]}`))
	require.Error(t, err)
	assert.Equal(t, "'SCOPE_WORLD' is not a valid value for Password Scope.", err.Error())

	canon, err := root.Validate(mustParse(t, `{"passwordPolicies": [{"passwordScope": "SCOPE_DEVICE", "passwordExpirationTimeout": "86400s", "passwordMinimumLength": 6}]}`))
	require.NoError(t, err)
	assert.Equal(t, doc.Object{"passwordPolicies": doc.Array{doc.Object{
		"passwordScope":             doc.String("SCOPE_DEVICE"),
		"passwordExpirationTimeout": doc.String("86400.000000000s"),
		"passwordMinimumLength":     doc.Int(6),
	}}}, canon)
}

func TestApplicationsResolveFromSource(t *testing.T) {
	root, err := Policy(Options{Applications: fakeApps{"com.example.mail": mailApp()}})
	require.NoError(t, err)

	in := mustParse(t, `{"applications": [{
		"packageName": "com.example.mail",
		"installType": "FORCE_INSTALLED",
		"managedConfiguration": {"server": "mx.example.com", "port": 993, "channel": "corp"},
		"permissionGrants": [{"permission": "android.permission.READ_CONTACTS", "policy": "GRANT"}],
		"accessibleTrackIds": ["beta"]
	}]}`)
	canon, err := root.Validate(in)
	require.NoError(t, err)
	assert.Equal(t, in, canon)

	_, err = root.Validate(mustParse(t, `{"applications": [{"packageName": "com.example.mail", "accessibleTrackIds": ["alpha"]}]}`))
	require.Error(t, err)
	assert.Equal(t, "'alpha' is not a valid value for Track.", err.Error())

	_, err = root.Validate(mustParse(t, `{"applications": [{"packageName": "com.example.mail", "permissionGrants": [{"permission": "android.permission.CAMERA"}]}]}`))
	require.Error(t, err)
	assert.Equal(t, "'android.permission.CAMERA' is not a valid value for Permission.", err.Error())

	_, err = root.Validate(mustParse(t, `{"applications": [{"packageName": "com.example.mail", "managedConfiguration": {"channel": "public"}}]}`))
	require.Error(t, err)
	assert.Equal(t, "Value 'corp' expected for channel, got 'public'.", err.Error())
}

func TestApplicationHiddenValueIsPinned(t *testing.T) {
	root, err := Policy(Options{Applications: fakeApps{"com.example.mail": mailApp()}})
	require.NoError(t, err)

	merged, err := root.Merge(nil, mustParse(t, `{"applications": [{"packageName": "com.example.mail"}]}`))
	require.NoError(t, err)
	assert.Equal(t, doc.Object{"applications": doc.Array{doc.Object{
		"packageName":          doc.String("com.example.mail"),
		"managedConfiguration": doc.Object{"channel": doc.String("corp")},
	}}}, merged)
}

func TestResolveApplication(t *testing.T) {
	src := fakeApps{"com.example.mail": mailApp()}

	_, err := ResolveApplication(src, "packageName", "com/example")
	require.Error(t, err)
	assert.True(t, schema.IsError(err))
	assert.Equal(t, "Invalid package name: com/example", err.Error())

	obj, err := ResolveApplication(src, "packageName", "com.example.mail")
	require.NoError(t, err)
	assert.Equal(t, "com.example.mail [Mail]", obj.Title())

	obj, err = ResolveApplication(src, "packageName", "com.unknown")
	require.NoError(t, err)
	assert.Equal(t, "com.unknown", obj.Title())
	assert.Equal(t, "Application not found.", obj.Description())

	obj, err = ResolveApplication(nil, "packageName", "com.example.mail")
	require.NoError(t, err)
	assert.Equal(t, "Application not found.", obj.Description())
}

func TestFromManagedProperty(t *testing.T) {
	tests := []struct {
		name string
		prop emm.ManagedProperty
		kind schema.Kind
		def  doc.Value
	}{
		{"bool", emm.ManagedProperty{Key: "b", Type: "BOOL", DefaultValue: true}, schema.KindBoolean, doc.Bool(true)},
		{"string", emm.ManagedProperty{Key: "s", Type: "STRING", DefaultValue: "x"}, schema.KindString, doc.String("x")},
		{"integer", emm.ManagedProperty{Key: "i", Type: "INTEGER", DefaultValue: float64(-3)}, schema.KindInteger, doc.Int(-3)},
		{"choice with default", emm.ManagedProperty{Key: "c", Type: "CHOICE", DefaultValue: "b", Entries: []emm.ManagedPropertyEntry{{Value: "a"}, {Value: "b"}}}, schema.KindEnum, doc.String("b")},
		{"choice without default", emm.ManagedProperty{Key: "c", Type: "CHOICE", Entries: []emm.ManagedPropertyEntry{{Value: "a"}}}, schema.KindEnum, doc.String("")},
		{"multiselect", emm.ManagedProperty{Key: "m", Type: "MULTISELECT", DefaultValue: []any{"a", "zz"}, Entries: []emm.ManagedPropertyEntry{{Value: "a"}, {Value: "b"}}}, schema.KindFlags, doc.Array{doc.String("a")}},
		{"multiselect free", emm.ManagedProperty{Key: "m", Type: "MULTISELECT"}, schema.KindStringArray, doc.Array{}},
		{"bundle", emm.ManagedProperty{Key: "o", Type: "BUNDLE", NestedProperties: []emm.ManagedProperty{{Key: "x", Type: "BOOL"}}}, schema.KindObject, doc.Object{}},
		{"bundle array", emm.ManagedProperty{Key: "a", Type: "BUNDLE_ARRAY", NestedProperties: []emm.ManagedProperty{{Key: "x", Type: "BOOL"}}}, schema.KindObjectArray, doc.Array{}},
		{"hidden", emm.ManagedProperty{Key: "h", Type: "HIDDEN", DefaultValue: "v"}, schema.KindConstant, doc.String("v")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := FromManagedProperty(tt.prop)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, node.Kind())
			def, err := node.Default()
			require.NoError(t, err)
			assert.Equal(t, tt.def, def)
		})
	}

	_, err := FromManagedProperty(emm.ManagedProperty{Key: "z", Type: "BLOB"})
	require.Error(t, err)
	assert.Equal(t, "Type 'BLOB' of managed property z is invalid.", err.Error())
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"missing policy", `other: 1`, "policy"},
		{"unknown kind", `policy: {kind: "object", title: "P", fields: x: {kind: "blob", title: "X"}}`, "policy.x.kind"},
		{"missing title", `policy: {kind: "object", title: "P", fields: x: {kind: "boolean"}}`, "policy.x.title"},
		{"enum without values", `policy: {kind: "object", title: "P", fields: x: {kind: "enum", title: "X"}}`, "policy.x.values"},
		{"bad enum default", `policy: {kind: "object", title: "P", fields: x: {kind: "enum", title: "X", values: [{name: "A"}], default: "B"}}`, "policy.x"},
		{"integer default out of range", `policy: {kind: "object", title: "P", fields: x: {kind: "integer", title: "X", default: 5, maximum: 3}}`, "policy.x.default"},
		{"map without key", `policy: {kind: "object", title: "P", fields: x: {kind: "map", title: "X"}}`, "policy.x.key"},
		{"root not object", `policy: {kind: "boolean", title: "P"}`, "policy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile("test.cue", tt.src, Options{})
			require.Error(t, err)
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileDefaults(t *testing.T) {
	root, err := Compile("test.cue", `policy: {
		kind: "object", title: "P"
		fields: {
			b: {kind: "boolean", title: "B", default: true}
			d: {kind: "duration", title: "D", default: "30s"}
			e: {kind: "enum", title: "E", values: [{name: "A"}, {name: "B"}], default: "B"}
			f: {kind: "flags", title: "F", values: [{name: "A"}, {name: "B"}], default: ["A"]}
			l: {kind: "strings", title: "L", distinct: false}
			c: {kind: "constant", title: "C", value: "fixed"}
		}
	}`, Options{})
	require.NoError(t, err)

	d, err := root.Default()
	require.NoError(t, err)
	assert.Equal(t, doc.Object{"c": doc.String("fixed")}, d)

	expect := map[string]doc.Value{
		"b": doc.Bool(true),
		"d": doc.String("30.000000000s"),
		"e": doc.String("B"),
		"f": doc.Array{doc.String("A")},
	}
	for name, want := range expect {
		node, ok := root.Property(name)
		require.True(t, ok)
		got, err := node.Default()
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}

	l, _ := root.Property("l")
	repeated, err := l.Validate(doc.Array{doc.String("x"), doc.String("x")})
	require.NoError(t, err)
	assert.Equal(t, doc.Array{doc.String("x"), doc.String("x")}, repeated)
}

func TestLocales(t *testing.T) {
	locales, err := Locales([]string{"fr", "de", "de", "en-US"})
	require.NoError(t, err)
	require.Len(t, locales, 3)
	assert.Equal(t, schema.Locale{Tag: "en-US", Name: "American English"}, locales[0])
	assert.Equal(t, "fr", locales[1].Tag)
	assert.Equal(t, "de", locales[2].Tag)

	_, err = Locales([]string{"not a tag"})
	assert.Error(t, err)
}
