package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/emmsync/internal/fragment"
)

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "emmsync.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "LC0123abcd", cfg.Enterprise)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, filepath.Join("testdata", "emmsync.db"), cfg.Database)
	assert.Equal(t, filepath.Join("testdata", "directory.yaml"), cfg.Directory)
	assert.Equal(t, filepath.Join("testdata", "fragments"), cfg.Fragments)
	assert.Equal(t, []string{"Mobile Users", "S-1-5-21-100-200-300-1001"}, cfg.Users)
	assert.Equal(t, []fragment.Assignment{
		{Name: "sales", AppliedTo: []string{"Sales"}},
		{Name: "kiosk", AppliedTo: []string{"S-1-5-21-100-200-300-1002"}},
	}, cfg.Assignments)
	assert.Equal(t, []string{"en-US", "de"}, cfg.Locales)
	assert.Equal(t, 5*time.Minute, cfg.Serve.Interval)
	assert.Equal(t, "127.0.0.1:9100", cfg.Serve.Listen)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("enterprise: LC1\ncredentials: /etc/key.json\ndirectory: /etc/dir.yaml\nusers: [Everyone]\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendAPI, cfg.Backend)
	assert.Equal(t, FragmentsFromStore, cfg.Fragments)
	assert.Equal(t, DefaultInterval, cfg.Serve.Interval)
	assert.Equal(t, DefaultListen, cfg.Serve.Listen)
}

func TestLoadKeepsAbsolutePathsAndStoreFragments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "emmsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"enterprise: LC1\ncredentials: key.json\ndirectory: /srv/directory.yaml\nusers: [Everyone]\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "key.json"), cfg.Credentials)
	assert.Equal(t, "/srv/directory.yaml", cfg.Directory)
	assert.Equal(t, FragmentsFromStore, cfg.Fragments)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("enterprise: LC1\nuser: [Everyone]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field user not found")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Parse([]byte("enterprise: LC1\ncredentials: key.json\ndirectory: dir.yaml\nusers: [Everyone]\n"))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing enterprise", func(c *Config) { c.Enterprise = "" }, "enterprise is required"},
		{"enterprise with slash", func(c *Config) { c.Enterprise = "a/b" }, "enterprise"},
		{"api without credentials", func(c *Config) { c.Credentials = "" }, "credentials is required"},
		{"sqlite without database", func(c *Config) { c.Backend = BackendSQLite }, "database is required"},
		{"unknown backend", func(c *Config) { c.Backend = "ldap" }, `unknown backend "ldap"`},
		{"missing directory", func(c *Config) { c.Directory = "" }, "directory is required"},
		{"no users", func(c *Config) { c.Users = nil }, "users list is required"},
		{"empty user", func(c *Config) { c.Users = []string{"Everyone", ""} }, "users[1]"},
		{"SID-like assignment", func(c *Config) {
			c.Assignments = []fragment.Assignment{{Name: "S-1-5-32-544", AppliedTo: []string{"Everyone"}}}
		}, "SID-like"},
		{"default assignment", func(c *Config) {
			c.Assignments = []fragment.Assignment{{Name: "default", AppliedTo: []string{"Everyone"}}}
		}, "applies to everyone"},
		{"assignment without targets", func(c *Config) {
			c.Assignments = []fragment.Assignment{{Name: "sales"}}
		}, "appliedTo is required"},
		{"bad locale", func(c *Config) { c.Locales = []string{"not a locale"} }, "locale"},
		{"short interval", func(c *Config) { c.Serve.Interval = time.Millisecond }, "shorter than 1s"},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
