// Package config loads the emmsync configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/emmsync/internal/catalog"
	"github.com/roach88/emmsync/internal/emm"
	"github.com/roach88/emmsync/internal/fragment"
)

// Policy store backends.
const (
	BackendAPI    = "api"
	BackendSQLite = "sqlite"
)

// FragmentsFromStore reads fragments from the non-SID records of the policy
// store. Any other Fragments value is a directory of fragment files.
const FragmentsFromStore = "store"

// Defaults applied by Load when the file leaves a field empty.
const (
	DefaultInterval = 15 * time.Minute
	DefaultListen   = ":9090"
)

// Config is the parsed emmsync.yaml.
type Config struct {
	// Enterprise is the enterprise id, e.g. "LC01234567".
	Enterprise string `yaml:"enterprise"`

	// Backend selects the policy store: "api" or "sqlite".
	Backend string `yaml:"backend"`

	// Credentials is the service account key file used by the api backend.
	Credentials string `yaml:"credentials,omitempty"`

	// BaseURL overrides the Android Management API endpoint.
	BaseURL string `yaml:"baseURL,omitempty"`

	// Database is the SQLite file. It holds policies for the sqlite backend
	// and the run log for both backends.
	Database string `yaml:"database,omitempty"`

	// Directory is the directory snapshot file.
	Directory string `yaml:"directory"`

	// Fragments is "store" or a directory of fragment files.
	Fragments string `yaml:"fragments"`

	// Users are the SIDs or names of the managed users and groups.
	Users []string `yaml:"users"`

	Assignments []fragment.Assignment `yaml:"assignments,omitempty"`

	// Locales are BCP 47 tags offered by localized messages.
	Locales []string `yaml:"locales,omitempty"`

	Serve Serve `yaml:"serve,omitempty"`
}

// Serve configures the long-running mode.
type Serve struct {
	// Interval between the starts of two passes.
	Interval time.Duration `yaml:"interval,omitempty"`

	// Listen is the address of the health and metrics endpoint.
	Listen string `yaml:"listen,omitempty"`
}

// Load reads, defaults and validates a configuration file. Relative paths
// in the file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes a configuration and applies defaults. Unknown fields are an
// error. It does not validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendAPI
	}
	if c.Fragments == "" {
		c.Fragments = FragmentsFromStore
	}
	if c.Serve.Interval == 0 {
		c.Serve.Interval = DefaultInterval
	}
	if c.Serve.Listen == "" {
		c.Serve.Listen = DefaultListen
	}
}

func (c *Config) resolvePaths(base string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	resolve(&c.Credentials)
	resolve(&c.Database)
	resolve(&c.Directory)
	if c.Fragments != FragmentsFromStore {
		resolve(&c.Fragments)
	}
}

// Validate checks required fields and cross-field constraints.
func (c *Config) Validate() error {
	if c.Enterprise == "" {
		return errors.New("enterprise is required")
	}
	if _, err := emm.EnterprisePath(c.Enterprise); err != nil {
		return fmt.Errorf("enterprise: %w", err)
	}

	switch c.Backend {
	case BackendAPI:
		if c.Credentials == "" {
			return errors.New("credentials is required for the api backend")
		}
	case BackendSQLite:
		if c.Database == "" {
			return errors.New("database is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown backend %q: must be %s or %s", c.Backend, BackendAPI, BackendSQLite)
	}

	if c.Directory == "" {
		return errors.New("directory is required")
	}
	if len(c.Users) == 0 {
		return errors.New("users list is required and must be non-empty")
	}
	for i, u := range c.Users {
		if u == "" {
			return fmt.Errorf("users[%d]: must not be empty", i)
		}
	}
	if err := fragment.ValidateAssignments(c.Assignments); err != nil {
		return err
	}
	for i, a := range c.Assignments {
		if len(a.AppliedTo) == 0 {
			return fmt.Errorf("assignments[%d]: appliedTo is required", i)
		}
	}
	if _, err := catalog.Locales(c.Locales); err != nil {
		return err
	}
	if c.Serve.Interval < time.Second {
		return fmt.Errorf("serve.interval %s is shorter than 1s", c.Serve.Interval)
	}
	return nil
}
