// Package config loads the satchel.yaml client configuration.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "500ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full client configuration.
type Config struct {
	// Database is the path to the SQLite cache file.
	Database string `yaml:"database"`

	// Stores is the directory holding the CUE store declarations.
	Stores string `yaml:"stores"`

	Remote   Remote   `yaml:"remote"`
	Identity Identity `yaml:"identity"`
	Sync     Sync     `yaml:"sync"`
	Read     Read     `yaml:"read"`
}

// Remote configures the connection to the system of record.
type Remote struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// Identity is the principal the CLI runs as. A real deployment feeds
// this from its authentication flow; the CLI takes it from config.
type Identity struct {
	User       string `yaml:"user"`
	Tenant     string `yaml:"tenant"`
	AllTenants bool   `yaml:"all_tenants"`
}

// Sync configures the background drain loop and the retry budget.
type Sync struct {
	Interval    Duration `yaml:"interval"`
	MaxAttempts int      `yaml:"max_attempts"`
	BackoffBase Duration `yaml:"backoff_base"`
	BackoffMax  Duration `yaml:"backoff_max"`
}

// Read configures the stale-read race bound.
type Read struct {
	StaleTimeout Duration `yaml:"stale_timeout"`
}

// Defaults for optional fields.
const (
	DefaultSyncInterval = 30 * time.Second
)

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Sync.Interval == 0 {
		cfg.Sync.Interval = Duration(DefaultSyncInterval)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Database == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Stores == "" {
		return fmt.Errorf("stores directory is required")
	}
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if c.Identity.User == "" {
		return fmt.Errorf("identity.user is required")
	}
	if c.Identity.Tenant == "" && !c.Identity.AllTenants {
		return fmt.Errorf("identity.tenant is required unless all_tenants is set")
	}
	if c.Sync.MaxAttempts < 0 {
		return fmt.Errorf("sync.max_attempts must not be negative")
	}
	return nil
}
