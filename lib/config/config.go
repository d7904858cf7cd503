// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the cache core.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Cache configures the POSIX cache manager.
	Cache CacheConfig `yaml:"cache"`

	// Fetch configures the download collaborator.
	Fetch FetchConfig `yaml:"fetch"`

	// Repository names the repository this cache serves, used to derive
	// the checksum and liveness marker file names
	// (cvmfschecksum.<repo>, running.<repo>).
	Repository string `yaml:"repository"`

	// EnvironmentOverrides contains per-environment overrides. Applied
	// after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Cache *CacheConfig `yaml:"cache,omitempty"`
	Fetch *FetchConfig `yaml:"fetch,omitempty"`
}

// CacheConfig configures the POSIX cache manager.
type CacheConfig struct {
	// Root is the cache directory's root. Contains the 256 hash-prefix
	// subdirectories, txn/, quarantaine/, the checksum sidecar, and the
	// liveness marker.
	Root string `yaml:"root"`

	// AlienCache marks Root as a shared, cross-host cache directory:
	// relaxed permissions (0770/0660) and NFS-safe rename.
	AlienCache bool `yaml:"alien_cache"`

	// BigFileThreshold is the size (bytes) above which StartTxn
	// opportunistically triggers quota cleanup before allocating.
	// Default: 25 MiB.
	BigFileThreshold int64 `yaml:"big_file_threshold"`

	// TrustsReportedSize controls whether CommitTxn enforces the
	// expected-size contract when the accumulated size is zero. Set to
	// false for backing stores known to report sizes asynchronously
	// (e.g. certain object stores), matching the upstream HDFS
	// exception.
	TrustsReportedSize bool `yaml:"trusts_reported_size"`

	// DrainPollInterval is how often TearDown2ReadOnly polls the
	// in-flight transaction counter while draining. Default: 50ms.
	DrainPollInterval time.Duration `yaml:"drain_poll_interval"`
}

// FetchConfig configures the download collaborator.
type FetchConfig struct {
	// Mirrors is the ordered list of mirror hosts probed for each
	// download, most-preferred first.
	Mirrors []string `yaml:"mirrors"`

	// MaxBackoff bounds the offline-mode manifest-fetch retry backoff.
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file. They exist primarily to
// ensure all fields have sensible zero-values, not as a fallback — the
// config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "latticefs")

	return &Config{
		Environment: Development,
		Repository:  "default",
		Cache: CacheConfig{
			Root:               defaultRoot,
			AlienCache:         false,
			BigFileThreshold:   25 * 1024 * 1024,
			TrustsReportedSize: true,
			DrainPollInterval:  50 * time.Millisecond,
		},
		Fetch: FetchConfig{
			MaxBackoff: 30 * time.Second,
		},
	}
}

// Load loads configuration from the LATTICEFS_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if LATTICEFS_CONFIG is not set,
// this fails. This ensures deterministic, auditable configuration with
// no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("LATTICEFS_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("LATTICEFS_CONFIG environment variable not set; " +
			"set it to the path of your latticefs.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values - this ensures deterministic, auditable
// configuration. The only expansion performed is ${HOME} and similar
// path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			// Production defaults: alien-cache sharing is opt-in only,
			// never implied by environment alone, so no override is
			// synthesized here beyond the base config.
			overrides = &ConfigOverrides{}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Cache != nil {
		if overrides.Cache.Root != "" {
			c.Cache.Root = overrides.Cache.Root
		}
		if overrides.Cache.BigFileThreshold != 0 {
			c.Cache.BigFileThreshold = overrides.Cache.BigFileThreshold
		}
		if overrides.Cache.DrainPollInterval != 0 {
			c.Cache.DrainPollInterval = overrides.Cache.DrainPollInterval
		}
		// AlienCache and TrustsReportedSize are bools: always apply
		// from an override block when one is present for this
		// environment, so "false" can be expressed explicitly.
		c.Cache.AlienCache = overrides.Cache.AlienCache
		c.Cache.TrustsReportedSize = overrides.Cache.TrustsReportedSize
	}

	if overrides.Fetch != nil {
		if len(overrides.Fetch.Mirrors) > 0 {
			c.Fetch.Mirrors = overrides.Fetch.Mirrors
		}
		if overrides.Fetch.MaxBackoff != 0 {
			c.Fetch.MaxBackoff = overrides.Fetch.MaxBackoff
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"LATTICEFS_ROOT": c.Cache.Root,
		"HOME":           os.Getenv("HOME"),
	}

	c.Cache.Root = expandVars(c.Cache.Root, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Cache.Root == "" {
		errs = append(errs, fmt.Errorf("cache.root is required"))
	}
	if c.Cache.BigFileThreshold <= 0 {
		errs = append(errs, fmt.Errorf("cache.big_file_threshold must be positive"))
	}
	if c.Repository == "" {
		errs = append(errs, fmt.Errorf("repository is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
