// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads stackctl configuration.
//
// Configuration comes from a single YAML file specified by the
// STACKCTL_CONFIG environment variable or a --config flag. There is no
// automatic discovery and environment variables never override file
// values; this keeps deployments deterministic and auditable. The file
// may contain development and production sections that override base
// values when the environment matches.
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

// Environment identifies the deployment type.
type Environment string

const (
	// Development is a local workstation run.
	Development Environment = "development"
	// Production is the ARM deployment host.
	Production Environment = "production"
)

// Default port assignments for the stack's services. The database and
// cache are offset from their conventional ports so a host-level
// PostgreSQL or Redis does not collide with the containerized ones.
const (
	DefaultDatabasePort  = 5433
	DefaultCachePort     = 6380
	DefaultAPIPort       = 8001
	DefaultDashboardPort = 8502
)

// Config is the master configuration for stackctl.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Paths configures file and directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Ports maps each stack service to its expected host TCP port.
	Ports PortsConfig `yaml:"ports"`

	// Backup configures database dumps.
	Backup BackupConfig `yaml:"backup"`

	// Launcher configures the local process launcher.
	Launcher LauncherConfig `yaml:"launcher"`

	// Per-environment overrides, applied after the base values.
	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains the fields that may vary per environment.
type Overrides struct {
	Paths    *PathsConfig    `yaml:"paths,omitempty"`
	Ports    *PortsConfig    `yaml:"ports,omitempty"`
	Backup   *BackupConfig   `yaml:"backup,omitempty"`
	Launcher *LauncherConfig `yaml:"launcher,omitempty"`
}

// PathsConfig configures file and directory locations.
type PathsConfig struct {
	// Root is the base directory for stackctl state.
	Root string `yaml:"root"`

	// CredentialsFile is the generated key=value credentials file
	// consumed by the service manager.
	CredentialsFile string `yaml:"credentials_file"`

	// BackupDir receives database dump archives.
	BackupDir string `yaml:"backup_dir"`

	// TunnelConfig is the tunnel ingress declaration.
	TunnelConfig string `yaml:"tunnel_config"`

	// ComposeFile is the container orchestration declaration.
	ComposeFile string `yaml:"compose_file"`

	// ServicesManifest is the launcher's JSONC process manifest.
	ServicesManifest string `yaml:"services_manifest"`
}

// PortsConfig maps service names to expected host TCP ports.
type PortsConfig struct {
	Database  int `yaml:"database"`
	Cache     int `yaml:"cache"`
	API       int `yaml:"api"`
	Dashboard int `yaml:"dashboard"`
}

// Map returns the service→port table in a stable iteration order
// (database, cache, api, dashboard).
func (p PortsConfig) Map() []NamedPort {
	return []NamedPort{
		{Name: "database", Port: p.Database},
		{Name: "cache", Port: p.Cache},
		{Name: "api", Port: p.API},
		{Name: "dashboard", Port: p.Dashboard},
	}
}

// NamedPort pairs a service name with its expected port.
type NamedPort struct {
	Name string
	Port int
}

// BackupConfig configures database dumps.
type BackupConfig struct {
	// Command is the dump command and its arguments. The command must
	// write the dump to stdout.
	Command []string `yaml:"command"`

	// Schedule is a 5-field cron expression for the periodic dump,
	// evaluated in UTC. Informational: the actual timer is the
	// service manager's.
	Schedule string `yaml:"schedule"`

	// Compression selects the archive compression: zstd, lz4, none.
	Compression string `yaml:"compression"`

	// Keep is how many archives retention pruning preserves.
	Keep int `yaml:"keep"`
}

// LauncherConfig configures the local process launcher.
type LauncherConfig struct {
	// ReadinessTimeout bounds the backend readiness probe.
	ReadinessTimeout time.Duration `yaml:"readiness_timeout"`

	// StopGrace bounds the SIGTERM→SIGKILL escalation on teardown.
	StopGrace time.Duration `yaml:"stop_grace"`
}

// Default returns the base configuration. It exists so every field has
// a sensible value before the file is merged in; the file itself is
// still required for Load.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	root := filepath.Join(homeDir, ".local", "share", "stackctl")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:             root,
			CredentialsFile:  filepath.Join(root, ".env.production"),
			BackupDir:        filepath.Join(root, "backups"),
			TunnelConfig:     filepath.Join(root, "tunnel.yml"),
			ComposeFile:      filepath.Join(root, "docker-compose.yml"),
			ServicesManifest: filepath.Join(root, "services.jsonc"),
		},
		Ports: PortsConfig{
			Database:  DefaultDatabasePort,
			Cache:     DefaultCachePort,
			API:       DefaultAPIPort,
			Dashboard: DefaultDashboardPort,
		},
		Backup: BackupConfig{
			Command:     []string{"docker", "compose", "exec", "-T", "db", "pg_dump", "-U", "neural_user", "neural_saas_db"},
			Schedule:    "30 3 * * *",
			Compression: "zstd",
			Keep:        14,
		},
		Launcher: LauncherConfig{
			ReadinessTimeout: 30 * time.Second,
			StopGrace:        10 * time.Second,
		},
	}
}

// Load loads configuration from the path in STACKCTL_CONFIG. There is
// no fallback: an unset variable is an error.
func Load() (*Config, error) {
	path := os.Getenv("STACKCTL_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("STACKCTL_CONFIG environment variable not set; " +
			"point it at your stackctl.yaml, or use the --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from an explicit file path, applies the
// matching environment override section, and expands ${VAR} patterns
// in paths.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyOverrides()
	cfg.expandPaths()
	return cfg, nil
}

// applyOverrides merges the section matching the configured
// environment into the base values.
func (c *Config) applyOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if o := overrides.Paths; o != nil {
		setIfNotEmpty(&c.Paths.Root, o.Root)
		setIfNotEmpty(&c.Paths.CredentialsFile, o.CredentialsFile)
		setIfNotEmpty(&c.Paths.BackupDir, o.BackupDir)
		setIfNotEmpty(&c.Paths.TunnelConfig, o.TunnelConfig)
		setIfNotEmpty(&c.Paths.ComposeFile, o.ComposeFile)
		setIfNotEmpty(&c.Paths.ServicesManifest, o.ServicesManifest)
	}
	if o := overrides.Ports; o != nil {
		setIfPositive(&c.Ports.Database, o.Database)
		setIfPositive(&c.Ports.Cache, o.Cache)
		setIfPositive(&c.Ports.API, o.API)
		setIfPositive(&c.Ports.Dashboard, o.Dashboard)
	}
	if o := overrides.Backup; o != nil {
		if len(o.Command) > 0 {
			c.Backup.Command = o.Command
		}
		setIfNotEmpty(&c.Backup.Schedule, o.Schedule)
		setIfNotEmpty(&c.Backup.Compression, o.Compression)
		setIfPositive(&c.Backup.Keep, o.Keep)
	}
	if o := overrides.Launcher; o != nil {
		if o.ReadinessTimeout > 0 {
			c.Launcher.ReadinessTimeout = o.ReadinessTimeout
		}
		if o.StopGrace > 0 {
			c.Launcher.StopGrace = o.StopGrace
		}
	}
}

func setIfNotEmpty(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func setIfPositive(target *int, value int) {
	if value > 0 {
		*target = value
	}
}

// expandPaths expands ${VAR} and ${VAR:-default} patterns in every
// configured path.
func (c *Config) expandPaths() {
	vars := map[string]string{
		"STACKCTL_ROOT": c.Paths.Root,
		"HOME":          os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["STACKCTL_ROOT"] = c.Paths.Root

	c.Paths.CredentialsFile = expandVars(c.Paths.CredentialsFile, vars)
	c.Paths.BackupDir = expandVars(c.Paths.BackupDir, vars)
	c.Paths.TunnelConfig = expandVars(c.Paths.TunnelConfig, vars)
	c.Paths.ComposeFile = expandVars(c.Paths.ComposeFile, vars)
	c.Paths.ServicesManifest = expandVars(c.Paths.ServicesManifest, vars)
}

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

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Paths.CredentialsFile == "" {
		errs = append(errs, fmt.Errorf("paths.credentials_file is required"))
	}

	seen := make(map[int]string)
	for _, named := range c.Ports.Map() {
		if named.Port < 1 || named.Port > 65535 {
			errs = append(errs, fmt.Errorf("ports.%s: %d out of range", named.Name, named.Port))
			continue
		}
		if previous, ok := seen[named.Port]; ok {
			errs = append(errs, fmt.Errorf("ports.%s and ports.%s both claim %d", previous, named.Name, named.Port))
		}
		seen[named.Port] = named.Name
	}

	switch c.Backup.Compression {
	case "zstd", "lz4", "none":
	default:
		errs = append(errs, fmt.Errorf("backup.compression must be zstd, lz4, or none; got %q", c.Backup.Compression))
	}
	if len(c.Backup.Command) == 0 {
		errs = append(errs, fmt.Errorf("backup.command is required"))
	}
	if c.Backup.Keep < 1 {
		errs = append(errs, fmt.Errorf("backup.keep must be at least 1"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// HasSystemd reports whether systemd is managing this host.
func (c *Config) HasSystemd() bool {
	_, err := os.Stat("/run/systemd/system")
	return err == nil
}

// EnsurePaths creates the configured directories if missing. Files
// (credentials, tunnel, compose, manifest) are not touched.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Root, c.Paths.BackupDir} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
