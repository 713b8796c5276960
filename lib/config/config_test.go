// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stackctl.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: production
ports:
  api: 9001
backup:
  keep: 30
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Ports.API != 9001 {
		t.Errorf("Ports.API = %d, want 9001", cfg.Ports.API)
	}
	// Untouched fields keep their defaults.
	if cfg.Ports.Database != DefaultDatabasePort {
		t.Errorf("Ports.Database = %d, want default %d", cfg.Ports.Database, DefaultDatabasePort)
	}
	if cfg.Backup.Keep != 30 {
		t.Errorf("Backup.Keep = %d, want 30", cfg.Backup.Keep)
	}
	if cfg.Backup.Compression != "zstd" {
		t.Errorf("Backup.Compression = %q, want zstd default", cfg.Backup.Compression)
	}
}

func TestLoadFileAppliesEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: production
paths:
  root: /srv/stackctl
production:
  ports:
    dashboard: 9502
  launcher:
    readiness_timeout: 5s
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Ports.Dashboard != 9502 {
		t.Errorf("Ports.Dashboard = %d, want production override 9502", cfg.Ports.Dashboard)
	}
	if cfg.Launcher.ReadinessTimeout != 5*time.Second {
		t.Errorf("Launcher.ReadinessTimeout = %v, want 5s", cfg.Launcher.ReadinessTimeout)
	}
}

func TestLoadFileIgnoresOverridesForOtherEnvironment(t *testing.T) {
	path := writeConfig(t, `
environment: development
production:
  ports:
    dashboard: 9502
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Ports.Dashboard != DefaultDashboardPort {
		t.Errorf("Ports.Dashboard = %d, want default %d", cfg.Ports.Dashboard, DefaultDashboardPort)
	}
}

func TestLoadFileExpandsVariables(t *testing.T) {
	path := writeConfig(t, `
paths:
  root: /srv/stack
  backup_dir: ${STACKCTL_ROOT}/backups
  credentials_file: ${STACKCTL_ROOT}/.env.production
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Paths.BackupDir != "/srv/stack/backups" {
		t.Errorf("BackupDir = %q, want /srv/stack/backups", cfg.Paths.BackupDir)
	}
	if cfg.Paths.CredentialsFile != "/srv/stack/.env.production" {
		t.Errorf("CredentialsFile = %q", cfg.Paths.CredentialsFile)
	}
}

func TestLoadMissingEnvVariable(t *testing.T) {
	t.Setenv("STACKCTL_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Error("Load() with unset STACKCTL_CONFIG = nil error, want error")
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad_environment", func(c *Config) { c.Environment = "staging-ish" }, "invalid environment"},
		{"missing_root", func(c *Config) { c.Paths.Root = "" }, "paths.root"},
		{"port_out_of_range", func(c *Config) { c.Ports.API = 70000 }, "out of range"},
		{"duplicate_ports", func(c *Config) { c.Ports.Cache = c.Ports.API }, "both claim"},
		{"bad_compression", func(c *Config) { c.Backup.Compression = "gzip" }, "compression"},
		{"empty_command", func(c *Config) { c.Backup.Command = nil }, "backup.command"},
		{"zero_keep", func(c *Config) { c.Backup.Keep = 0 }, "backup.keep"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", test.wantErr)
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Validate() = %q, want error containing %q", err, test.wantErr)
			}
		})
	}
}

func TestEnsurePaths(t *testing.T) {
	root := filepath.Join(t.TempDir(), "state")
	cfg := Default()
	cfg.Paths.Root = root
	cfg.Paths.BackupDir = filepath.Join(root, "backups")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths: %v", err)
	}
	for _, path := range []string{root, cfg.Paths.BackupDir} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("stat %s: %v", path, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", path)
		}
	}
}
