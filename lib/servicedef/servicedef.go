// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

// Package servicedef parses and validates the launcher's service
// manifest. The manifest declares the two long-lived processes the
// local launcher runs (the API backend and the dashboard frontend)
// as data rather than hardcoded paths, so tests and unusual layouts
// never require editing the launcher itself.
//
// Manifests are authored as JSONC (JSON extended with // comments and
// trailing commas), matching how operators annotate deployment files.
package servicedef

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/jsonc"
)

// Manifest declares the launcher's process pair.
type Manifest struct {
	// Backend is started first, detached, and probed for readiness.
	Backend Process `json:"backend"`

	// Frontend runs attached to the terminal; its exit tears the
	// backend down.
	Frontend Process `json:"frontend"`
}

// Process declares one launchable process.
type Process struct {
	// Name is used in log lines and error messages.
	Name string `json:"name"`

	// Command is the argv to execute. Command[0] is resolved via PATH.
	Command []string `json:"command"`

	// Dir is the working directory. Empty means the launcher's.
	Dir string `json:"dir,omitempty"`

	// EnvFile is an optional key=value file merged into the process
	// environment (the generated credentials file, typically).
	EnvFile string `json:"env_file,omitempty"`

	// Port is the TCP port the process serves on. For the backend it
	// drives the readiness probe.
	Port int `json:"port"`

	// StartupDelay is an extra grace period after the readiness
	// probe succeeds (or, for processes without a port, before the
	// next step proceeds). Most manifests leave it zero.
	StartupDelay Duration `json:"startup_delay,omitempty"`
}

// Duration wraps time.Duration with JSON string parsing ("5s", "1m").
type Duration time.Duration

// UnmarshalJSON accepts a Go duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\": %w", err)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration %q is negative", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON renders the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Parse strips JSONC comments and trailing commas, then unmarshals
// and validates the manifest.
func Parse(data []byte) (*Manifest, error) {
	stripped := jsonc.ToJSON(data)

	var manifest Manifest
	if err := json.Unmarshal(stripped, &manifest); err != nil {
		return nil, fmt.Errorf("parsing service manifest: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// ReadFile reads and parses a manifest from disk.
func ReadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	manifest, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return manifest, nil
}

// Validate checks the manifest's structural requirements.
func (m *Manifest) Validate() error {
	if err := m.Backend.validate("backend"); err != nil {
		return err
	}
	if err := m.Frontend.validate("frontend"); err != nil {
		return err
	}
	if m.Backend.Port == 0 {
		return fmt.Errorf("backend: port is required (it drives the readiness probe)")
	}
	if m.Backend.Port == m.Frontend.Port && m.Frontend.Port != 0 {
		return fmt.Errorf("backend and frontend both declare port %d", m.Backend.Port)
	}
	return nil
}

func (p *Process) validate(role string) error {
	if p.Name == "" {
		return fmt.Errorf("%s: name is required", role)
	}
	if len(p.Command) == 0 {
		return fmt.Errorf("%s %q: command is required", role, p.Name)
	}
	if p.Port < 0 || p.Port > 65535 {
		return fmt.Errorf("%s %q: port %d out of range", role, p.Name, p.Port)
	}
	return nil
}
