// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

// Package tunnel validates the reverse-tunnel ingress declaration: the
// static mapping from public hostnames to local loopback services. The
// tunnel daemon itself is out of scope; this package only catches the
// declaration mistakes that otherwise surface as a dead public
// hostname after deploy.
package tunnel

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config mirrors the tunnel daemon's configuration file. Fields the
// checker does not validate are preserved so a parse round-trip keeps
// them, but only Tunnel, CredentialsFile, and Ingress are inspected.
type Config struct {
	Tunnel          string `yaml:"tunnel"`
	CredentialsFile string `yaml:"credentials-file"`
	Ingress         []Rule `yaml:"ingress"`
}

// Rule maps one public hostname to a local service URL. The terminal
// rule has no hostname and catches everything unmatched.
type Rule struct {
	Hostname string `yaml:"hostname,omitempty"`
	Path     string `yaml:"path,omitempty"`
	Service  string `yaml:"service"`
}

// Parse unmarshals and structurally validates an ingress declaration.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing tunnel configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// ReadFile reads and parses a tunnel configuration from disk.
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// Validate checks the ingress rules. Every rule except the last needs
// a hostname and a loopback service URL; the last rule must be the
// hostname-less catch-all the tunnel daemon requires.
func (c *Config) Validate() error {
	if len(c.Ingress) == 0 {
		return fmt.Errorf("tunnel: no ingress rules declared")
	}

	last := len(c.Ingress) - 1
	for i, rule := range c.Ingress {
		if i == last {
			if rule.Hostname != "" {
				return fmt.Errorf("tunnel: last ingress rule must be the catch-all (no hostname), got hostname %q", rule.Hostname)
			}
			if rule.Service == "" {
				return fmt.Errorf("tunnel: catch-all rule has no service")
			}
			continue
		}
		if rule.Hostname == "" {
			return fmt.Errorf("tunnel: ingress rule %d has no hostname (only the last rule may omit it)", i)
		}
		if rule.Service == "" {
			return fmt.Errorf("tunnel: ingress rule for %s has no service", rule.Hostname)
		}
		if _, err := servicePort(rule.Service); err != nil {
			return fmt.Errorf("tunnel: ingress rule for %s: %w", rule.Hostname, err)
		}
	}
	return nil
}

// LocalPorts returns hostname to loopback port for every hostname
// rule. The catch-all and http_status rules do not appear.
func (c *Config) LocalPorts() map[string]int {
	ports := make(map[string]int)
	for _, rule := range c.Ingress {
		if rule.Hostname == "" {
			continue
		}
		port, err := servicePort(rule.Service)
		if err != nil || port == 0 {
			continue
		}
		ports[rule.Hostname] = port
	}
	return ports
}

// CrossCheck verifies that each named service port is exposed by some
// ingress rule. The expected map is service name to port, taken from
// the main port configuration.
func (c *Config) CrossCheck(expected map[string]int) error {
	exposed := make(map[int]bool)
	for _, port := range c.LocalPorts() {
		exposed[port] = true
	}
	var missing []string
	for name, port := range expected {
		if !exposed[port] {
			missing = append(missing, fmt.Sprintf("%s (port %d)", name, port))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("tunnel: no ingress rule exposes %s", strings.Join(missing, ", "))
	}
	return nil
}

// servicePort parses a rule's service value and returns the local
// port, or 0 for non-forwarding services (http_status responses).
// Forwarding services must point at the loopback interface: the tunnel
// host never proxies to other machines.
func servicePort(service string) (int, error) {
	if status, ok := strings.CutPrefix(service, "http_status:"); ok {
		code, err := strconv.Atoi(status)
		if err != nil || code < 100 || code > 599 {
			return 0, fmt.Errorf("invalid http_status %q", status)
		}
		return 0, nil
	}

	parsed, err := url.Parse(service)
	if err != nil {
		return 0, fmt.Errorf("invalid service URL %q: %w", service, err)
	}
	switch parsed.Scheme {
	case "http", "https":
	default:
		return 0, fmt.Errorf("service %q: scheme %q not supported (want http, https, or http_status)", service, parsed.Scheme)
	}

	host := parsed.Hostname()
	if !isLoopbackHost(host) {
		return 0, fmt.Errorf("service %q does not point at loopback", service)
	}

	portText := parsed.Port()
	if portText == "" {
		if parsed.Scheme == "https" {
			return 443, nil
		}
		return 80, nil
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("service %q: invalid port %q", service, portText)
	}
	return port, nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
