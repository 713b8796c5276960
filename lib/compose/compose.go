// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

// Package compose validates the container orchestration declaration
// before deploy. It never talks to a container runtime; it only
// catches the declaration drift that otherwise shows up as a service
// bound to the wrong host port or a database container with no
// restart policy after the next host reboot.
package compose

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Required service names. The two-tier stack always declares the API
// container plus its database and cache.
const (
	ServiceApp   = "app"
	ServiceDB    = "db"
	ServiceCache = "cache"
)

// File is the subset of the orchestration file the checker inspects.
type File struct {
	Services map[string]Service `yaml:"services"`
}

// Service is one container declaration.
type Service struct {
	Image       string       `yaml:"image,omitempty"`
	Build       any          `yaml:"build,omitempty"`
	Restart     string       `yaml:"restart,omitempty"`
	Ports       []string     `yaml:"ports,omitempty"`
	MemLimit    string       `yaml:"mem_limit,omitempty"`
	Deploy      *Deploy      `yaml:"deploy,omitempty"`
	Healthcheck *Healthcheck `yaml:"healthcheck,omitempty"`
}

// Deploy carries the resource limits in the newer declaration style.
type Deploy struct {
	Resources struct {
		Limits struct {
			Memory string `yaml:"memory,omitempty"`
		} `yaml:"limits,omitempty"`
	} `yaml:"resources,omitempty"`
}

// Healthcheck is present only to detect that one was declared.
type Healthcheck struct {
	Test any `yaml:"test"`
}

// Parse unmarshals and validates an orchestration file.
func Parse(data []byte) (*File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing compose file: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

// ReadFile reads and parses an orchestration file from disk.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	file, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// Validate enforces the deployment requirements: the three required
// services exist, every service restarts across host reboots, the
// stateful services declare healthchecks, and every service carries a
// memory limit (the host is small; one runaway container must not
// take the others down).
func (f *File) Validate() error {
	for _, name := range []string{ServiceApp, ServiceDB, ServiceCache} {
		if _, ok := f.Services[name]; !ok {
			return fmt.Errorf("compose: required service %q not declared", name)
		}
	}

	for name, service := range f.Services {
		if service.Image == "" && service.Build == nil {
			return fmt.Errorf("compose: service %q has neither image nor build", name)
		}
		switch service.Restart {
		case "always", "unless-stopped":
		default:
			return fmt.Errorf("compose: service %q restart policy is %q, want always or unless-stopped", name, service.Restart)
		}
		if !service.hasMemoryLimit() {
			return fmt.Errorf("compose: service %q has no memory limit", name)
		}
		for _, mapping := range service.Ports {
			if _, _, err := splitPortMapping(mapping); err != nil {
				return fmt.Errorf("compose: service %q: %w", name, err)
			}
		}
	}

	for _, name := range []string{ServiceDB, ServiceCache} {
		if f.Services[name].Healthcheck == nil {
			return fmt.Errorf("compose: service %q has no healthcheck", name)
		}
	}
	return nil
}

// PublishedPorts returns service name to host ports, for services
// that publish any.
func (f *File) PublishedPorts() map[string][]int {
	published := make(map[string][]int)
	for name, service := range f.Services {
		for _, mapping := range service.Ports {
			host, _, err := splitPortMapping(mapping)
			if err != nil {
				continue
			}
			published[name] = append(published[name], host)
		}
	}
	return published
}

// CrossCheck verifies that each expected service publishes its
// configured host port. The expected map uses compose service names.
func (f *File) CrossCheck(expected map[string]int) error {
	published := f.PublishedPorts()
	for name, want := range expected {
		ports, ok := published[name]
		if !ok {
			return fmt.Errorf("compose: service %q publishes no ports, want %d", name, want)
		}
		found := false
		for _, port := range ports {
			if port == want {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("compose: service %q publishes %v, want host port %d", name, ports, want)
		}
	}
	return nil
}

func (s Service) hasMemoryLimit() bool {
	if s.MemLimit != "" {
		return true
	}
	return s.Deploy != nil && s.Deploy.Resources.Limits.Memory != ""
}

// splitPortMapping parses "host:container", "ip:host:container", or a
// bare container port (which publishes an ephemeral host port and is
// rejected here: deployments need stable ports).
func splitPortMapping(mapping string) (host, container int, err error) {
	parts := strings.Split(mapping, ":")
	switch len(parts) {
	case 2:
	case 3:
		parts = parts[1:]
	default:
		return 0, 0, fmt.Errorf("port mapping %q must be host:container", mapping)
	}

	host, err = parsePort(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("port mapping %q: %w", mapping, err)
	}
	container, err = parsePort(strings.TrimSuffix(strings.TrimSuffix(parts[1], "/tcp"), "/udp"))
	if err != nil {
		return 0, 0, fmt.Errorf("port mapping %q: %w", mapping, err)
	}
	return host, container, nil
}

func parsePort(text string) (int, error) {
	port, err := strconv.Atoi(text)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", text)
	}
	return port, nil
}
