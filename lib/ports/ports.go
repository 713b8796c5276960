// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

// Package ports checks whether the stack's expected TCP ports are free
// before anything tries to bind them, so a deployment fails fast with
// an actionable report instead of a later bind error deep inside a
// container start.
//
// Socket-table access sits behind the Prober interface; production
// code uses ProcProber (reads /proc/net/tcp and /proc/net/tcp6) and
// tests substitute a fake. The checker only ever reads; it must not
// bind anything, or it would change the very condition it reports on.
package ports

import (
	"fmt"
)

// Listener describes one bound listening socket. ProcessName and PID
// are zero when the owning process could not be resolved (typically a
// socket owned by another user).
type Listener struct {
	Port        int
	PID         int
	ProcessName string
}

// Owner formats the owning process for display, or "" when unknown.
func (l Listener) Owner() string {
	if l.PID == 0 {
		return ""
	}
	if l.ProcessName == "" {
		return fmt.Sprintf("pid %d", l.PID)
	}
	return fmt.Sprintf("%s (pid %d)", l.ProcessName, l.PID)
}

// Prober reads the operating system's listening-socket table.
// Implementations must not have side effects on the socket state.
type Prober interface {
	// Listening returns every TCP port with a listener bound, keyed
	// by port number. An error means the table itself could not be
	// read, a hard stop distinct from "port in use".
	Listening() (map[int]Listener, error)
}

// alternativeScanRange is how many ports above a conflicting port are
// tried when suggesting an alternative.
const alternativeScanRange = 20

// ServiceStatus is the check outcome for a single service.
type ServiceStatus struct {
	// Service is the logical name (database, cache, api, dashboard).
	Service string `json:"service" desc:"logical service name"`

	// Port is the expected TCP port.
	Port int `json:"port" desc:"expected TCP port"`

	// InUse reports whether something is already bound.
	InUse bool `json:"in_use" desc:"true when the port is already bound"`

	// Owner names the bound process when resolvable, e.g. "postgres (pid 812)".
	Owner string `json:"owner,omitempty" desc:"owning process, when resolvable"`

	// Alternative is the first free port above Port, or 0 when the
	// port is free or no alternative was found in range.
	Alternative int `json:"alternative,omitempty" desc:"suggested free port for conflicts"`
}

// Report is the outcome of checking the full port table.
type Report struct {
	Services  []ServiceStatus `json:"services" desc:"per-service check results"`
	Conflicts int             `json:"conflicts" desc:"number of ports already in use"`
}

// OK reports whether every checked port was free.
func (r *Report) OK() bool { return r.Conflicts == 0 }

// Expected pairs a service name with its expected port.
type Expected struct {
	Service string
	Port    int
}

// Check queries the prober once and evaluates every expected port
// against the snapshot. For each conflict it suggests the first free
// port in the scan range above the expected one, skipping ports that
// other services expect.
func Check(prober Prober, expected []Expected) (*Report, error) {
	listening, err := prober.Listening()
	if err != nil {
		return nil, fmt.Errorf("reading listening-socket table: %w", err)
	}

	reserved := make(map[int]bool, len(expected))
	for _, want := range expected {
		reserved[want.Port] = true
	}

	report := &Report{}
	for _, want := range expected {
		status := ServiceStatus{Service: want.Service, Port: want.Port}

		if listener, bound := listening[want.Port]; bound {
			status.InUse = true
			status.Owner = listener.Owner()
			status.Alternative = firstFree(want.Port, listening, reserved)
			report.Conflicts++
		}
		report.Services = append(report.Services, status)
	}
	return report, nil
}

// firstFree returns the first port in (port, port+alternativeScanRange]
// that is neither bound nor expected by another service, or 0.
func firstFree(port int, listening map[int]Listener, reserved map[int]bool) int {
	for candidate := port + 1; candidate <= port+alternativeScanRange && candidate <= 65535; candidate++ {
		if _, bound := listening[candidate]; bound {
			continue
		}
		if reserved[candidate] {
			continue
		}
		return candidate
	}
	return 0
}
