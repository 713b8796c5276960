// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

// Package launcher starts the API backend and dashboard frontend as a
// coupled pair for local runs: the backend starts detached and is
// probed for TCP readiness, the frontend runs attached to the
// terminal, and when the frontend exits for any reason the backend is
// torn down with it (SIGTERM, bounded grace, SIGKILL).
//
// This is deliberately not a supervisor: there is no restart on crash
// and no health-check loop. Production runs belong to the service
// manager; the launcher exists so a developer gets the pair up with
// one command and never leaves an orphaned backend behind.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/supportstack/stackctl/lib/clock"
	"github.com/supportstack/stackctl/lib/servicedef"
)

// Handle is a started process the launcher controls.
type Handle interface {
	// Done returns a channel that receives the process's exit result
	// exactly once.
	Done() <-chan error

	// Signal delivers sig to the process.
	Signal(sig os.Signal) error
}

// Starter launches a manifest process. The production implementation
// shells out via os/exec; tests substitute fakes so no real processes
// run.
type Starter interface {
	// Start launches p. foreground attaches the process to the
	// launcher's stdin; both roles inherit stdout/stderr so the
	// operator sees interleaved logs.
	Start(p servicedef.Process, foreground bool) (Handle, error)
}

// ProbeFunc makes a single readiness attempt against a local TCP port.
type ProbeFunc func(port int) error

// TCPProbe dials 127.0.0.1:port once with a short timeout.
func TCPProbe(port int) error {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), time.Second)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Options configures a launch.
type Options struct {
	// ReadinessTimeout bounds how long the backend may take to accept
	// TCP connections.
	ReadinessTimeout time.Duration

	// ProbeInterval is the pause between readiness attempts.
	ProbeInterval time.Duration

	// StopGrace is how long a SIGTERM'd process gets before SIGKILL.
	StopGrace time.Duration
}

// Launcher runs the process pair. All collaborators are injected.
type Launcher struct {
	Starter Starter
	Probe   ProbeFunc
	Clock   clock.Clock
	Logger  *slog.Logger
	Options Options
}

// Run executes the full launch lifecycle and blocks until both
// processes have exited. Cancelling ctx (operator interrupt) shuts the
// pair down in order and returns nil; a frontend that exits with an
// error, a backend that dies during startup, and a readiness timeout
// all return errors.
func (l *Launcher) Run(ctx context.Context, manifest *servicedef.Manifest) error {
	backend, err := l.Starter.Start(manifest.Backend, false)
	if err != nil {
		return fmt.Errorf("starting %s: %w", manifest.Backend.Name, err)
	}
	l.Logger.Info("backend started", "name", manifest.Backend.Name, "port", manifest.Backend.Port)

	if err := l.awaitReady(ctx, manifest.Backend, backend); err != nil {
		l.terminate(manifest.Backend.Name, backend)
		return err
	}
	l.Logger.Info("backend ready", "name", manifest.Backend.Name, "port", manifest.Backend.Port)

	if delay := time.Duration(manifest.Frontend.StartupDelay); delay > 0 {
		l.Clock.Sleep(delay)
	}

	frontend, err := l.Starter.Start(manifest.Frontend, true)
	if err != nil {
		l.terminate(manifest.Backend.Name, backend)
		return fmt.Errorf("starting %s: %w", manifest.Frontend.Name, err)
	}
	l.Logger.Info("frontend started", "name", manifest.Frontend.Name, "port", manifest.Frontend.Port)

	var frontendErr error
	interrupted := false
	select {
	case frontendErr = <-frontend.Done():
	case <-ctx.Done():
		interrupted = true
		l.Logger.Info("interrupt received, stopping frontend", "name", manifest.Frontend.Name)
		l.terminate(manifest.Frontend.Name, frontend)
	}

	// Frontend exit, however it happened, tears the backend down.
	l.terminate(manifest.Backend.Name, backend)

	if interrupted {
		return nil
	}
	if frontendErr != nil {
		return fmt.Errorf("%s exited: %w", manifest.Frontend.Name, frontendErr)
	}
	return nil
}

// awaitReady polls the backend port until it accepts a connection. A
// backend that exits first, a cancelled context, and a timeout are all
// failures.
func (l *Launcher) awaitReady(ctx context.Context, p servicedef.Process, backend Handle) error {
	deadline := l.Clock.Now().Add(l.Options.ReadinessTimeout)

	for {
		if err := l.Probe(p.Port); err == nil {
			if delay := time.Duration(p.StartupDelay); delay > 0 {
				l.Clock.Sleep(delay)
			}
			return nil
		}

		select {
		case err := <-backend.Done():
			if err == nil {
				err = errors.New("exited before becoming ready")
			}
			return fmt.Errorf("%s: %w", p.Name, err)
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if l.Clock.Now().After(deadline) {
			return fmt.Errorf("%s: not ready on port %d after %v", p.Name, p.Port, l.Options.ReadinessTimeout)
		}
		l.Clock.Sleep(l.Options.ProbeInterval)
	}
}

// terminate delivers SIGTERM, waits up to StopGrace, then SIGKILLs.
// Safe to call on an already-exited process.
func (l *Launcher) terminate(name string, handle Handle) {
	if err := handle.Signal(syscall.SIGTERM); err != nil {
		// Already gone.
		select {
		case <-handle.Done():
		default:
		}
		return
	}

	select {
	case <-handle.Done():
		l.Logger.Info("process stopped", "name", name)
	case <-l.Clock.After(l.Options.StopGrace):
		l.Logger.Warn("process ignored SIGTERM, killing", "name", name)
		handle.Signal(syscall.SIGKILL)
		<-handle.Done()
	}
}
