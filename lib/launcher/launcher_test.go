// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/supportstack/stackctl/lib/clock"
	"github.com/supportstack/stackctl/lib/servicedef"
	"github.com/supportstack/stackctl/lib/testutil"
)

// fakeHandle is a controllable Handle. Exit delivers the process's
// result; Signal records delivered signals and, unless ignoreTerm is
// set, exits the process on SIGTERM.
type fakeHandle struct {
	mu         sync.Mutex
	done       chan error
	exited     bool
	signals    []os.Signal
	ignoreTerm bool
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{done: make(chan error, 1)}
}

func (h *fakeHandle) Done() <-chan error { return h.done }

func (h *fakeHandle) Signal(sig os.Signal) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited {
		return os.ErrProcessDone
	}
	h.signals = append(h.signals, sig)
	if sig == syscall.SIGKILL || (sig == syscall.SIGTERM && !h.ignoreTerm) {
		h.exitLocked(nil)
	}
	return nil
}

func (h *fakeHandle) Exit(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exitLocked(err)
}

func (h *fakeHandle) exitLocked(err error) {
	if h.exited {
		return
	}
	h.exited = true
	h.done <- err
}

func (h *fakeHandle) received(sig os.Signal) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.signals {
		if s == sig {
			return true
		}
	}
	return false
}

// fakeStarter hands out pre-built handles in start order and records
// what was started.
type fakeStarter struct {
	mu       sync.Mutex
	handles  []*fakeHandle
	started  []servicedef.Process
	failures map[string]error
}

func (s *fakeStarter) Start(p servicedef.Process, foreground bool) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[p.Name]; err != nil {
		return nil, err
	}
	if len(s.started) >= len(s.handles) {
		return nil, errors.New("no handle prepared")
	}
	handle := s.handles[len(s.started)]
	s.started = append(s.started, p)
	return handle, nil
}

func testManifest() *servicedef.Manifest {
	return &servicedef.Manifest{
		Backend: servicedef.Process{
			Name:    "api",
			Command: []string{"uvicorn"},
			Port:    8001,
		},
		Frontend: servicedef.Process{
			Name:    "dashboard",
			Command: []string{"streamlit"},
			Port:    8502,
		},
	}
}

func newTestLauncher(starter Starter, probe ProbeFunc) *Launcher {
	return &Launcher{
		Starter: starter,
		Probe:   probe,
		Clock:   clock.Real(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Options: Options{
			ReadinessTimeout: 500 * time.Millisecond,
			ProbeInterval:    time.Millisecond,
			StopGrace:        100 * time.Millisecond,
		},
	}
}

func TestRunStartsPairAndTearsDownBackend(t *testing.T) {
	backend := newFakeHandle()
	frontend := newFakeHandle()
	starter := &fakeStarter{handles: []*fakeHandle{backend, frontend}}

	launcher := newTestLauncher(starter, func(port int) error {
		if port != 8001 {
			t.Errorf("probed port %d, want 8001", port)
		}
		return nil
	})

	result := make(chan error, 1)
	go func() { result <- launcher.Run(context.Background(), testManifest()) }()

	// Frontend exiting cleanly finishes the run and stops the backend.
	time.Sleep(10 * time.Millisecond)
	frontend.Exit(nil)

	if err := testutil.RequireReceive(t, result, time.Second); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !backend.received(syscall.SIGTERM) {
		t.Error("backend never received SIGTERM")
	}
	if got := len(starter.started); got != 2 {
		t.Fatalf("started %d processes, want 2", got)
	}
	if starter.started[0].Name != "api" || starter.started[1].Name != "dashboard" {
		t.Errorf("start order = %q then %q, want api then dashboard",
			starter.started[0].Name, starter.started[1].Name)
	}
}

func TestRunFrontendFailureTearsDownBackend(t *testing.T) {
	backend := newFakeHandle()
	frontend := newFakeHandle()
	starter := &fakeStarter{handles: []*fakeHandle{backend, frontend}}

	launcher := newTestLauncher(starter, func(int) error { return nil })

	result := make(chan error, 1)
	go func() { result <- launcher.Run(context.Background(), testManifest()) }()

	time.Sleep(10 * time.Millisecond)
	frontend.Exit(errors.New("exit status 1"))

	err := testutil.RequireReceive(t, result, time.Second)
	if err == nil {
		t.Fatal("Run = nil error, want frontend failure")
	}
	if !strings.Contains(err.Error(), "dashboard exited") {
		t.Errorf("Run error = %q, want mention of dashboard exit", err)
	}
	if !backend.received(syscall.SIGTERM) {
		t.Error("backend not torn down after frontend failure")
	}
}

func TestRunBackendDiesBeforeReady(t *testing.T) {
	backend := newFakeHandle()
	starter := &fakeStarter{handles: []*fakeHandle{backend}}

	launcher := newTestLauncher(starter, func(int) error {
		return errors.New("connection refused")
	})

	backend.Exit(errors.New("exit status 3"))

	err := launcher.Run(context.Background(), testManifest())
	if err == nil {
		t.Fatal("Run = nil error, want backend startup failure")
	}
	if !strings.Contains(err.Error(), "api") {
		t.Errorf("Run error = %q, want backend name", err)
	}
	if got := len(starter.started); got != 1 {
		t.Errorf("started %d processes, want 1 (frontend must not start)", got)
	}
}

func TestRunReadinessTimeout(t *testing.T) {
	backend := newFakeHandle()
	starter := &fakeStarter{handles: []*fakeHandle{backend}}

	launcher := newTestLauncher(starter, func(int) error {
		return errors.New("connection refused")
	})
	launcher.Options.ReadinessTimeout = 5 * time.Millisecond

	err := launcher.Run(context.Background(), testManifest())
	if err == nil {
		t.Fatal("Run = nil error, want readiness timeout")
	}
	if !strings.Contains(err.Error(), "not ready on port 8001") {
		t.Errorf("Run error = %q, want readiness timeout message", err)
	}
	if !backend.received(syscall.SIGTERM) {
		t.Error("backend not torn down after readiness timeout")
	}
}

func TestRunInterruptStopsBothInOrder(t *testing.T) {
	backend := newFakeHandle()
	frontend := newFakeHandle()
	starter := &fakeStarter{handles: []*fakeHandle{backend, frontend}}

	launcher := newTestLauncher(starter, func(int) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- launcher.Run(ctx, testManifest()) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := testutil.RequireReceive(t, result, time.Second); err != nil {
		t.Fatalf("Run after interrupt: %v", err)
	}
	if !frontend.received(syscall.SIGTERM) {
		t.Error("frontend never received SIGTERM")
	}
	if !backend.received(syscall.SIGTERM) {
		t.Error("backend never received SIGTERM")
	}
}

func TestRunEscalatesToKillAfterGrace(t *testing.T) {
	backend := newFakeHandle()
	backend.ignoreTerm = true
	frontend := newFakeHandle()
	starter := &fakeStarter{handles: []*fakeHandle{backend, frontend}}

	launcher := newTestLauncher(starter, func(int) error { return nil })
	launcher.Options.StopGrace = 5 * time.Millisecond

	result := make(chan error, 1)
	go func() { result <- launcher.Run(context.Background(), testManifest()) }()

	time.Sleep(10 * time.Millisecond)
	frontend.Exit(nil)

	if err := testutil.RequireReceive(t, result, time.Second); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !backend.received(syscall.SIGKILL) {
		t.Error("stubborn backend never received SIGKILL")
	}
}

func TestRunStartupDelayAfterReadiness(t *testing.T) {
	backend := newFakeHandle()
	frontend := newFakeHandle()
	starter := &fakeStarter{handles: []*fakeHandle{backend, frontend}}

	launcher := newTestLauncher(starter, func(int) error { return nil })

	manifest := testManifest()
	manifest.Backend.StartupDelay = servicedef.Duration(5 * time.Millisecond)

	start := time.Now()
	result := make(chan error, 1)
	go func() { result <- launcher.Run(context.Background(), manifest) }()

	time.Sleep(20 * time.Millisecond)
	frontend.Exit(nil)

	if err := testutil.RequireReceive(t, result, time.Second); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("run finished in %v, startup delay not honored", elapsed)
	}
}

func TestRunFrontendStartFailureTearsDownBackend(t *testing.T) {
	backend := newFakeHandle()
	starter := &fakeStarter{
		handles:  []*fakeHandle{backend},
		failures: map[string]error{"dashboard": errors.New("executable not found")},
	}

	launcher := newTestLauncher(starter, func(int) error { return nil })

	err := launcher.Run(context.Background(), testManifest())
	if err == nil {
		t.Fatal("Run = nil error, want frontend start failure")
	}
	if !strings.Contains(err.Error(), "starting dashboard") {
		t.Errorf("Run error = %q, want frontend start failure", err)
	}
	if !backend.received(syscall.SIGTERM) {
		t.Error("backend not torn down after frontend start failure")
	}
}
