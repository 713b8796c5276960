// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/supportstack/stackctl/lib/envfile"
	"github.com/supportstack/stackctl/lib/servicedef"
)

// ExecStarter launches manifest processes via os/exec.
type ExecStarter struct {
	// Root anchors relative Dir and EnvFile paths from the manifest.
	Root string
}

// Start resolves the process's command via PATH and launches it. The
// env_file, when declared, is merged on top of the launcher's own
// environment. Background processes get their own process group so a
// terminal Ctrl-C reaches only the foreground pair member.
func (s *ExecStarter) Start(p servicedef.Process, foreground bool) (Handle, error) {
	binary, err := exec.LookPath(p.Command[0])
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", p.Command[0], err)
	}

	cmd := exec.Command(binary, p.Command[1:]...)
	cmd.Dir = s.resolve(p.Dir)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if foreground {
		cmd.Stdin = os.Stdin
	} else {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	cmd.Env = os.Environ()
	if p.EnvFile != "" {
		source := &envfile.Source{Path: s.resolve(p.EnvFile)}
		extra, err := source.Environ()
		if err != nil {
			return nil, fmt.Errorf("loading env file for %s: %w", p.Name, err)
		}
		cmd.Env = append(cmd.Env, extra...)
		source.Close()
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", p.Name, err)
	}

	handle := &execHandle{cmd: cmd, done: make(chan error, 1)}
	go func() { handle.done <- cmd.Wait() }()
	return handle, nil
}

func (s *ExecStarter) resolve(path string) string {
	if path == "" || path[0] == '/' || s.Root == "" {
		return path
	}
	return s.Root + "/" + path
}

type execHandle struct {
	cmd  *exec.Cmd
	done chan error
}

func (h *execHandle) Done() <-chan error { return h.done }

func (h *execHandle) Signal(sig os.Signal) error {
	return h.cmd.Process.Signal(sig)
}
