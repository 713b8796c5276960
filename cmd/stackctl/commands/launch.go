// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/supportstack/stackctl/cmd/stackctl/cli"
	"github.com/supportstack/stackctl/lib/clock"
	"github.com/supportstack/stackctl/lib/launcher"
	"github.com/supportstack/stackctl/lib/servicedef"
)

func launchCommand() *cli.Command {
	var configPath string
	var manifestPath string

	return &cli.Command{
		Name:    "launch",
		Summary: "Run the backend and dashboard as a coupled pair",
		Description: `Start the API backend detached, wait for it to accept TCP connections
on its declared port, then run the dashboard frontend attached to the
terminal. When the frontend exits, for any reason, the backend is torn
down with it (SIGTERM, bounded grace, then SIGKILL), so no orphaned
backend survives a crashed dashboard.

The process pair comes from the JSONC service manifest; Ctrl-C stops
both in order.`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("launch", pflag.ContinueOnError)
			configFlag(flags, &configPath)
			flags.StringVar(&manifestPath, "manifest", "", "service manifest (default from configuration)")
			return flags
		},
		Examples: []cli.Example{
			{Description: "Local development run", Command: "stackctl launch"},
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if manifestPath == "" {
				manifestPath = cfg.Paths.ServicesManifest
			}
			manifest, err := servicedef.ReadFile(manifestPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			run := &launcher.Launcher{
				Starter: &launcher.ExecStarter{Root: filepath.Dir(manifestPath)},
				Probe:   launcher.TCPProbe,
				Clock:   clock.Real(),
				Logger:  cli.NewCommandLogger().With("command", "launch"),
				Options: launcher.Options{
					ReadinessTimeout: cfg.Launcher.ReadinessTimeout,
					ProbeInterval:    250 * time.Millisecond,
					StopGrace:        cfg.Launcher.StopGrace,
				},
			}
			return run.Run(ctx, manifest)
		},
	}
}
