// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/supportstack/stackctl/cmd/stackctl/cli"
	"github.com/supportstack/stackctl/lib/config"
	"github.com/supportstack/stackctl/lib/tunnel"
)

func tunnelCommand() *cli.Command {
	return &cli.Command{
		Name:        "tunnel",
		Summary:     "Validate the tunnel ingress declaration",
		Subcommands: []*cli.Command{tunnelCheckCommand()},
	}
}

func tunnelCheckCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "check",
		Summary: "Check the ingress rules against the configured ports",
		Description: `Parse the tunnel ingress declaration, verify its structure (loopback
service URLs, terminal catch-all rule), and cross-check that the API
and dashboard ports from the main configuration are exposed.`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("check", pflag.ContinueOnError)
			configFlag(flags, &configPath)
			return flags
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			declaration, err := tunnel.ReadFile(cfg.Paths.TunnelConfig)
			if err != nil {
				return err
			}
			if err := declaration.CrossCheck(tunnelExpectedPorts(cfg)); err != nil {
				return err
			}

			fmt.Printf("%s: %d ingress rule(s), all valid\n", cfg.Paths.TunnelConfig, len(declaration.Ingress))
			for hostname, port := range declaration.LocalPorts() {
				fmt.Printf("  %s -> 127.0.0.1:%d\n", hostname, port)
			}
			return nil
		},
	}
}

// tunnelExpectedPorts lists the services that must be publicly
// reachable through the tunnel. The database and cache stay private.
func tunnelExpectedPorts(cfg *config.Config) map[string]int {
	return map[string]int{
		"api":       cfg.Ports.API,
		"dashboard": cfg.Ports.Dashboard,
	}
}
