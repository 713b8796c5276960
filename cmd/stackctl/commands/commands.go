// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the stackctl command tree.
package commands

import (
	"fmt"

	"github.com/supportstack/stackctl/cmd/stackctl/cli"
	"github.com/supportstack/stackctl/lib/version"
)

// Root builds and returns the complete stackctl command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "stackctl",
		Description: `stackctl: deployment operations for the support stack.

Preflight checks, secrets bootstrap, a coupled process launcher for
local runs, database backups, and declaration validation for the
tunnel and container orchestration files.`,
		Subcommands: []*cli.Command{
			doctorCommand(),
			portsCommand(),
			secretsCommand(),
			launchCommand(),
			backupCommand(),
			tunnelCommand(),
			composeCommand(),
			configCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("stackctl %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Gate a deployment on the full preflight",
				Command:     "stackctl doctor",
			},
			{
				Description: "Check that all expected ports are free",
				Command:     "stackctl ports",
			},
			{
				Description: "Generate production credentials (prompts for the API key)",
				Command:     "stackctl secrets init",
			},
			{
				Description: "Run the backend and dashboard as a coupled pair",
				Command:     "stackctl launch",
			},
			{
				Description: "Dump the database and prune old archives",
				Command:     "stackctl backup run && stackctl backup prune",
			},
		},
	}
}
