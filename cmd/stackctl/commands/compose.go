// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/supportstack/stackctl/cmd/stackctl/cli"
	"github.com/supportstack/stackctl/lib/compose"
	"github.com/supportstack/stackctl/lib/config"
)

func composeCommand() *cli.Command {
	return &cli.Command{
		Name:        "compose",
		Summary:     "Validate the container orchestration declaration",
		Subcommands: []*cli.Command{composeCheckCommand()},
	}
}

func composeCheckCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "check",
		Summary: "Check required services, policies, and published ports",
		Description: `Parse the orchestration file and verify the deployment requirements:
the app, db, and cache services exist, every service has a restart
policy and a memory limit, the stateful services declare healthchecks,
and the published host ports match the configured port map.`,
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
			file, err := composeReadAndCheck(cfg)
			if err != nil {
				return err
			}

			fmt.Printf("%s: %d service(s), all valid\n", cfg.Paths.ComposeFile, len(file.Services))
			return nil
		},
	}
}

// composeReadAndCheck parses the orchestration file and cross-checks
// its published ports against the configuration.
func composeReadAndCheck(cfg *config.Config) (*compose.File, error) {
	file, err := compose.ReadFile(cfg.Paths.ComposeFile)
	if err != nil {
		return nil, err
	}
	if err := file.CrossCheck(composeExpectedPorts(cfg)); err != nil {
		return nil, err
	}
	return file, nil
}

// composeExpectedPorts maps compose service names to configured host
// ports.
func composeExpectedPorts(cfg *config.Config) map[string]int {
	return map[string]int{
		compose.ServiceApp:   cfg.Ports.API,
		compose.ServiceDB:    cfg.Ports.Database,
		compose.ServiceCache: cfg.Ports.Cache,
	}
}
