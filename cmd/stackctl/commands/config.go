// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/supportstack/stackctl/cmd/stackctl/cli"
	"github.com/supportstack/stackctl/lib/config"
)

// configFlag registers the shared --config flag on a command flag set.
func configFlag(flags *pflag.FlagSet, path *string) {
	flags.StringVar(path, "config", "", "configuration file (defaults to $STACKCTL_CONFIG)")
}

// loadConfig loads and validates configuration from the --config flag
// value or, when empty, from STACKCTL_CONFIG.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func configCommand() *cli.Command {
	var configPath string
	var jsonOut bool

	show := &cli.Command{
		Name:    "show",
		Summary: "Print the effective configuration",
		Description: `Print the effective configuration after environment overrides and
path expansion, as YAML (or JSON with --json).`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("show", pflag.ContinueOnError)
			configFlag(flags, &configPath)
			flags.BoolVar(&jsonOut, "json", false, "output as JSON")
			return flags
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if jsonOut {
				return cli.WriteJSON(cfg)
			}
			encoder := yaml.NewEncoder(os.Stdout)
			encoder.SetIndent(2)
			defer encoder.Close()
			return encoder.Encode(cfg)
		},
	}

	validate := &cli.Command{
		Name:    "validate",
		Summary: "Validate the configuration file",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("validate", pflag.ContinueOnError)
			configFlag(flags, &configPath)
			return flags
		},
		Run: func(args []string) error {
			if _, err := loadConfig(configPath); err != nil {
				return err
			}
			fmt.Println("configuration valid")
			return nil
		},
	}

	return &cli.Command{
		Name:        "config",
		Summary:     "Inspect and validate configuration",
		Subcommands: []*cli.Command{show, validate},
	}
}
