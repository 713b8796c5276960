// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/supportstack/stackctl/cmd/stackctl/cli"
	"github.com/supportstack/stackctl/lib/config"
	"github.com/supportstack/stackctl/lib/ports"
)

func portsCommand() *cli.Command {
	var configPath string
	var jsonOut bool

	return &cli.Command{
		Name:    "ports",
		Summary: "Check that the stack's expected TCP ports are free",
		Description: `Check every expected service port against the OS listening-socket
table. For each conflict, report the owning process when resolvable
and suggest the first free port above the expected one. Nothing is
bound; the check only reads.

Exits 0 when all ports are free, 1 on any conflict.`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("ports", pflag.ContinueOnError)
			configFlag(flags, &configPath)
			flags.BoolVar(&jsonOut, "json", false, "output as JSON")
			return flags
		},
		Examples: []cli.Example{
			{Description: "Preflight before deploy", Command: "stackctl ports"},
			{Description: "Machine-readable report", Command: "stackctl ports --json"},
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			report, err := ports.Check(&ports.ProcProber{}, expectedPorts(cfg))
			if err != nil {
				return err
			}

			if jsonOut {
				if err := cli.WriteJSON(report); err != nil {
					return err
				}
			} else {
				printPortReport(report)
			}

			if !report.OK() {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func expectedPorts(cfg *config.Config) []ports.Expected {
	var expected []ports.Expected
	for _, named := range cfg.Ports.Map() {
		expected = append(expected, ports.Expected{Service: named.Name, Port: named.Port})
	}
	return expected
}

func printPortReport(report *ports.Report) {
	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	for _, status := range report.Services {
		switch {
		case !status.InUse:
			fmt.Fprintf(tw, "%s\t%d\tfree\n", status.Service, status.Port)
		case status.Owner != "":
			fmt.Fprintf(tw, "%s\t%d\tIN USE by %s%s\n", status.Service, status.Port, status.Owner, alternativeNote(status))
		default:
			fmt.Fprintf(tw, "%s\t%d\tIN USE%s\n", status.Service, status.Port, alternativeNote(status))
		}
	}
	tw.Flush()

	if report.Conflicts > 0 {
		fmt.Fprintf(os.Stdout, "\n%d port conflict(s).\n", report.Conflicts)
	} else {
		fmt.Fprintln(os.Stdout, "\nAll ports free.")
	}
}

func alternativeNote(status ports.ServiceStatus) string {
	if status.Alternative == 0 {
		return ""
	}
	return fmt.Sprintf(" (try %d)", status.Alternative)
}
