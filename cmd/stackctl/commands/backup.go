// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/supportstack/stackctl/cmd/stackctl/cli"
	"github.com/supportstack/stackctl/lib/backup"
	"github.com/supportstack/stackctl/lib/clock"
	"github.com/supportstack/stackctl/lib/config"
	"github.com/supportstack/stackctl/lib/cron"
)

// archivePrefix names backup archives after the database.
const archivePrefix = "neural_saas_db"

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:    "backup",
		Summary: "Create, verify, and prune database backups",
		Subcommands: []*cli.Command{
			backupRunCommand(),
			backupVerifyCommand(),
			backupPruneCommand(),
			backupScheduleCommand(),
		},
	}
}

func newArchiver(cfg *config.Config) (*backup.Archiver, error) {
	compression, err := backup.ParseCompression(cfg.Backup.Compression)
	if err != nil {
		return nil, err
	}
	return &backup.Archiver{
		Dir:         cfg.Paths.BackupDir,
		Prefix:      archivePrefix,
		Command:     cfg.Backup.Command,
		Compression: compression,
		Runner:      backup.ExecRunner{},
		Clock:       clock.Real(),
		Logger:      cli.NewCommandLogger().With("command", "backup/run"),
	}, nil
}

func backupRunCommand() *cli.Command {
	var configPath string
	var jsonOut bool

	return &cli.Command{
		Name:    "run",
		Summary: "Dump the database to a new archive",
		Description: `Run the configured dump command and write a compressed archive plus a
BLAKE3 checksum sidecar to the backup directory. The archive appears
under its final name only after the dump succeeded and was synced.`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
			configFlag(flags, &configPath)
			flags.BoolVar(&jsonOut, "json", false, "output as JSON")
			return flags
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if err := cfg.EnsurePaths(); err != nil {
				return err
			}
			archiver, err := newArchiver(cfg)
			if err != nil {
				return err
			}

			result, err := archiver.Run(context.Background())
			if err != nil {
				return err
			}
			if jsonOut {
				return cli.WriteJSON(result)
			}
			fmt.Printf("%s (%d bytes)\n", result.Path, result.Size)
			return nil
		},
	}
}

func backupVerifyCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "verify",
		Summary: "Recompute archive checksums against their sidecars",
		Usage:   "stackctl backup verify [archive]",
		Description: `Verify one archive, or every archive in the backup directory when no
argument is given. Exits 1 when any archive fails verification.`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			configFlag(flags, &configPath)
			return flags
		},
		Run: func(args []string) error {
			if len(args) == 1 {
				if err := backup.Verify(args[0]); err != nil {
					return err
				}
				fmt.Printf("%s: ok\n", filepath.Base(args[0]))
				return nil
			}
			if len(args) > 1 {
				return fmt.Errorf("expected at most one archive argument")
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			verified, firstErr := backup.VerifyDir(cfg.Paths.BackupDir, archivePrefix)
			for _, archive := range verified {
				fmt.Printf("%s: ok\n", filepath.Base(archive))
			}
			if firstErr != nil {
				fmt.Printf("verification failed: %v\n", firstErr)
				return &cli.ExitError{Code: 1}
			}
			if len(verified) == 0 {
				fmt.Println("no archives found")
			}
			return nil
		},
	}
}

func backupPruneCommand() *cli.Command {
	var configPath string
	var keep int

	return &cli.Command{
		Name:    "prune",
		Summary: "Delete the oldest archives beyond the retention limit",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("prune", pflag.ContinueOnError)
			configFlag(flags, &configPath)
			flags.IntVar(&keep, "keep", 0, "archives to retain (default from configuration)")
			return flags
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if keep == 0 {
				keep = cfg.Backup.Keep
			}

			removed, err := backup.Prune(cfg.Paths.BackupDir, archivePrefix, keep)
			if err != nil {
				return err
			}
			for _, archive := range removed {
				fmt.Printf("removed %s\n", filepath.Base(archive))
			}
			fmt.Printf("%d archive(s) removed, %d retained.\n", len(removed), keep)
			return nil
		},
	}
}

func backupScheduleCommand() *cli.Command {
	var configPath string
	var count int

	return &cli.Command{
		Name:    "schedule",
		Summary: "Show upcoming backup times from the configured schedule",
		Description: `Parse the configured cron schedule and print the next run times. The
actual timer is the service manager's; this only answers "when does
the next backup fire?".`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("schedule", pflag.ContinueOnError)
			configFlag(flags, &configPath)
			flags.IntVar(&count, "count", 5, "number of upcoming times to show")
			return flags
		},
		Run: func(args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			schedule, err := cron.Parse(cfg.Backup.Schedule)
			if err != nil {
				return err
			}
			upcoming, err := schedule.Upcoming(time.Now().UTC(), count)
			if err != nil {
				return err
			}

			fmt.Printf("schedule %q (UTC):\n", cfg.Backup.Schedule)
			for _, t := range upcoming {
				fmt.Printf("  %s\n", t.Format(time.RFC3339))
			}
			return nil
		},
	}
}
