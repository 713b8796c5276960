// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/pflag"

	"github.com/supportstack/stackctl/cmd/stackctl/cli"
	"github.com/supportstack/stackctl/cmd/stackctl/cli/doctor"
	"github.com/supportstack/stackctl/lib/config"
	"github.com/supportstack/stackctl/lib/envfile"
	"github.com/supportstack/stackctl/lib/ports"
	"github.com/supportstack/stackctl/lib/tunnel"
)

func doctorCommand() *cli.Command {
	var configPath string
	var jsonOut, fixMode, dryRun bool

	return &cli.Command{
		Name:    "doctor",
		Summary: "Run the full deployment preflight",
		Description: `Run every preflight check in order: configuration, expected ports,
credentials file, backup directory, required binaries, tunnel and
orchestration declarations, and the service manager. Exits 1 when any
check fails, so deployment scripts can gate on it.

Some failures are automatically repairable; run with --fix to apply
the repairs, or --fix --dry-run to see what would be done.`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("doctor", pflag.ContinueOnError)
			configFlag(flags, &configPath)
			flags.BoolVar(&jsonOut, "json", false, "output as JSON")
			flags.BoolVar(&fixMode, "fix", false, "apply automatic repairs")
			flags.BoolVar(&dryRun, "dry-run", false, "with --fix, only show what would be repaired")
			return flags
		},
		Examples: []cli.Example{
			{Description: "Gate a deployment", Command: "stackctl doctor"},
			{Description: "Repair what can be repaired", Command: "stackctl doctor --fix"},
		},
		Run: func(args []string) error {
			ctx := context.Background()
			results := runChecks(configPath)

			var outcome doctor.Outcome
			if fixMode {
				outcome = doctor.ExecuteFixes(ctx, results, dryRun)
				// Fixed checks may unblock others (a created backup
				// directory, a repaired mode), so evaluate once more
				// and keep the fixed statuses.
				if outcome.FixedCount > 0 {
					results = mergeFixed(runChecks(configPath), results)
				}
			}

			if jsonOut {
				output := doctor.BuildJSON(results, dryRun, outcome)
				if err := cli.WriteJSON(output); err != nil {
					return err
				}
				if !output.OK {
					return &cli.ExitError{Code: 1}
				}
				return nil
			}
			return doctor.PrintChecklist(results, fixMode, dryRun, outcome)
		},
	}
}

// mergeFixed re-evaluated results, marking checks that failed before
// the fix pass and pass now as fixed.
func mergeFixed(fresh, previous []doctor.Result) []doctor.Result {
	wasFailing := make(map[string]bool)
	for _, result := range previous {
		if result.Status == doctor.StatusFail || result.Status == doctor.StatusFixed {
			wasFailing[result.Name] = true
		}
	}
	for i := range fresh {
		if fresh[i].Status == doctor.StatusPass && wasFailing[fresh[i].Name] {
			fresh[i].Status = doctor.StatusFixed
		}
	}
	return fresh
}

// runChecks executes the full preflight and returns one result per
// check. A configuration failure short-circuits: every dependent check
// is skipped rather than reported as its own confusing failure.
func runChecks(configPath string) []doctor.Result {
	var results []doctor.Result

	cfg, err := loadConfig(configPath)
	if err != nil {
		results = append(results, doctor.Fail("config", err.Error()))
		for _, name := range []string{"ports", "credentials", "backup-dir", "runtime", "tunnel-binary", "tunnel-config", "compose-config", "service-manager"} {
			results = append(results, doctor.Skip(name, "configuration not loaded"))
		}
		return results
	}
	results = append(results, doctor.Pass("config", fmt.Sprintf("%s environment", cfg.Environment)))

	results = append(results, checkPorts(cfg))
	results = append(results, checkCredentials(cfg))
	results = append(results, checkBackupDir(cfg))
	results = append(results, checkBinary("runtime", "docker", "container runtime"))
	results = append(results, checkBinary("tunnel-binary", "cloudflared", "tunnel daemon"))
	results = append(results, checkTunnelConfig(cfg))
	results = append(results, checkComposeConfig(cfg))

	if cfg.HasSystemd() {
		results = append(results, doctor.Pass("service-manager", "systemd present"))
	} else {
		results = append(results, doctor.Warn("service-manager", "systemd not detected; timers and unit installs unavailable"))
	}

	return results
}

func checkPorts(cfg *config.Config) doctor.Result {
	report, err := ports.Check(&ports.ProcProber{}, expectedPorts(cfg))
	if err != nil {
		return doctor.Fail("ports", err.Error())
	}
	if report.OK() {
		return doctor.Pass("ports", "all expected ports free")
	}

	conflict := ""
	for _, status := range report.Services {
		if status.InUse {
			conflict = fmt.Sprintf("%s port %d in use", status.Service, status.Port)
			if status.Owner != "" {
				conflict += " by " + status.Owner
			}
			break
		}
	}
	if report.Conflicts > 1 {
		conflict += fmt.Sprintf(" (and %d more)", report.Conflicts-1)
	}
	return doctor.Fail("ports", conflict)
}

func checkCredentials(cfg *config.Config) doctor.Result {
	path := cfg.Paths.CredentialsFile
	info, err := os.Stat(path)
	if err != nil {
		return doctor.Fail("credentials", fmt.Sprintf("%s missing; run 'stackctl secrets init'", path))
	}
	if err := envfile.CheckPermissions(path); err != nil {
		mode := info.Mode().Perm()
		return doctor.FailWithFix("credentials",
			fmt.Sprintf("%s has mode %04o, want %04o", path, mode, envfile.Mode),
			fmt.Sprintf("chmod %04o %s", envfile.Mode, path),
			func(ctx context.Context) error {
				return os.Chmod(path, envfile.Mode)
			})
	}
	return doctor.Pass("credentials", fmt.Sprintf("%s present, mode %04o", path, envfile.Mode))
}

func checkBackupDir(cfg *config.Config) doctor.Result {
	path := cfg.Paths.BackupDir
	info, err := os.Stat(path)
	if err != nil {
		return doctor.FailWithFix("backup-dir",
			fmt.Sprintf("%s does not exist", path),
			"mkdir -p "+path,
			func(ctx context.Context) error {
				return os.MkdirAll(path, 0o755)
			})
	}
	if !info.IsDir() {
		return doctor.Fail("backup-dir", fmt.Sprintf("%s is not a directory", path))
	}
	return doctor.Pass("backup-dir", path)
}

func checkBinary(name, binary, description string) doctor.Result {
	path, err := exec.LookPath(binary)
	if err != nil {
		return doctor.Fail(name, fmt.Sprintf("%s (%s) not on PATH", binary, description))
	}
	return doctor.Pass(name, path)
}

func checkTunnelConfig(cfg *config.Config) doctor.Result {
	declaration, err := tunnel.ReadFile(cfg.Paths.TunnelConfig)
	if err != nil {
		return doctor.Fail("tunnel-config", err.Error())
	}
	if err := declaration.CrossCheck(tunnelExpectedPorts(cfg)); err != nil {
		return doctor.Fail("tunnel-config", err.Error())
	}
	return doctor.Pass("tunnel-config", fmt.Sprintf("%d ingress rule(s)", len(declaration.Ingress)))
}

func checkComposeConfig(cfg *config.Config) doctor.Result {
	file, err := composeReadAndCheck(cfg)
	if err != nil {
		return doctor.Fail("compose-config", err.Error())
	}
	return doctor.Pass("compose-config", fmt.Sprintf("%d service(s)", len(file.Services)))
}
