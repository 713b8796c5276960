// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"context"
	"errors"
	"syscall"
	"testing"
)

func TestExecuteFixesAppliesFixes(t *testing.T) {
	applied := false
	results := []Result{
		Pass("config", "configuration valid"),
		FailWithFix("backup-dir", "missing", "create backup directory", func(ctx context.Context) error {
			applied = true
			return nil
		}),
	}

	outcome := ExecuteFixes(context.Background(), results, false)

	if !applied {
		t.Error("fix was not applied")
	}
	if outcome.FixedCount != 1 {
		t.Errorf("FixedCount = %d, want 1", outcome.FixedCount)
	}
	if results[1].Status != StatusFixed {
		t.Errorf("Status = %q, want fixed", results[1].Status)
	}
	if results[0].Status != StatusPass {
		t.Errorf("passing check mutated to %q", results[0].Status)
	}
}

func TestExecuteFixesDryRun(t *testing.T) {
	applied := false
	results := []Result{
		FailWithFix("backup-dir", "missing", "create backup directory", func(ctx context.Context) error {
			applied = true
			return nil
		}),
	}

	outcome := ExecuteFixes(context.Background(), results, true)

	if applied {
		t.Error("dry run applied a fix")
	}
	if outcome.FixedCount != 0 {
		t.Errorf("FixedCount = %d, want 0", outcome.FixedCount)
	}
	if results[0].Status != StatusFail {
		t.Errorf("Status = %q, want fail", results[0].Status)
	}
}

func TestExecuteFixesFailedFixKeepsFailure(t *testing.T) {
	results := []Result{
		FailWithFix("credentials", "wrong mode", "chmod 600", func(ctx context.Context) error {
			return errors.New("disk on fire")
		}),
	}

	outcome := ExecuteFixes(context.Background(), results, false)

	if results[0].Status != StatusFail {
		t.Errorf("Status = %q, want fail", results[0].Status)
	}
	if outcome.FixedCount != 0 {
		t.Errorf("FixedCount = %d, want 0", outcome.FixedCount)
	}
}

func TestExecuteFixesPermissionDenied(t *testing.T) {
	results := []Result{
		FailWithFix("credentials", "wrong mode", "chmod 600", func(ctx context.Context) error {
			return syscall.EACCES
		}),
	}

	outcome := ExecuteFixes(context.Background(), results, false)

	if !outcome.PermissionDenied {
		t.Error("PermissionDenied not set for EACCES")
	}
}

func TestExecuteFixesSkipsElevatedWithoutRoot(t *testing.T) {
	if IsRoot() {
		t.Skip("running as root, elevated fixes would execute")
	}

	applied := false
	results := []Result{
		FailElevated("runtime", "not installed", "install container runtime", func(ctx context.Context) error {
			applied = true
			return nil
		}),
	}

	outcome := ExecuteFixes(context.Background(), results, false)

	if applied {
		t.Error("elevated fix applied without root")
	}
	if outcome.ElevatedSkipped != 1 {
		t.Errorf("ElevatedSkipped = %d, want 1", outcome.ElevatedSkipped)
	}
}

func TestBuildJSON(t *testing.T) {
	results := []Result{
		Pass("config", "ok"),
		Warn("systemd", "not present"),
	}
	output := BuildJSON(results, false, Outcome{})
	if !output.OK {
		t.Error("OK = false with no failures (warnings must not fail)")
	}

	results = append(results, Fail("ports", "8001 in use"))
	output = BuildJSON(results, false, Outcome{})
	if output.OK {
		t.Error("OK = true with a failed check")
	}
	if len(output.Checks) != 3 {
		t.Errorf("len(Checks) = %d, want 3", len(output.Checks))
	}
}

func TestHasFix(t *testing.T) {
	withFix := FailWithFix("a", "m", "hint", func(ctx context.Context) error { return nil })
	if !withFix.HasFix() {
		t.Error("HasFix = false for fixable result")
	}
	without := Fail("a", "m")
	if without.HasFix() {
		t.Error("HasFix = true for plain failure")
	}
}
