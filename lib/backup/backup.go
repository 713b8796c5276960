// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

// Package backup produces, verifies, and prunes database backup
// archives. An archive is the output of the configured dump command,
// optionally compressed, stored as
// <prefix>-<UTC timestamp>.sql[.zst|.lz4] with a BLAKE3 checksum
// sidecar (<archive>.b3sum) written alongside.
//
// The dump command runs through the Runner interface so tests never
// need a live database or container runtime.
package backup

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/supportstack/stackctl/lib/clock"
)

// SidecarExtension is appended to the archive filename for the
// checksum sidecar.
const SidecarExtension = ".b3sum"

// timestampLayout produces names that sort chronologically.
const timestampLayout = "20060102T150405Z"

// Runner executes the dump command, writing the dump to stdout.
type Runner interface {
	Run(ctx context.Context, argv []string, stdout io.Writer) error
}

// ExecRunner runs the dump command via os/exec. The command's stderr
// is passed through so pg_dump diagnostics reach the operator.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, argv []string, stdout io.Writer) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty dump command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running %s: %w", argv[0], err)
	}
	return nil
}

// Archiver creates and manages backup archives in one directory.
type Archiver struct {
	// Dir is the backup directory. It must exist.
	Dir string

	// Prefix names the archives, typically the database name.
	Prefix string

	// Command is the dump argv.
	Command []string

	// Compression selects the archive compression.
	Compression Compression

	Runner Runner
	Clock  clock.Clock
	Logger *slog.Logger
}

// Result describes a completed backup.
type Result struct {
	// Path is the archive location.
	Path string `json:"path"`

	// SidecarPath is the checksum sidecar location.
	SidecarPath string `json:"sidecar_path"`

	// Size is the archive size in bytes (after compression).
	Size int64 `json:"size"`

	// Checksum is the hex BLAKE3 digest of the archive bytes.
	Checksum string `json:"checksum"`
}

// Run executes the dump command and writes the archive plus its
// checksum sidecar. The archive is written to a temporary name and
// renamed into place only after the dump succeeds and the file is
// synced, so a failed dump never leaves a plausible-looking archive.
func (a *Archiver) Run(ctx context.Context) (*Result, error) {
	stamp := a.Clock.Now().UTC().Format(timestampLayout)
	name := fmt.Sprintf("%s-%s.sql%s", a.Prefix, stamp, a.Compression.Extension())
	path := filepath.Join(a.Dir, name)
	temporaryPath := path + ".partial"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}

	fail := func(err error) (*Result, error) {
		file.Close()
		os.Remove(temporaryPath)
		return nil, err
	}

	// The checksum covers the bytes as stored, so verification never
	// needs to decompress.
	hasher := blake3.New()
	stored := io.MultiWriter(file, hasher)
	compressor, err := newCompressingWriter(stored, a.Compression)
	if err != nil {
		return fail(err)
	}

	a.Logger.Info("running dump", "command", strings.Join(a.Command, " "), "archive", filepath.Base(path))
	if err := a.Runner.Run(ctx, a.Command, compressor); err != nil {
		compressor.Close()
		return fail(fmt.Errorf("dump failed: %w", err))
	}
	if err := compressor.Close(); err != nil {
		return fail(fmt.Errorf("finalizing compression: %w", err))
	}
	if err := file.Sync(); err != nil {
		return fail(fmt.Errorf("syncing archive: %w", err))
	}
	info, err := file.Stat()
	if err != nil {
		return fail(fmt.Errorf("stat archive: %w", err))
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return nil, fmt.Errorf("renaming archive into place: %w", err)
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))
	sidecarPath := path + SidecarExtension
	sidecar := fmt.Sprintf("%s  %s\n", checksum, filepath.Base(path))
	if err := os.WriteFile(sidecarPath, []byte(sidecar), 0o600); err != nil {
		return nil, fmt.Errorf("writing checksum sidecar: %w", err)
	}

	a.Logger.Info("backup complete", "archive", filepath.Base(path), "bytes", info.Size(), "checksum", checksum)
	return &Result{
		Path:        path,
		SidecarPath: sidecarPath,
		Size:        info.Size(),
		Checksum:    checksum,
	}, nil
}

// Verify recomputes the archive's BLAKE3 digest and compares it with
// the sidecar. A missing sidecar, a digest mismatch, and an unreadable
// archive are all errors.
func Verify(archivePath string) error {
	want, err := readSidecar(archivePath + SidecarExtension)
	if err != nil {
		return err
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}
	got := hex.EncodeToString(hasher.Sum(nil))
	if got != want {
		return fmt.Errorf("%s: checksum mismatch: archive %s, sidecar %s", filepath.Base(archivePath), got, want)
	}
	return nil
}

// VerifyDir verifies every archive in the directory. It returns the
// list of verified archive paths and the first error encountered, but
// keeps going so one corrupt archive does not mask the state of the
// rest.
func VerifyDir(dir, prefix string) (verified []string, firstErr error) {
	archives, err := List(dir, prefix)
	if err != nil {
		return nil, err
	}
	for _, archive := range archives {
		if err := Verify(archive); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		verified = append(verified, archive)
	}
	return verified, firstErr
}

// List returns the archive paths under dir matching the prefix,
// sorted oldest first. The timestamped naming makes lexical order
// chronological.
func List(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}
	var archives []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix+"-") {
			continue
		}
		if strings.HasSuffix(name, SidecarExtension) || strings.HasSuffix(name, ".partial") {
			continue
		}
		archives = append(archives, filepath.Join(dir, name))
	}
	sort.Strings(archives)
	return archives, nil
}

// Prune deletes the oldest archives so that at most keep remain. The
// checksum sidecars are deleted with their archives. Returns the
// removed archive paths, oldest first.
func Prune(dir, prefix string, keep int) ([]string, error) {
	if keep < 1 {
		return nil, fmt.Errorf("retention must keep at least 1 archive, got %d", keep)
	}
	archives, err := List(dir, prefix)
	if err != nil {
		return nil, err
	}
	if len(archives) <= keep {
		return nil, nil
	}

	doomed := archives[:len(archives)-keep]
	for _, archive := range doomed {
		if err := os.Remove(archive); err != nil {
			return nil, fmt.Errorf("removing %s: %w", archive, err)
		}
		if err := os.Remove(archive + SidecarExtension); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing sidecar for %s: %w", archive, err)
		}
	}
	return doomed, nil
}

// Open returns a reader over the decompressed contents of an archive,
// choosing the decompressor from the filename.
func Open(archivePath string) (io.ReadCloser, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	reader, err := newDecompressingReader(file, compressionForPath(archivePath))
	if err != nil {
		file.Close()
		return nil, err
	}
	return &archiveReader{reader: reader, file: file}, nil
}

type archiveReader struct {
	reader io.ReadCloser
	file   *os.File
}

func (r *archiveReader) Read(p []byte) (int, error) { return r.reader.Read(p) }

func (r *archiveReader) Close() error {
	r.reader.Close()
	return r.file.Close()
}

// readSidecar parses the "<hex>  <name>" sidecar format and returns
// the recorded digest.
func readSidecar(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening checksum sidecar: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return "", fmt.Errorf("%s: empty checksum sidecar", path)
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 1 || len(fields[0]) != 64 {
		return "", fmt.Errorf("%s: malformed checksum sidecar", path)
	}
	if _, err := hex.DecodeString(fields[0]); err != nil {
		return "", fmt.Errorf("%s: malformed checksum sidecar: %w", path, err)
	}
	return fields[0], nil
}
