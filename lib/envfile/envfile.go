// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

// Package envfile reads and writes the production credentials file: a
// key=value file consumed by the service manager as process
// environment. The file must never enter source control and must stay
// owner-read-write only; Write enforces the mode and WriteCheck
// verifies it on existing files.
//
// Writes are atomic (temporary file in the same directory, fsync,
// rename) so a crash mid-write never leaves a truncated credentials
// file behind.
package envfile

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/supportstack/stackctl/lib/secret"
)

// Mode is the required permission bits for the credentials file:
// owner read/write only.
const Mode fs.FileMode = 0o600

// Entry is a single key=value line. Values may hold secret material;
// the file as a whole is treated as sensitive regardless.
type Entry struct {
	Key   string
	Value string
}

// Write writes entries to path atomically with mode 0600, preserving
// entry order. An optional header comment (without the leading #) is
// written at the top. The parent directory must exist.
func Write(path string, entries []Entry, header string) error {
	var content strings.Builder
	if header != "" {
		for _, line := range strings.Split(strings.TrimRight(header, "\n"), "\n") {
			fmt.Fprintf(&content, "# %s\n", line)
		}
	}
	for _, entry := range entries {
		if entry.Key == "" {
			return fmt.Errorf("envfile: empty key")
		}
		if strings.ContainsAny(entry.Key, "=\n") || strings.ContainsRune(entry.Value, '\n') {
			return fmt.Errorf("envfile: key %q or its value contains forbidden characters", entry.Key)
		}
		fmt.Fprintf(&content, "%s=%s\n", entry.Key, entry.Value)
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, Mode)
	if err != nil {
		return fmt.Errorf("creating temporary credentials file: %w", err)
	}

	if _, err := file.WriteString(content.String()); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary credentials file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary credentials file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary credentials file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming credentials file into place: %w", err)
	}

	// Make the rename durable across power loss.
	if parent, err := os.Open(filepath.Dir(path)); err == nil {
		parent.Sync()
		parent.Close()
	}

	return nil
}

// CheckPermissions returns an error when the file at path is readable
// by group or other.
func CheckPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		return fmt.Errorf("credentials file %s has mode %04o, want %04o", path, mode, Mode)
	}
	return nil
}

// Source reads credentials from a key=value file. Values are cached in
// secret buffers on first access; the file is loaded lazily.
//
// Lines starting with # and blank lines are ignored. Get is safe for
// concurrent use; Close must not race with Get.
type Source struct {
	// Path is the credentials file location.
	Path string

	once    sync.Once
	loadErr error
	values  map[string]*secret.Buffer
}

// Get returns the value for key, or nil when absent. The buffer is
// owned by the Source and released by Close.
func (s *Source) Get(key string) *secret.Buffer {
	s.once.Do(s.load)
	return s.values[key]
}

// Keys returns the sorted key names present in the file. Values are
// never exposed through this path.
func (s *Source) Keys() ([]string, error) {
	s.once.Do(s.load)
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Err returns the load error, if any. Get returns nil for every key
// when the file could not be read; callers that need to distinguish
// "missing key" from "unreadable file" check Err.
func (s *Source) Err() error {
	s.once.Do(s.load)
	return s.loadErr
}

// Environ renders the file as sorted KEY=value strings suitable for a
// child process environment. The returned strings are plain heap
// copies, since that is what the OS exec interface takes.
func (s *Source) Environ() ([]string, error) {
	keys, err := s.Keys()
	if err != nil {
		return nil, err
	}
	environ := make([]string, 0, len(keys))
	for _, key := range keys {
		environ = append(environ, key+"="+s.values[key].String())
	}
	return environ, nil
}

// Close releases all cached value buffers.
func (s *Source) Close() error {
	for key, buffer := range s.values {
		buffer.Close()
		delete(s.values, key)
	}
	return nil
}

func (s *Source) load() {
	s.values = make(map[string]*secret.Buffer)

	file, err := os.Open(s.Path)
	if err != nil {
		s.loadErr = err
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		index := strings.Index(line, "=")
		if index <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:index])
		value := strings.TrimSpace(line[index+1:])
		if value == "" {
			continue
		}
		buffer, err := secret.NewFromBytes([]byte(value))
		if err != nil {
			continue
		}
		s.values[key] = buffer
	}
	if err := scanner.Err(); err != nil {
		s.loadErr = fmt.Errorf("reading %s: %w", s.Path, err)
	}
}
