// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"golang.org/x/term"
)

// ReadFromPath reads a secret from a file path, or from stdin when path
// is "-". Leading and trailing whitespace is trimmed. Returns an error
// if the source is empty after trimming. The returned buffer must be
// closed by the caller.
func ReadFromPath(path string) (*Buffer, error) {
	var data []byte

	if path == "-" {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("reading stdin: %w", err)
			}
			return nil, fmt.Errorf("stdin is empty")
		}
		data = scanner.Bytes()
	} else {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		Zero(data)
		return nil, fmt.Errorf("secret is empty")
	}

	// NewFromBytes zeroes trimmed; zero the surrounding whitespace too.
	buffer, err := NewFromBytes(trimmed)
	Zero(data)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}

// Prompt writes label to stderr and reads a line from the terminal with
// echo disabled. Returns an error when stdin is not a terminal (use
// ReadFromPath for scripted input) or when the entered value is empty.
// The returned buffer must be closed by the caller.
func Prompt(label string) (*Buffer, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("stdin is not a terminal; pass the value via a file or '-' for stdin")
	}

	fmt.Fprintf(os.Stderr, "%s: ", label)
	line, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading terminal input: %w", err)
	}

	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		Zero(line)
		return nil, fmt.Errorf("empty value entered")
	}

	buffer, err := NewFromBytes(trimmed)
	Zero(line)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}
