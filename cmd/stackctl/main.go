// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/supportstack/stackctl/cmd/stackctl/commands"
	"github.com/supportstack/stackctl/lib/process"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output (like doctor) return an
		// ExitError with the desired code; no redundant "error:" line
		// for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		process.Fatal(err)
	}
}

func run() error {
	return commands.Root().Execute(os.Args[1:])
}
