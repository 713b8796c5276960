// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the shared binary entrypoint helper. It
// centralizes the one legitimate raw-stderr pattern in the tree: fatal
// error reporting from main() before the structured logger exists.
package process

import (
	"fmt"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors returned by run() where the structured logger may
// not be initialized yet.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
