// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError signals a non-zero exit code without an extra error
// message. Commands return it when non-zero exit is a valid outcome
// they have already reported (a port conflict, a failed doctor check)
// rather than an unexpected error for main to print.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. main checks for this interface on
// returned errors to separate handled non-zero exits from errors that
// still need printing.
func (e *ExitError) ExitCode() int {
	return e.Code
}
