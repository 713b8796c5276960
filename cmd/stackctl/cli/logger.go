// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger creates the logger for command operations. On a
// terminal stderr it uses slog.TextHandler; when stderr is piped or
// redirected (cron, CI, the service manager journal) it switches to
// slog.JSONHandler so log collectors get structured records.
//
// Commands scope the logger with context via With():
//
//	logger := cli.NewCommandLogger().With("command", "backup/run")
func NewCommandLogger() *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}
