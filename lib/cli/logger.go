// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli holds helpers shared by the downlink command binaries.
package cli

import (
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/downlink-project/downlink/lib/config"
)

// NewLogger builds the process logger from a validated log
// configuration and installs it as slog's default, so library code
// that falls back to slog.Default() shares the same handler.
//
// Format "auto" picks text output when stderr is a terminal and JSON
// when it is piped or redirected, so interactive runs stay readable
// while scripted runs stay machine-parseable.
func NewLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	format := cfg.Format
	if format == "auto" || format == "" {
		if term.IsTerminal(int(os.Stderr.Fd())) {
			format = "text"
		} else {
			format = "json"
		}
	}

	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
