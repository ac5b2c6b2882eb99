/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package logger builds the structured loggers used across docstore.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text, json, logfmt
	Prefix string
	Output io.Writer
}

// New builds a logger from cfg. Output defaults to stderr.
func New(cfg Config) (*log.Logger, error) {
	level := log.InfoLevel
	if cfg.Level != "" {
		l, err := log.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = l
	}

	formatter, err := parseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	return log.NewWithOptions(out, log.Options{
		Level:           level,
		Prefix:          cfg.Prefix,
		Formatter:       formatter,
		ReportTimestamp: true,
	}), nil
}

// Init builds a logger from cfg and installs it as the package default of
// charmbracelet/log, so components constructed without a logger use it too.
func Init(cfg Config) (*log.Logger, error) {
	l, err := New(cfg)
	if err != nil {
		return nil, err
	}
	log.SetDefault(l)
	return l, nil
}

func parseFormat(format string) (log.Formatter, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return log.TextFormatter, nil
	case "json":
		return log.JSONFormatter, nil
	case "logfmt":
		return log.LogfmtFormatter, nil
	}
	return 0, fmt.Errorf("invalid log format %q", format)
}
