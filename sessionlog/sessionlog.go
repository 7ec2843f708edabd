/*
DESCRIPTION
  sessionlog.go provides a rotating-file logging.Logger constructor, the
  same lumberjack wiring cmd/rv/main.go performs inline, lifted out into a
  reusable constructor.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package sessionlog constructs a rotating-file logging.Logger for use by
// encoder sessions run outside of a larger pipeline that already provides
// one.
package sessionlog

import (
	"io"

	"github.com/ausocean/utils/logging"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Defaults for the lumberjack-backed log file, matching the constants
// cmd/rv/main.go uses for its own rotating log.
const (
	DefaultMaxSizeMB  = 500
	DefaultMaxBackups = 10
	DefaultMaxAgeDays = 0 // no age-based deletion
)

// NewFileLogger returns a logging.Logger that writes to a rotating file at
// path, verbosity-filtered at level (one of the logging package's Debug,
// Info, Warning, Error constants). suppress, when true, suppresses
// repeated identical log lines, matching logging.New's signature.
func NewFileLogger(path string, level int8, suppress bool) logging.Logger {
	fileLog := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    DefaultMaxSizeMB,
		MaxBackups: DefaultMaxBackups,
		MaxAge:     DefaultMaxAgeDays,
	}
	return logging.New(level, io.Writer(fileLog), suppress)
}

// NewMultiLogger is NewFileLogger extended with an additional destination,
// e.g. a cloud netlogger, written alongside the rotating file exactly as
// cmd/rv/main.go composes fileLog and netLog with io.MultiWriter.
func NewMultiLogger(path string, level int8, extra io.Writer, suppress bool) logging.Logger {
	fileLog := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    DefaultMaxSizeMB,
		MaxBackups: DefaultMaxBackups,
		MaxAge:     DefaultMaxAgeDays,
	}
	return logging.New(level, io.MultiWriter(fileLog, extra), suppress)
}
