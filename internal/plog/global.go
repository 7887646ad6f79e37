// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format controls the encoding of the log stream.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

//nolint:gochecknoglobals // these globals have no locks on purpose - they are expected to be set at init and then again after config parsing.
var (
	globalLevel  zap.AtomicLevel
	globalLogger logr.Logger
	globalFlush  func()
)

//nolint:gochecknoinits // make sure we always have a functional global logger.
func init() {
	globalLevel = zap.NewAtomicLevelAt(0) // log at the 0 verbosity level to start with, i.e. the "always" logs
	log, flush := newLogr(FormatJSON, os.Stderr)
	globalLogger = log
	globalFlush = flush
}

// Setup rebuilds the global logger with the requested encoding. It returns a flush
// function that should be deferred by main.
func Setup(format Format) func() {
	log, flush := newLogr(format, os.Stderr)
	globalLogger = log
	globalFlush = flush
	return func() {
		globalFlush()
	}
}

// Logr exposes the global logger for the rare code that wants to carry a logr.Logger.
func Logr() logr.Logger {
	return globalLogger
}

func newLogr(format Format, w io.Writer) (logr.Logger, func()) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	var encoder zapcore.Encoder
	if format == FormatConsole {
		encoderConfig.LevelKey = zapcore.OmitKey
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	sink := zapcore.AddSync(w)
	core := zapcore.NewCore(encoder, sink, globalLevel)
	log := zap.New(core, zap.WithCaller(true))

	return zapr.NewLogger(log), func() { _ = log.Sync() }
}

// TestOnlySetGlobalLogger replaces the global logger so that tests can capture output.
// It returns a function that restores the previous logger.
func TestOnlySetGlobalLogger(format Format, w io.Writer) func() {
	previousLogger, previousFlush := globalLogger, globalFlush
	globalLogger, globalFlush = newLogr(format, w)
	return func() {
		globalLogger, globalFlush = previousLogger, previousFlush
	}
}
