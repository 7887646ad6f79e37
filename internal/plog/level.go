// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"go.uber.org/zap/zapcore"

	"go.dirwarden.dev/internal/constable"
)

// LogLevel is an enum that controls verbosity of logs.
// Valid values in order of increasing verbosity are leaving it unset, info, debug and trace.
type LogLevel string

const (
	// LevelWarning (i.e. leaving the log level unset) emits only error and warning logs.
	LevelWarning LogLevel = ""
	// LevelInfo additionally emits info logs.
	LevelInfo LogLevel = "info"
	// LevelDebug additionally emits debug logs.
	LevelDebug LogLevel = "debug"
	// LevelTrace emits everything.
	LevelTrace LogLevel = "trace"

	errInvalidLogLevel = constable.Error("invalid log level, valid choices are the empty string, info, debug and trace")
)

// logr verbosities for each of our levels. zapr maps logger.V(n) onto zap level -n,
// so increasing verbosity here means a decreasing zap level at the sink.
const (
	levelWarning = iota * 2
	levelInfo
	levelDebug
	levelTrace
)

func zapLevelFor(level LogLevel) (zapcore.Level, error) {
	switch level {
	case LevelWarning:
		return zapcore.Level(-levelWarning), nil // unset means minimal logs (Error and Warning)
	case LevelInfo:
		return zapcore.Level(-levelInfo), nil
	case LevelDebug:
		return zapcore.Level(-levelDebug), nil
	case LevelTrace:
		return zapcore.Level(-levelTrace), nil
	default:
		return 0, errInvalidLogLevel
	}
}

// ValidateAndSetLogLevelGlobally adjusts the verbosity of the process-global logger.
// It is meant to be called once during startup, after config parsing.
func ValidateAndSetLogLevelGlobally(level LogLevel) error {
	zapLevel, err := zapLevelFor(level)
	if err != nil {
		return err
	}

	globalLevel.SetLevel(zapLevel)

	return nil
}
