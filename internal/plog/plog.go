// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package plog implements a thin layer over logr to help enforce dirwarden's logging convention.
// Logs are always structured as a constant message with key and value pairs of related metadata.
//
// The logging levels in order of increasing verbosity are:
// error, warning, info, debug and trace.
//
// error and warning logs are always emitted (there is no way for the end user to disable them),
// and thus should be used sparingly. Ideally, logs at these levels should be actionable.
//
// info should be reserved for "nice to know" information. It should be possible to run a
// production dirwarden process at the info log level with no performance degradation due to
// high log volume.
//
// debug should be used for information targeted at developers and to aid in support cases. Care
// must be taken at this level to not leak any secrets into the log stream. In particular, bind
// passwords and end-user credentials must never be logged at any level.
//
// trace should be used to log information related to timing (i.e. the time it took a
// reconciliation to complete or a pool acquire to be satisfied).
package plog

const errorKey = "error"

// Use Error to log an unexpected system error.
func Error(msg string, err error, keysAndValues ...any) {
	globalLogger.Error(err, msg, keysAndValues...)
}

func Warning(msg string, keysAndValues ...any) {
	// logr has no concept of a warning level, so use verbosity zero with a marker key
	// to make these easy to find in the log stream.
	keysAndValues = append([]any{"warning", "true"}, keysAndValues...)
	globalLogger.V(levelWarning).Info(msg, keysAndValues...)
}

// Use WarningErr to issue a Warning message with an error object as part of the message.
func WarningErr(msg string, err error, keysAndValues ...any) {
	Warning(msg, append([]any{errorKey, err}, keysAndValues...)...)
}

func Info(msg string, keysAndValues ...any) {
	globalLogger.V(levelInfo).Info(msg, keysAndValues...)
}

// Use InfoErr to log an expected error, e.g. a failed credential check.
func InfoErr(msg string, err error, keysAndValues ...any) {
	Info(msg, append([]any{errorKey, err}, keysAndValues...)...)
}

func Debug(msg string, keysAndValues ...any) {
	globalLogger.V(levelDebug).Info(msg, keysAndValues...)
}

// Use DebugErr to issue a Debug message with an error object as part of the message.
func DebugErr(msg string, err error, keysAndValues ...any) {
	Debug(msg, append([]any{errorKey, err}, keysAndValues...)...)
}

func Trace(msg string, keysAndValues ...any) {
	globalLogger.V(levelTrace).Info(msg, keysAndValues...)
}

// Use TraceErr to issue a Trace message with an error object as part of the message.
func TraceErr(msg string, err error, keysAndValues ...any) {
	Trace(msg, append([]any{errorKey, err}, keysAndValues...)...)
}
