// SPDX-License-Identifier: GPL-3.0-or-later

// Package corelog wraps the standard library's log.Logger with the leveled
// helpers the engine needs, logging through the standard "log" package
// rather than reaching for a structured logging library.
package corelog

import (
	"fmt"
	"log"
	"os"
)

// Level is the engine's log_level configuration enum (§6).
type Level int

const (
	LevelNone Level = iota
	LevelError
	LevelWarning
	LevelInfo
	LevelDebug
	LevelTrace
)

func ParseLevel(s string) Level {
	switch s {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warning":
		return LevelWarning
	case "error":
		return LevelError
	default:
		return LevelNone
	}
}

// Logger is a leveled wrapper over *log.Logger.
type Logger struct {
	level Level
	std   *log.Logger
	// OnMessage, if set, is called for every logged line in addition to the
	// standard logger — the engine façade uses this to surface
	// log_message(level, aspect, text) events.
	OnMessage func(level Level, aspect, text string)
}

// New creates a Logger writing to os.Stderr by default, matching the
// teacher's log.SetOutput / log.SetFlags setup.
func New(level Level) *Logger {
	std := log.New(os.Stderr, "", log.LstdFlags)
	return &Logger{level: level, std: std}
}

func (l *Logger) SetLevel(level Level) { l.level = level }

func (l *Logger) logf(level Level, aspect, format string, args ...any) {
	if level > l.level {
		return
	}
	text := fmt.Sprintf(format, args...)
	l.std.Printf("[%s] %s", aspect, text)
	if l.OnMessage != nil {
		l.OnMessage(level, aspect, text)
	}
}

func (l *Logger) Errorf(aspect, format string, args ...any)   { l.logf(LevelError, aspect, format, args...) }
func (l *Logger) Warnf(aspect, format string, args ...any)    { l.logf(LevelWarning, aspect, format, args...) }
func (l *Logger) Infof(aspect, format string, args ...any)    { l.logf(LevelInfo, aspect, format, args...) }
func (l *Logger) Debugf(aspect, format string, args ...any)   { l.logf(LevelDebug, aspect, format, args...) }
func (l *Logger) Tracef(aspect, format string, args ...any)   { l.logf(LevelTrace, aspect, format, args...) }
