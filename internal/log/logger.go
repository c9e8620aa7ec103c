// SPDX-License-Identifier: MIT
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

// --- Global Logger State ---

var currentLevel atomic.Uint32

// logger shows date and time with microseconds, the looper's diagnostics are
// only useful when they can be lined up against audio timing.
var logger = stdlog.New(os.Stderr, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds)

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects all log output, tests use it to capture or silence logs.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

func output(level LogLevel, prefix, msg string) {
	if !shouldLog(level) {
		return
	}
	if prefix != "" {
		logger.Printf("[%-5s] %s: %s", level, prefix, msg)
		return
	}
	logger.Printf("[%-5s] %s", level, msg)
}

// --- Public Logging Functions ---

func Debugf(format string, v ...any) { output(LevelDebug, "", fmt.Sprintf(format, v...)) }
func Infof(format string, v ...any)  { output(LevelInfo, "", fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...any)  { output(LevelWarn, "", fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...any) { output(LevelError, "", fmt.Sprintf(format, v...)) }

// Fatalf logs a formatted fatal message and exits the application.
// Fatal messages are always logged regardless of the current level.
func Fatalf(format string, v ...any) {
	logger.Fatalf("[%-5s] %s", LevelFatal, fmt.Sprintf(format, v...))
}

// Logger is a component-scoped view of the global logger. It shares the
// global level and output, only the prefix differs.
type Logger struct {
	name string
}

// Component returns a logger whose lines are prefixed with name.
func Component(name string) Logger {
	return Logger{name: name}
}

func (l Logger) Debugf(format string, v ...any) { output(LevelDebug, l.name, fmt.Sprintf(format, v...)) }
func (l Logger) Infof(format string, v ...any)  { output(LevelInfo, l.name, fmt.Sprintf(format, v...)) }
func (l Logger) Warnf(format string, v ...any)  { output(LevelWarn, l.name, fmt.Sprintf(format, v...)) }
func (l Logger) Errorf(format string, v ...any) { output(LevelError, l.name, fmt.Sprintf(format, v...)) }
