// Package diag is the diagnostics facade used by the runtime: severity
// tagged events with optional context and source location, and nestable
// logging groups that scope related events.
package diag

import (
	"log/slog"
	"strings"
)

// Severity is the level of a diagnostic event.
type Severity int

// Severities, lowest first.
const (
	Debug Severity = iota
	Info
	Warning
	Error
	Fatal
)

// LevelFatal is the slog level used for Fatal events.
const LevelFatal = slog.LevelError + 4

// String returns the upper-case name of the severity.
func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARN"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Level maps the severity onto a slog level.
func (s Severity) Level() slog.Level {
	switch s {
	case Debug:
		return slog.LevelDebug
	case Warning:
		return slog.LevelWarn
	case Error:
		return slog.LevelError
	case Fatal:
		return LevelFatal
	default:
		return slog.LevelInfo
	}
}

// ParseSeverity parses a severity name. Unknown names yield Info.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(s) {
	case "debug":
		return Debug
	case "warn", "warning":
		return Warning
	case "error":
		return Error
	case "fatal":
		return Fatal
	default:
		return Info
	}
}
