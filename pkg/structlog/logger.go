// Package structlog provides JSON structured logging with leveled output
// and per-logger base fields.
package structlog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level represents log severity
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
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

// ParseLevel maps a level name to a Level. Unknown names default to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Fields represents structured log fields
type Fields map[string]interface{}

// Logger writes one JSON object per log line.
type Logger struct {
	service string
	level   Level
	output  io.Writer
	mu      sync.Mutex
	fields  Fields // base fields attached to every line
}

// NewLogger creates a structured logger for a service
func NewLogger(serviceName string, level Level, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	return &Logger{
		service: serviceName,
		level:   level,
		output:  output,
		fields:  Fields{},
	}
}

// WithFields returns a logger with additional base fields
func (l *Logger) WithFields(fields Fields) *Logger {
	nl := &Logger{
		service: l.service,
		level:   l.level,
		output:  l.output,
		fields:  make(Fields, len(l.fields)+len(fields)),
	}
	for k, v := range l.fields {
		nl.fields[k] = v
	}
	for k, v := range fields {
		nl.fields[k] = v
	}
	return nl
}

// Debug logs debug message
func (l *Logger) Debug(message string, fields Fields) {
	l.log(LevelDebug, message, fields)
}

// Info logs info message
func (l *Logger) Info(message string, fields Fields) {
	l.log(LevelInfo, message, fields)
}

// Warn logs warning message
func (l *Logger) Warn(message string, fields Fields) {
	l.log(LevelWarn, message, fields)
}

// Error logs error message
func (l *Logger) Error(message string, fields Fields) {
	l.log(LevelError, message, fields)
}

// Fatal logs fatal message and exits
func (l *Logger) Fatal(message string, fields Fields) {
	l.log(LevelFatal, message, fields)
	os.Exit(1)
}

// log is the core logging function
func (l *Logger) log(level Level, message string, fields Fields) {
	if level < l.level {
		return
	}

	all := make(Fields, len(l.fields)+len(fields)+5)
	for k, v := range l.fields {
		all[k] = v
	}
	for k, v := range fields {
		all[k] = v
	}

	all["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	all["level"] = level.String()
	all["service"] = l.service
	all["message"] = message

	// Caller info only for errors; it is not free.
	if level >= LevelError {
		if _, file, line, ok := runtime.Caller(2); ok {
			all["caller"] = fmt.Sprintf("%s:%d", file, line)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := json.NewEncoder(l.output).Encode(all); err != nil {
		fmt.Fprintf(os.Stderr, "LOG_ERROR: failed to encode log: %v\n", err)
	}
}

// SetLevel changes log level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Global logger instance (can be replaced)
var defaultLogger = NewLogger("default", LevelInfo, os.Stdout)

// SetDefaultLogger replaces the global logger
func SetDefaultLogger(logger *Logger) {
	defaultLogger = logger
}

// Package-level convenience functions

func Debug(message string, fields Fields) { defaultLogger.Debug(message, fields) }
func Info(message string, fields Fields)  { defaultLogger.Info(message, fields) }
func Warn(message string, fields Fields)  { defaultLogger.Warn(message, fields) }
func Error(message string, fields Fields) { defaultLogger.Error(message, fields) }
func Fatal(message string, fields Fields) { defaultLogger.Fatal(message, fields) }
