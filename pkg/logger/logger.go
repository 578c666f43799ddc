// Package logger provides the logging interface used across copilot.
// The default backend is zerolog writing either human-readable console lines
// or JSON, so that the same log stream serves an attached terminal and a
// collector.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Logger defines the interface for logging across all copilot components.
type Logger interface {
	// Info logs an informational message (e.g., "Scheduled PERIOD1_START for 12:10:01.000").
	Info(format string, args ...interface{})

	// Warning logs a warning message (e.g., "slot3 script failed").
	Warning(format string, args ...interface{})

	// Error logs an error message (e.g., "gps: open /dev/ttyS0: no such file").
	Error(format string, args ...interface{})

	// Close releases resources held by the logger.
	// Safe to call multiple times. Returns nil for loggers without resources.
	Close() error
}

// ZerologLogger adapts a zerolog.Logger to the Logger interface.
type ZerologLogger struct {
	z zerolog.Logger

	once   sync.Once
	closer io.Closer
}

// NewZerologLogger wraps the given zerolog.Logger.
func NewZerologLogger(z zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{z: z}
}

// Setup builds a zerolog-backed Logger for the process.
// level is one of zerolog's level names ("debug", "info", "warn", "error");
// an unknown or empty level falls back to info.
// When console is true the output is human-readable, otherwise JSON.
// A nil w writes to stdout.
func Setup(level string, console bool, w io.Writer) *ZerologLogger {
	if w == nil {
		w = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}
	z := zerolog.New(w).With().Timestamp().Logger().Level(lvl)
	return NewZerologLogger(z)
}

// OpenFile builds a JSON Logger appending to the file at path, creating it
// if needed. Close releases the file.
func OpenFile(path, level string) (*ZerologLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l := Setup(level, false, f)
	l.closer = f
	return l, nil
}

// Zerolog returns the underlying zerolog.Logger.
func (l *ZerologLogger) Zerolog() zerolog.Logger {
	return l.z
}

// Info logs at info level.
func (l *ZerologLogger) Info(format string, args ...interface{}) {
	l.z.Info().Msgf(format, args...)
}

// Warning logs at warn level.
func (l *ZerologLogger) Warning(format string, args ...interface{}) {
	l.z.Warn().Msgf(format, args...)
}

// Error logs at error level.
func (l *ZerologLogger) Error(format string, args ...interface{}) {
	l.z.Error().Msgf(format, args...)
}

// Close releases the log file, if any.
func (l *ZerologLogger) Close() error {
	var err error
	l.once.Do(func() {
		if l.closer != nil {
			err = l.closer.Close()
		}
	})
	return err
}

// NopLogger is a logger that discards all messages.
// Useful for testing or when logging should be disabled.
type NopLogger struct{}

// NewNopLogger creates a logger that discards all messages.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

// Info discards the message.
func (n *NopLogger) Info(format string, args ...interface{}) {}

// Warning discards the message.
func (n *NopLogger) Warning(format string, args ...interface{}) {}

// Error discards the message.
func (n *NopLogger) Error(format string, args ...interface{}) {}

// Close is a no-op.
func (n *NopLogger) Close() error {
	return nil
}

// Ensure implementations satisfy the Logger interface.
var (
	_ Logger = (*ZerologLogger)(nil)
	_ Logger = (*NopLogger)(nil)
)

// MockLogger implements Logger for testing purposes.
// It records all log calls for verification in tests.
type MockLogger struct {
	InfoCalls    []string
	WarningCalls []string
	ErrorCalls   []string
	CloseCalled  bool
}

// NewMockLogger creates a new MockLogger for testing.
func NewMockLogger() *MockLogger {
	return &MockLogger{
		InfoCalls:    make([]string, 0),
		WarningCalls: make([]string, 0),
		ErrorCalls:   make([]string, 0),
	}
}

// Info records the formatted message.
func (m *MockLogger) Info(format string, args ...interface{}) {
	m.InfoCalls = append(m.InfoCalls, fmt.Sprintf(format, args...))
}

// Warning records the formatted message.
func (m *MockLogger) Warning(format string, args ...interface{}) {
	m.WarningCalls = append(m.WarningCalls, fmt.Sprintf(format, args...))
}

// Error records the formatted message.
func (m *MockLogger) Error(format string, args ...interface{}) {
	m.ErrorCalls = append(m.ErrorCalls, fmt.Sprintf(format, args...))
}

// Close records that Close was called.
func (m *MockLogger) Close() error {
	m.CloseCalled = true
	return nil
}

// Contains reports whether any recorded info line contains substr.
func (m *MockLogger) Contains(substr string) bool {
	for _, s := range m.InfoCalls {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// Ensure MockLogger satisfies the Logger interface.
var _ Logger = (*MockLogger)(nil)
