package logger

import "errors"

// MultiLogger writes every line to several backends, such as the daemon's
// console and its log file.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger tees to loggers in order. Nil entries are skipped, so an
// optional backend can be passed as is.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

func (m *MultiLogger) Info(format string, args ...interface{}) {
	for _, l := range m.loggers {
		l.Info(format, args...)
	}
}

func (m *MultiLogger) Warning(format string, args ...interface{}) {
	for _, l := range m.loggers {
		l.Warning(format, args...)
	}
}

func (m *MultiLogger) Error(format string, args ...interface{}) {
	for _, l := range m.loggers {
		l.Error(format, args...)
	}
}

// Close closes every backend and joins their errors.
func (m *MultiLogger) Close() error {
	var errs []error
	for _, l := range m.loggers {
		errs = append(errs, l.Close())
	}
	return errors.Join(errs...)
}

var _ Logger = (*MultiLogger)(nil)
