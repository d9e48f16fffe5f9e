package lottery

import log "github.com/sirupsen/logrus"

// DefaultLogger implements Logger on top of logrus
type DefaultLogger struct {
	entry *log.Entry
}

// NewDefaultLogger creates a logger tagged with the lottery component
func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{entry: log.WithField("component", "lottery")}
}

// NewLoggerFromEntry wraps an existing logrus entry, keeping its fields
func NewLoggerFromEntry(entry *log.Entry) *DefaultLogger {
	return &DefaultLogger{entry: entry}
}

func (l *DefaultLogger) logger() *log.Entry {
	if l.entry == nil {
		return log.WithField("component", "lottery")
	}
	return l.entry
}

// Info logs an info message
func (l *DefaultLogger) Info(msg string, args ...any) {
	l.logger().Infof(msg, args...)
}

// Error logs an error message
func (l *DefaultLogger) Error(msg string, args ...any) {
	l.logger().Errorf(msg, args...)
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, args ...any) {
	l.logger().Debugf(msg, args...)
}

// SilentLogger implements Logger interface but does not output any logs
// This is useful for testing environments where log output is not desired
type SilentLogger struct{}

// NewSilentLogger creates a new silent logger instance
func NewSilentLogger() *SilentLogger { return &SilentLogger{} }

// Info does nothing (silent)
func (l *SilentLogger) Info(msg string, args ...any) {}

// Error does nothing (silent)
func (l *SilentLogger) Error(msg string, args ...any) {}

// Debug does nothing (silent)
func (l *SilentLogger) Debug(msg string, args ...any) {}
