// Package logging provides a thin adapter over logrus so that callers
// depend on an interface rather than the concrete logging library.
package logging

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the interface every server/store/handler in this module takes
// instead of a concrete logging type.
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	// WithField returns a Logger that attaches key/value to every
	// subsequent entry, without mutating the receiver.
	WithField(key string, value interface{}) Logger
}

type logrusLogger struct {
	entry logrus.FieldLogger
}

// New returns a Logger writing JSON lines to stdout at the given level.
func New(level logrus.Level) Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(level)
	return &logrusLogger{entry: l}
}

// NewFrom wraps an existing logrus logger or entry.
func NewFrom(entry logrus.FieldLogger) Logger {
	return &logrusLogger{entry: entry}
}

func (l *logrusLogger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *logrusLogger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *logrusLogger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *logrusLogger) Error(args ...interface{}) { l.entry.Error(args...) }

func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

type contextKey int

const requestIDKey contextKey = iota

// WithRequestID returns a copy of ctx carrying id as its request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID stored by WithRequestID, or
// "" if none is present.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
