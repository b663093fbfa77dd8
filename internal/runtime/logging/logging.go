package logging

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
)

// LogFields are structured key/value pairs attached to one entry.
type LogFields map[string]any

// ServiceLogger is the logger used by the pipeline, its middleware and the
// forwarding transports.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// LevelTrace is the slog level Trace entries are written at. Handlers set to
// LevelDebug drop them.
const LevelTrace = watermill.LevelTrace

// NewSlogServiceLogger writes entries to log. Trace goes out at LevelTrace.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("pipeflow: slog logger cannot be nil")
	}
	return NewWatermillServiceLogger(watermill.NewSlogLogger(log))
}

// NewWatermillServiceLogger adapts a watermill logger.
func NewWatermillServiceLogger(logger watermill.LoggerAdapter) ServiceLogger {
	if logger == nil {
		panic("pipeflow: watermill logger cannot be nil")
	}
	return wmLogger{inner: logger}
}

// NewNopServiceLogger discards every entry.
func NewNopServiceLogger() ServiceLogger {
	return wmLogger{inner: watermill.NopLogger{}}
}

// NewWatermillAdapter hands log to watermill publishers. Loggers created by
// this package are unwrapped instead of being wrapped twice.
func NewWatermillAdapter(log ServiceLogger) watermill.LoggerAdapter {
	if log == nil {
		panic("pipeflow: ServiceLogger cannot be nil")
	}
	if wm, ok := log.(wmLogger); ok {
		return wm.inner
	}
	return serviceAdapter{base: log}
}

// ParseLevel maps a --log-level value to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

type wmLogger struct {
	inner watermill.LoggerAdapter
}

func (l wmLogger) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return l
	}
	return wmLogger{inner: l.inner.With(watermill.LogFields(fields))}
}

func (l wmLogger) Debug(msg string, fields LogFields) { l.inner.Debug(msg, watermill.LogFields(fields)) }
func (l wmLogger) Info(msg string, fields LogFields)  { l.inner.Info(msg, watermill.LogFields(fields)) }
func (l wmLogger) Trace(msg string, fields LogFields) { l.inner.Trace(msg, watermill.LogFields(fields)) }

func (l wmLogger) Error(msg string, err error, fields LogFields) {
	l.inner.Error(msg, err, watermill.LogFields(fields))
}

// serviceAdapter exposes a foreign ServiceLogger as a watermill logger.
type serviceAdapter struct {
	base ServiceLogger
}

func (a serviceAdapter) Debug(msg string, fields watermill.LogFields) { a.base.Debug(msg, LogFields(fields)) }
func (a serviceAdapter) Info(msg string, fields watermill.LogFields)  { a.base.Info(msg, LogFields(fields)) }
func (a serviceAdapter) Trace(msg string, fields watermill.LogFields) { a.base.Trace(msg, LogFields(fields)) }

func (a serviceAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.base.Error(msg, err, LogFields(fields))
}

func (a serviceAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return serviceAdapter{base: a.base.With(LogFields(fields))}
}
