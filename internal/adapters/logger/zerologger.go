package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"triggerBot/internal/ports"
)

// Output formats accepted by New.
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatConsole = "console"
)

// ZeroLogger implements ports.Logger on top of zerolog.
type ZeroLogger struct {
	logger zerolog.Logger
}

// NewZeroLogger creates a JSON logger writing to w.
func NewZeroLogger(w io.Writer, level LogLevel) *ZeroLogger {
	zl := zerolog.New(w).Level(zerologLevel(level)).With().Timestamp().Logger()
	return &ZeroLogger{logger: zl}
}

// NewConsoleLogger creates a human-readable zerolog logger writing to w.
func NewConsoleLogger(w io.Writer, level LogLevel) *ZeroLogger {
	return NewZeroLogger(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}, level)
}

// New builds the logger for the given format and level, writing to os.Stderr.
func New(format string, level LogLevel) (ports.Logger, error) {
	switch strings.ToLower(format) {
	case "", FormatText:
		return NewStdLogger(level), nil
	case FormatJSON:
		return NewZeroLogger(os.Stderr, level), nil
	case FormatConsole:
		return NewConsoleLogger(os.Stderr, level), nil
	default:
		return nil, fmt.Errorf("unknown log format %q: %w", format, ports.ErrConfigurationError)
	}
}

func zerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *ZeroLogger) write(ev *zerolog.Event, msg string, fields []map[string]interface{}) {
	if len(fields) > 0 && fields[0] != nil {
		ev = ev.Fields(fields[0])
	}
	ev.Msg(msg)
}

// Debug logs a message at Debug level.
func (l *ZeroLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.write(l.logger.Debug(), msg, fields)
}

// Info logs a message at Info level.
func (l *ZeroLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.write(l.logger.Info(), msg, fields)
}

// Warn logs a message at Warning level.
func (l *ZeroLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.write(l.logger.Warn(), msg, fields)
}

// Error logs an error message at Error level.
func (l *ZeroLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.write(l.logger.Error().Err(err), msg, fields)
}
