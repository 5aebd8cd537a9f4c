package utils

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger provides structured, leveled logging throughout the application.
type Logger struct {
	zl zerolog.Logger
}

// LogOptions controls where and how log lines are written.
type LogOptions struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	Out    io.Writer
}

// NewLogger creates a new Logger writing human-readable lines to stdout.
func NewLogger() *Logger {
	return NewLoggerWithOptions(LogOptions{Level: "info", Format: "console"})
}

// NewLoggerWithOptions creates a Logger from explicit options. An unknown
// level falls back to info.
func NewLoggerWithOptions(opts LogOptions) *Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	if opts.Format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02 15:04:05",
			NoColor:    opts.Out != nil,
		}
	}

	return &Logger{zl: zerolog.New(out).Level(level).With().Timestamp().Logger()}
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) Info(format string, args ...any) {
	l.zl.Info().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	l.zl.Warn().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	l.zl.Error().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...any) {
	l.zl.Debug().Msg(fmt.Sprintf(format, args...))
}
