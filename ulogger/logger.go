// Package ulogger wraps zerolog behind the narrow interface the validator
// core's components depend on, so no package reaches for a global logger.
package ulogger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logging surface every component takes at construction time.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	New(service string) Logger
}

// ZLogger adapts zerolog.Logger to the Logger interface.
type ZLogger struct {
	zerolog.Logger
	service string
}

// New constructs a logger for service, pretty-printing to stdout unless
// prettyLogs is false.
func New(service string, level string, prettyLogs bool) *ZLogger {
	var base zerolog.Logger
	if prettyLogs {
		base = prettyConsoleLogger(service)
	} else {
		base = zerolog.New(os.Stdout).With().Timestamp().Str("service", service).Logger()
	}

	z := &ZLogger{Logger: base, service: service}
	z.SetLevel(level)
	return z
}

func (z *ZLogger) SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		z.Logger = z.Logger.Level(zerolog.DebugLevel)
	case "WARN":
		z.Logger = z.Logger.Level(zerolog.WarnLevel)
	case "ERROR":
		z.Logger = z.Logger.Level(zerolog.ErrorLevel)
	default:
		z.Logger = z.Logger.Level(zerolog.InfoLevel)
	}
}

func (z *ZLogger) Debugf(format string, args ...interface{}) {
	z.Logger.Debug().Msg(fmt.Sprintf(format, args...))
}

func (z *ZLogger) Infof(format string, args ...interface{}) {
	z.Logger.Info().Msg(fmt.Sprintf(format, args...))
}

func (z *ZLogger) Warnf(format string, args ...interface{}) {
	z.Logger.Warn().Msg(fmt.Sprintf(format, args...))
}

func (z *ZLogger) Errorf(format string, args ...interface{}) {
	z.Logger.Error().Msg(fmt.Sprintf(format, args...))
}

// New returns a child logger scoped to a sub-service/component name.
func (z *ZLogger) New(service string) Logger {
	child := z.Logger.With().Str("component", service).Logger()
	return &ZLogger{Logger: child, service: service}
}

func prettyConsoleLogger(service string) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("| %-12s| %s", service, i)
	}
	return zerolog.New(output).With().Timestamp().Logger()
}

// TestLogger is a no-op Logger for unit tests that don't care about output.
type TestLogger struct{}

func (TestLogger) Debugf(string, ...interface{}) {}
func (TestLogger) Infof(string, ...interface{})  {}
func (TestLogger) Warnf(string, ...interface{})  {}
func (TestLogger) Errorf(string, ...interface{}) {}
func (TestLogger) New(string) Logger             { return TestLogger{} }
