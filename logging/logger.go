// Package logging wires zerolog into go-extauth. It provides an adapter for
// the authn.Logger contract, an event listener that writes one structured
// line per authentication outcome, correlation-id context helpers and the
// process-wide logger setup used by the extauth CLI.
package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/AmmannChristian/go-extauth/authn"
)

var (
	_ authn.Logger     = (*Logger)(nil)
	_ authn.WarnLogger = (*Logger)(nil)
)

// Logger adapts a zerolog.Logger to authn.Logger and authn.WarnLogger.
// Printf writes at debug level, Warnf at warn level.
type Logger struct {
	zl zerolog.Logger
}

// New wraps zl.
func New(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// Default wraps the global zerolog logger configured by Init.
func Default() *Logger {
	return New(log.Logger)
}

// Printf logs a debug message.
func (l *Logger) Printf(format string, args ...any) {
	l.zl.Debug().Msgf(format, args...)
}

// Warnf logs a warning.
func (l *Logger) Warnf(format string, args ...any) {
	l.zl.Warn().Msgf(format, args...)
}

// Errorf logs an error message.
func (l *Logger) Errorf(format string, args ...any) {
	l.zl.Error().Msgf(format, args...)
}

// Zerolog returns the wrapped logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}
