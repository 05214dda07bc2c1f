// Package mamlog provides the pluggable diagnostic logger shared across
// the ternary MAM core packages. It never gates correctness: every
// package here must behave identically whether or not a logger has
// been installed, and must never log secret key material.
package mamlog

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the minimal logging surface the core packages use.
type Logger interface {
	Logf(format string, a ...interface{})
}

type dummyLogger struct{}

func (dummyLogger) Logf(format string, a ...interface{}) {}

type zerologLogger struct {
	log zerolog.Logger
}

func (l zerologLogger) Logf(format string, a ...interface{}) {
	l.log.Info().Msgf(format, a...)
}

var active Logger = dummyLogger{}

// Log writes a diagnostic line if a logger has been installed.
func Log(format string, a ...interface{}) {
	active.Logf(format, a...)
}

// EnableLogging installs a zerolog-backed logger writing to stderr.
// For more control over the destination or format, use SetLogger.
func EnableLogging() {
	SetLogger(zerologLogger{log: zerolog.New(os.Stderr).With().Timestamp().Logger()})
}

// SetLogger installs logger as the active diagnostic sink. Passing nil
// disables logging.
func SetLogger(logger Logger) {
	if logger == nil {
		active = dummyLogger{}
		return
	}
	active = logger
}
