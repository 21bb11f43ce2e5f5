// Package log provides the structured logger shared by the router, auth
// and http2 packages.
package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is a thin alias so callers don't need to import logrus directly.
type Logger = logrus.Logger

// Fields is a structured-field map, passed to WithFields.
type Fields = logrus.Fields

var std = New()

// New returns a logrus logger preconfigured with the text formatter used
// throughout this module.
func New() *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Default returns the package-wide logger used when a component is built
// without an explicit *Logger (mirrors the teacher's fallback to the
// stdlib "log" package when Server.ErrorLog is nil).
func Default() *Logger { return std }

// SetVerbose toggles debug-level logging on the default logger, the
// equivalent of the teacher's VerboseLogs package variable.
func SetVerbose(v bool) {
	if v {
		std.SetLevel(logrus.DebugLevel)
	} else {
		std.SetLevel(logrus.InfoLevel)
	}
}
