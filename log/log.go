// Package log creates the loggers used by sonic components.
//
// SONIC_LOG_LEVEL sets the level by logrus name. SONIC_DEBUG=true is a
// shortcut for the debug level.
package log

import (
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Logger is the subset of logrus used by sonic components. Render code only
// calls Debug.
type Logger interface {
	Debug(...interface{})
	Info(...interface{})
	Warn(...interface{})
}

var level = levelFromEnv(os.Getenv("SONIC_LOG_LEVEL"), os.Getenv("SONIC_DEBUG"))

func levelFromEnv(name, debug string) logrus.Level {
	if on, err := strconv.ParseBool(debug); err == nil && on {
		return logrus.DebugLevel
	}
	if l, err := logrus.ParseLevel(name); err == nil {
		return l
	}
	return logrus.InfoLevel
}

// New returns a logger which tags every entry with the component name.
func New(component string) Logger {
	l := logrus.New()
	l.SetLevel(level)
	return l.WithField("component", component)
}

// Silent returns a logger that discards everything.
func Silent() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
