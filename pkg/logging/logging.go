// Package logging is the logging facade threaded through every component of
// speech2prompt, built on github.com/pion/logging the way the teacher
// threads it through pkg/discovery and pkg/exchange.
package logging

import (
	"github.com/pion/logging"
)

// Factory creates scoped loggers, one per component ("link", "transport",
// "recognizer", "pairing", "dispatch"). Constructors accept a Factory and
// call NewLogger with their own scope name.
type Factory = logging.LoggerFactory

// Logger is the per-component leveled logger handed to a constructor.
type Logger = logging.LeveledLogger

// NewDefaultFactory returns the stock pion/logging factory (info level,
// writes to os.Stdout), used whenever a caller does not supply its own.
func NewDefaultFactory() Factory {
	return logging.NewDefaultLoggerFactory()
}

// Scoped resolves f.NewLogger(scope) for an optionally-nil factory, falling
// back to the default factory rather than requiring every constructor to
// nil-check its logger on every call site.
func Scoped(f Factory, scope string) Logger {
	if f == nil {
		f = NewDefaultFactory()
	}
	return f.NewLogger(scope)
}
