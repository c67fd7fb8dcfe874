package log

import (
	"io"
	"os"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
)

// Logger is the process logger. It discards everything until InitLogger is
// called. Components take their logger as a constructor argument instead.
var Logger = kitlog.NewNopLogger()

// InitLogger initialises the global gokit logger and returns that logger.
func InitLogger(logFormat string, logLevel dslog.Level) kitlog.Logger {
	Logger = NewLogger(os.Stderr, logFormat, logLevel)
	return Logger
}

// NewLogger returns a logger writing logfmt or json lines to w, dropping
// entries below logLevel.
func NewLogger(w io.Writer, logFormat string, logLevel dslog.Level) kitlog.Logger {
	logger := dslog.NewGoKitWithWriter(logFormat, kitlog.NewSyncWriter(w))

	// use UTC timestamps and skip 5 stack frames.
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC, "caller", kitlog.Caller(5))

	if logLevel.Option == nil {
		return logger
	}
	// Must put the level filter last for efficiency.
	return level.NewFilter(logger, logLevel.Option)
}
