package ingest

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/twmb/franz-go/pkg/kgo"
)

type logger struct {
	logger log.Logger
	level  kgo.LogLevel
}

// newLogger bridges franz-go client logs into a go-kit logger. Only messages
// at or above lvl reach the go-kit logger.
func newLogger(l log.Logger, lvl kgo.LogLevel) kgo.Logger {
	return &logger{
		logger: log.With(l, "component", "kafka_client"),
		level:  lvl,
	}
}

func (l *logger) Level() kgo.LogLevel {
	return l.level
}

func (l *logger) Log(lvl kgo.LogLevel, msg string, keyvals ...any) {
	if lvl == kgo.LogLevelNone {
		return
	}

	keyvals = append([]any{"msg", msg}, keyvals...)

	switch lvl {
	case kgo.LogLevelDebug:
		level.Debug(l.logger).Log(keyvals...)
	case kgo.LogLevelInfo:
		level.Info(l.logger).Log(keyvals...)
	case kgo.LogLevelWarn:
		level.Warn(l.logger).Log(keyvals...)
	case kgo.LogLevelError:
		level.Error(l.logger).Log(keyvals...)
	}
}
