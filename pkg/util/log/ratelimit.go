package log

import (
	kitlog "github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

// RateLimitedLogger forwards at most logsPerSecond lines, with bursts of up to
// burst lines, to the wrapped logger. The number of lines dropped since the
// last forwarded one is attached to it as "discarded".
type RateLimitedLogger struct {
	next    kitlog.Logger
	limiter *rate.Limiter

	discarded        atomic.Int64
	discardedCounter prometheus.Counter
}

// NewRateLimitedLogger wraps logger. A non-positive logsPerSecond disables
// the limit. discarded may be nil.
func NewRateLimitedLogger(logger kitlog.Logger, logsPerSecond float64, burst int, discarded prometheus.Counter) *RateLimitedLogger {
	limit := rate.Limit(logsPerSecond)
	if logsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}

	return &RateLimitedLogger{
		next:             logger,
		limiter:          rate.NewLimiter(limit, burst),
		discardedCounter: discarded,
	}
}

func (l *RateLimitedLogger) Log(keyvals ...interface{}) error {
	if !l.limiter.Allow() {
		l.discarded.Inc()
		if l.discardedCounter != nil {
			l.discardedCounter.Inc()
		}
		return nil
	}

	if n := l.discarded.Swap(0); n > 0 {
		keyvals = append(keyvals, "discarded", n)
	}
	return l.next.Log(keyvals...)
}
