package consumer

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/grafana/spyglass/pkg/latency"
	"github.com/grafana/spyglass/pkg/normalize"
	"github.com/grafana/spyglass/pkg/recent"
)

type (
	TraceEntry = recent.Entry[[]normalize.Span]
	LogEntry   = recent.Entry[[]normalize.Log]
)

// View is an immutable picture of the cached data. Entries are ordered oldest
// first. Latency is always computed from exactly the Traces of the same view.
type View struct {
	Traces  []TraceEntry
	Logs    []LogEntry
	Latency latency.Snapshot
}

var emptyView = &View{Traces: []TraceEntry{}, Logs: []LogEntry{}}

// Store owns the trace and log caches. Writers are serialized and every
// accepted write publishes a new View, so readers never wait on writers and
// never see a half applied write.
type Store struct {
	mtx    sync.Mutex
	traces *recent.Cache[[]normalize.Span]
	logs   *recent.Cache[[]normalize.Log]
	policy latency.Policy

	view atomic.Pointer[View]

	metrics *metrics
}

func NewStore(traceCapacity, logCapacity int, policy latency.Policy, m *metrics) (*Store, error) {
	s := &Store{
		policy:  policy,
		metrics: m,
	}

	var err error
	s.traces, err = recent.New(traceCapacity, func(TraceEntry) {
		m.entriesEvicted.WithLabelValues(kindTraces).Inc()
	})
	if err != nil {
		return nil, err
	}
	s.logs, err = recent.New(logCapacity, func(LogEntry) {
		m.entriesEvicted.WithLabelValues(kindLogs).Inc()
	})
	if err != nil {
		return nil, err
	}

	s.view.Store(emptyView)
	return s, nil
}

// AdmitTraces adds e to the trace cache unless it is a duplicate and reports
// whether it was added.
func (s *Store) AdmitTraces(e TraceEntry) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !s.traces.Admit(e) {
		s.metrics.entriesDuplicate.WithLabelValues(kindTraces).Inc()
		return false
	}
	s.metrics.entriesAdmitted.WithLabelValues(kindTraces).Inc()

	prev := s.view.Load()
	traces := s.traces.Snapshot()
	stats := s.policy.FromEntries(traces)

	s.view.Store(&View{Traces: traces, Logs: prev.Logs, Latency: stats})

	s.metrics.cacheEntries.WithLabelValues(kindTraces).Set(float64(len(traces)))
	s.setLatencyMetrics(stats)
	return true
}

// AdmitLogs adds e to the log cache unless it is a duplicate and reports
// whether it was added.
func (s *Store) AdmitLogs(e LogEntry) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !s.logs.Admit(e) {
		s.metrics.entriesDuplicate.WithLabelValues(kindLogs).Inc()
		return false
	}
	s.metrics.entriesAdmitted.WithLabelValues(kindLogs).Inc()

	prev := s.view.Load()
	logs := s.logs.Snapshot()

	s.view.Store(&View{Traces: prev.Traces, Logs: logs, Latency: prev.Latency})

	s.metrics.cacheEntries.WithLabelValues(kindLogs).Set(float64(len(logs)))
	return true
}

// View returns the latest published view. It must not be modified.
func (s *Store) View() *View {
	return s.view.Load()
}

// Reset empties both caches.
func (s *Store) Reset() {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.traces.Reset()
	s.logs.Reset()
	s.view.Store(emptyView)

	s.metrics.cacheEntries.WithLabelValues(kindTraces).Set(0)
	s.metrics.cacheEntries.WithLabelValues(kindLogs).Set(0)
	s.setLatencyMetrics(latency.Snapshot{})
}

func (s *Store) setLatencyMetrics(stats latency.Snapshot) {
	s.metrics.latency.WithLabelValues("avg").Set(stats.Avg)
	s.metrics.latency.WithLabelValues("min").Set(stats.Min)
	s.metrics.latency.WithLabelValues("max").Set(stats.Max)
	s.metrics.latency.WithLabelValues("p95").Set(stats.P95)
	s.metrics.latency.WithLabelValues("p99").Set(stats.P99)
}
