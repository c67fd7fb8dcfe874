package consumer

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/spyglass/pkg/latency"
	"github.com/grafana/spyglass/pkg/normalize"
	"github.com/grafana/spyglass/pkg/recent"
)

func newTestStore(t *testing.T, traceCapacity, logCapacity int) (*Store, *metrics) {
	m := newMetrics(prometheus.NewRegistry())
	s, err := NewStore(traceCapacity, logCapacity, latency.NewPolicy(latency.DefaultOverrideAttributes), m)
	require.NoError(t, err)
	return s, m
}

func traceEntry(offset int64, durations ...int64) TraceEntry {
	spans := make([]normalize.Span, 0, len(durations))
	for _, d := range durations {
		spans = append(spans, normalize.Span{Duration: d})
	}
	return TraceEntry{ID: recent.OffsetIdentity(0, offset), Offset: offset, Data: spans}
}

func logEntry(offset int64) LogEntry {
	return LogEntry{ID: recent.OffsetIdentity(0, offset), Offset: offset, Data: []normalize.Log{{SeverityText: "INFO"}}}
}

func TestStoreInvalidCapacity(t *testing.T) {
	m := newMetrics(prometheus.NewRegistry())

	_, err := NewStore(0, 10, latency.Policy{}, m)
	require.Error(t, err)

	_, err = NewStore(10, 0, latency.Policy{}, m)
	require.Error(t, err)
}

func TestStoreEmptyView(t *testing.T) {
	s, _ := newTestStore(t, 3, 3)

	v := s.View()
	require.NotNil(t, v.Traces)
	require.NotNil(t, v.Logs)
	require.Empty(t, v.Traces)
	require.Empty(t, v.Logs)
	require.Equal(t, latency.Snapshot{}, v.Latency)
}

func TestStoreAdmitTraces(t *testing.T) {
	s, m := newTestStore(t, 3, 3)

	require.True(t, s.AdmitTraces(traceEntry(1, 10)))
	require.True(t, s.AdmitTraces(traceEntry(2, 20)))
	require.False(t, s.AdmitTraces(traceEntry(2, 20)))

	v := s.View()
	require.Len(t, v.Traces, 2)
	assert.Equal(t, 15.0, v.Latency.Avg)
	assert.Equal(t, 20.0, v.Latency.Max)

	require.True(t, s.AdmitTraces(traceEntry(3, 30)))
	require.True(t, s.AdmitTraces(traceEntry(4, 40)))

	v = s.View()
	require.Equal(t, []int64{2, 3, 4}, []int64{v.Traces[0].Offset, v.Traces[1].Offset, v.Traces[2].Offset})
	// statistics follow the evicted entry out
	assert.Equal(t, 20.0, v.Latency.Min)
	assert.Equal(t, 30.0, v.Latency.Avg)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.entriesAdmitted.WithLabelValues(kindTraces)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.entriesDuplicate.WithLabelValues(kindTraces)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.entriesEvicted.WithLabelValues(kindTraces)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.cacheEntries.WithLabelValues(kindTraces)))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.latency.WithLabelValues("max")))
}

func TestStoreAdmitLogsKeepsTraces(t *testing.T) {
	s, m := newTestStore(t, 3, 2)

	require.True(t, s.AdmitTraces(traceEntry(1, 10)))
	before := s.View()

	require.True(t, s.AdmitLogs(logEntry(1)))
	require.True(t, s.AdmitLogs(logEntry(2)))
	require.True(t, s.AdmitLogs(logEntry(3)))
	require.False(t, s.AdmitLogs(logEntry(3)))

	v := s.View()
	require.Len(t, v.Logs, 2)
	require.Equal(t, int64(2), v.Logs[0].Offset)
	require.Equal(t, before.Traces, v.Traces)
	require.Equal(t, before.Latency, v.Latency)

	// a published view is never modified afterwards
	require.Empty(t, before.Logs)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.entriesEvicted.WithLabelValues(kindLogs)))
}

func TestStoreReset(t *testing.T) {
	s, _ := newTestStore(t, 3, 3)

	s.AdmitTraces(traceEntry(1, 10))
	s.AdmitLogs(logEntry(1))
	s.Reset()

	v := s.View()
	require.Empty(t, v.Traces)
	require.Empty(t, v.Logs)
	require.Equal(t, latency.Snapshot{}, v.Latency)

	require.True(t, s.AdmitTraces(traceEntry(1, 10)))
}

func TestStoreViewIsConsistent(t *testing.T) {
	s, _ := newTestStore(t, 10, 10)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}

				v := s.View()
				// every entry carries one span whose duration equals its offset
				var expected float64
				for _, e := range v.Traces {
					expected = max(expected, float64(e.Offset))
				}
				assert.Equal(t, expected, v.Latency.Max)
				assert.LessOrEqual(t, len(v.Traces), 10)
			}
		}()
	}

	for o := int64(1); o <= 500; o++ {
		s.AdmitTraces(traceEntry(o, o))
	}
	close(stop)
	wg.Wait()
}
