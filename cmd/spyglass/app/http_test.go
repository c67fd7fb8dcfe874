package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-kit/log"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/grafana/spyglass/modules/consumer"
	"github.com/grafana/spyglass/pkg/latency"
	"github.com/grafana/spyglass/pkg/normalize"
	"github.com/grafana/spyglass/pkg/recent"
	"github.com/grafana/spyglass/pkg/util"
)

type mockSource struct {
	triggers atomic.Int32
	snapshot consumer.Snapshot
	spans    []normalize.Span
}

func (m *mockSource) TriggerStart() {
	m.triggers.Inc()
}

func (m *mockSource) Snapshot() consumer.Snapshot {
	return m.snapshot
}

func (m *mockSource) Trace(id string) []normalize.Span {
	var out []normalize.Span
	for _, s := range m.spans {
		if util.EqualIDs(s.TraceID, id) {
			out = append(out, s)
		}
	}
	return out
}

func newTestServer(t *testing.T, source telemetrySource) *httptest.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "spyglass_test_total", Help: "test"}))

	srv := httptest.NewServer(newRouter(*NewDefaultConfig(), source, reg, log.NewNopLogger()))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, body
}

func TestTelemetryHandler(t *testing.T) {
	span := normalize.Span{TraceID: "AABBCC", SpanID: "01", Name: "pay", StartTime: 1000, EndTime: 1050, Duration: 50, Attributes: normalize.Map{}}
	source := &mockSource{
		snapshot: consumer.Snapshot{
			Traces: []consumer.TraceEntry{
				recent.NewEntry(0, 7, nil, time.UnixMilli(1000), []normalize.Span{span}),
			},
			Logs:            []consumer.LogEntry{},
			Latency:         latency.Compute([]float64{50}),
			ConsumerRunning: true,
		},
	}
	srv := newTestServer(t, source)

	res, body := get(t, srv.URL+PathTelemetry)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, mimeTypeJSON, res.Header.Get(headerContentType))
	assert.Equal(t, "5000", res.Header.Get(HeaderRefreshInterval))
	assert.EqualValues(t, 1, source.triggers.Load())

	var out map[string]any
	require.NoError(t, jsoniter.Unmarshal(body, &out))
	assert.Equal(t, true, out["consumerRunning"])
	assert.NotContains(t, out, "error")
	assert.NotContains(t, out, "details")
	assert.Equal(t, []any{}, out["logs"])

	traces := out["traces"].([]any)
	require.Len(t, traces, 1)
	entry := traces[0].(map[string]any)
	assert.Equal(t, 7.0, entry["offset"])
	assert.Equal(t, 1000.0, entry["timestamp"])
	data := entry["data"].([]any)
	assert.Equal(t, "pay", data[0].(map[string]any)["name"])
	assert.Equal(t, 50.0, data[0].(map[string]any)["duration"])

	lat := out["latency"].(map[string]any)
	assert.Equal(t, 50.0, lat["avg"])
	assert.Equal(t, 50.0, lat["p99"])
}

func TestTelemetryHandlerReportsFailure(t *testing.T) {
	source := &mockSource{
		snapshot: consumer.Snapshot{
			Traces:  []consumer.TraceEntry{},
			Logs:    []consumer.LogEntry{},
			Error:   consumer.ErrorMessage,
			Details: "waiting for kafka broker: connection refused",
		},
	}
	srv := newTestServer(t, source)

	// a failed consumer is still a 200
	res, body := get(t, srv.URL+PathTelemetry)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var out map[string]any
	require.NoError(t, jsoniter.Unmarshal(body, &out))
	assert.Equal(t, false, out["consumerRunning"])
	assert.Equal(t, consumer.ErrorMessage, out["error"])
	assert.Equal(t, "waiting for kafka broker: connection refused", out["details"])
	assert.Equal(t, []any{}, out["traces"])

	get(t, srv.URL+PathTelemetry)
	assert.EqualValues(t, 2, source.triggers.Load())
}

func TestTraceByIDHandler(t *testing.T) {
	source := &mockSource{
		spans: []normalize.Span{
			{TraceID: "DDEE0000000000000000000000000001", SpanID: "01", Name: "ship", Attributes: normalize.Map{}},
			{TraceID: "DDEE0000000000000000000000000001", SpanID: "02", Name: "notify", Attributes: normalize.Map{}},
			{TraceID: "AABBCC", SpanID: "03", Name: "pay", Attributes: normalize.Map{}},
		},
	}
	srv := newTestServer(t, source)

	tt := []struct {
		name   string
		id     string
		status int
		spans  int
	}{
		{name: "hex", id: "DDEE0000000000000000000000000001", status: http.StatusOK, spans: 2},
		{name: "lower hex", id: "ddee0000000000000000000000000001", status: http.StatusOK, spans: 2},
		{name: "base64", id: "3e4AAAAAAAAAAAAAAAAAAQ==", status: http.StatusOK, spans: 2},
		{name: "absent", id: "0102", status: http.StatusNotFound},
		{name: "malformed", id: "not-an-id!", status: http.StatusBadRequest},
		{name: "word", id: "notanid", status: http.StatusBadRequest},
		{name: "short base64", id: "zzzz", status: http.StatusBadRequest},
		{name: "odd length hex", id: "ABC", status: http.StatusBadRequest},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			res, body := get(t, srv.URL+"/api/traces/"+tc.id)
			require.Equal(t, tc.status, res.StatusCode, string(body))
			if tc.status != http.StatusOK {
				return
			}

			var out TraceResponse
			require.NoError(t, jsoniter.Unmarshal(body, &out))
			assert.Len(t, out.Spans, tc.spans)
		})
	}

	// reads of a single trace do not start the consumer
	assert.EqualValues(t, 0, source.triggers.Load())
}

func TestOperationalHandlers(t *testing.T) {
	srv := newTestServer(t, &mockSource{})

	res, body := get(t, srv.URL+PathReady)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "ready")

	res, body = get(t, srv.URL+PathMetrics)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "spyglass_test_total")

	res, body = get(t, srv.URL+PathConfig)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "trace_topic: otlp_spans")

	res, _ = get(t, srv.URL+"/api/unknown")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}
