package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/grafana/dskit/flagext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/spyglass/pkg/ingest"
	"github.com/grafana/spyglass/pkg/ingest/testkafka"
)

func testAppConfig(address string) Config {
	cfg := NewDefaultConfig()
	cfg.Server.HTTPListenAddress = "127.0.0.1"
	cfg.Server.HTTPListenPort = 0
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Kafka.Address = flagext.StringSliceCSV{address}
	cfg.Kafka.FetchMaxWait = 100 * time.Millisecond
	cfg.Consumer.LagExportInterval = 0
	return *cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testAppConfig("127.0.0.1:1")
	cfg.Consumer.LogCacheSize = -1

	_, err := New(cfg, log.NewNopLogger(), prometheus.NewRegistry(), prometheus.NewRegistry())
	require.ErrorContains(t, err, "log_cache_size")
}

func TestAppRun(t *testing.T) {
	_, address := testkafka.NewCluster(t, 1, ingest.DefaultTraceTopic, ingest.DefaultLogTopic)

	cfg := testAppConfig(address)
	cfg.Consumer.StartOnBoot = true

	reg := prometheus.NewRegistry()
	a, err := New(cfg, log.NewNopLogger(), reg, reg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- a.Run(ctx)
	}()

	require.Eventually(t, a.consumer.Running, 10*time.Second, 10*time.Millisecond)

	// the routes are reachable without a listener
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, PathTelemetry, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"consumerRunning":true`)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, PathMetrics, nil))
	assert.Contains(t, rec.Body.String(), "spyglass_consumer_running 1")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.False(t, a.consumer.Running())
}
