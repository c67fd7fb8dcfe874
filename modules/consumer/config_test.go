package consumer

import (
	"flag"
	"testing"

	"github.com/grafana/dskit/flagext"
	"github.com/stretchr/testify/require"

	"github.com/grafana/spyglass/pkg/latency"
	"github.com/grafana/spyglass/pkg/otlpdecode"
)

func testConfig() Config {
	cfg := Config{}
	cfg.RegisterFlagsAndApplyDefaults("consumer", flag.NewFlagSet("", flag.PanicOnError))
	return cfg
}

func TestConfigDefaults(t *testing.T) {
	cfg := testConfig()

	require.NoError(t, cfg.Validate())
	require.Equal(t, 100, cfg.TraceCacheSize)
	require.Equal(t, 100, cfg.LogCacheSize)
	require.Equal(t, otlpdecode.EncodingProto, cfg.Encoding)
	require.False(t, cfg.StartOnBoot)
	require.Equal(t, 1.0, cfg.DropLogRate)
	require.Equal(t, 10, cfg.DropLogBurst)
	require.Equal(t, latency.DefaultOverrideAttributes, cfg.latencyPolicy().OverrideAttributes)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero trace cache", mutate: func(cfg *Config) { cfg.TraceCacheSize = 0 }},
		{name: "negative log cache", mutate: func(cfg *Config) { cfg.LogCacheSize = -1 }},
		{name: "unknown encoding", mutate: func(cfg *Config) { cfg.Encoding = "avro" }},
		{name: "no decompression budget", mutate: func(cfg *Config) { cfg.MaxDecompressedSize = 0 }},
		{name: "negative lag interval", mutate: func(cfg *Config) { cfg.LagExportInterval = -1 }},
		{name: "negative drop log rate", mutate: func(cfg *Config) { cfg.DropLogRate = -1 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestConfigLatencyAttributes(t *testing.T) {
	cfg := testConfig()

	cfg.LatencyAttributes = flagext.StringSliceCSV{""}
	require.Empty(t, cfg.latencyPolicy().OverrideAttributes)

	cfg.LatencyAttributes = flagext.StringSliceCSV{"queue.latency_ms"}
	require.Equal(t, []string{"queue.latency_ms"}, cfg.latencyPolicy().OverrideAttributes)
}
