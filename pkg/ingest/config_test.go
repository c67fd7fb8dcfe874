package ingest

import (
	"flag"
	"testing"
	"time"

	"github.com/grafana/dskit/flagext"
	"github.com/stretchr/testify/require"
)

func defaultKafkaConfig() KafkaConfig {
	cfg := KafkaConfig{}
	cfg.RegisterFlags(flag.NewFlagSet("", flag.PanicOnError))
	return cfg
}

func TestKafkaConfigDefaults(t *testing.T) {
	cfg := defaultKafkaConfig()

	require.NoError(t, cfg.Validate())
	require.Equal(t, flagext.StringSliceCSV{"localhost:9092"}, cfg.Address)
	require.Equal(t, []string{DefaultTraceTopic, DefaultLogTopic}, cfg.Topics())
	require.False(t, cfg.ConsumeFromBeginning)
	require.Equal(t, 100*time.Millisecond, cfg.ConnectBackoff.MinBackoff)
	require.Equal(t, 8, cfg.ConnectBackoff.MaxRetries)
}

func TestKafkaConfigFlags(t *testing.T) {
	cfg := KafkaConfig{}
	fs := flag.NewFlagSet("", flag.PanicOnError)
	cfg.RegisterFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"-kafka.address=broker-1:9092,broker-2:9092",
		"-kafka.trace-topic=spans",
		"-kafka.consume-from-beginning",
	}))

	require.Equal(t, flagext.StringSliceCSV{"broker-1:9092", "broker-2:9092"}, cfg.Address)
	require.Equal(t, "spans", cfg.TraceTopic)
	require.True(t, cfg.ConsumeFromBeginning)
}

func TestKafkaConfigValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*KafkaConfig)
		expected error
	}{
		{
			name:     "no address",
			mutate:   func(cfg *KafkaConfig) { cfg.Address = nil },
			expected: ErrMissingKafkaAddress,
		},
		{
			name:     "no log topic",
			mutate:   func(cfg *KafkaConfig) { cfg.LogTopic = "" },
			expected: ErrMissingTopic,
		},
		{
			name:     "same topic",
			mutate:   func(cfg *KafkaConfig) { cfg.LogTopic = cfg.TraceTopic },
			expected: ErrSameTopic,
		},
		{
			name:     "no consumer group",
			mutate:   func(cfg *KafkaConfig) { cfg.ConsumerGroup = "" },
			expected: ErrMissingConsumerGroup,
		},
		{
			name:     "heartbeat above session timeout",
			mutate:   func(cfg *KafkaConfig) { cfg.HeartbeatInterval = time.Minute },
			expected: ErrInvalidHeartbeatPeriod,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultKafkaConfig()
			tc.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), tc.expected)
		})
	}
}
