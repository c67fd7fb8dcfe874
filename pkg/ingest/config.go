package ingest

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/grafana/dskit/backoff"
	"github.com/grafana/dskit/flagext"
)

const (
	DefaultTraceTopic = "otlp_spans"
	DefaultLogTopic   = "otlp_logs"
)

var (
	ErrMissingKafkaAddress    = errors.New("the Kafka address has not been configured")
	ErrMissingTopic           = errors.New("the trace and log topics must both be configured")
	ErrSameTopic              = errors.New("the trace and log topics must be different")
	ErrMissingConsumerGroup   = errors.New("the Kafka consumer group has not been configured")
	ErrInvalidHeartbeatPeriod = errors.New("the Kafka heartbeat interval must be lower than the session timeout")
)

// KafkaConfig holds the generic config for the Kafka backend.
type KafkaConfig struct {
	Address       flagext.StringSliceCSV `yaml:"address"`
	TraceTopic    string                 `yaml:"trace_topic"`
	LogTopic      string                 `yaml:"log_topic"`
	ClientID      string                 `yaml:"client_id"`
	ConsumerGroup string                 `yaml:"consumer_group"`
	DialTimeout   time.Duration          `yaml:"dial_timeout"`

	SessionTimeout    time.Duration `yaml:"session_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// FetchMaxWait bounds how long a single poll waits for new records.
	FetchMaxWait time.Duration `yaml:"fetch_max_wait"`

	// ConsumeFromBeginning replays the retained history of both topics when the
	// consumer group has no committed offsets. By default only new records are read.
	ConsumeFromBeginning bool `yaml:"consume_from_beginning"`

	ConnectBackoff backoff.Config `yaml:"connect_backoff"`
}

func (cfg *KafkaConfig) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("kafka", f)
}

func (cfg *KafkaConfig) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	cfg.Address = flagext.StringSliceCSV{"localhost:9092"}

	f.Var(&cfg.Address, prefix+".address", "Comma separated list of Kafka seed brokers.")
	f.StringVar(&cfg.TraceTopic, prefix+".trace-topic", DefaultTraceTopic, "Topic carrying OTLP trace batches.")
	f.StringVar(&cfg.LogTopic, prefix+".log-topic", DefaultLogTopic, "Topic carrying OTLP log batches.")
	f.StringVar(&cfg.ClientID, prefix+".client-id", "spyglass", "The Kafka client ID.")
	f.StringVar(&cfg.ConsumerGroup, prefix+".consumer-group", "spyglass", "The consumer group used to subscribe to both topics.")
	f.DurationVar(&cfg.DialTimeout, prefix+".dial-timeout", 2*time.Second, "The maximum time allowed to open a connection to a Kafka broker.")
	f.DurationVar(&cfg.SessionTimeout, prefix+".session-timeout", 30*time.Second, "The consumer group session timeout.")
	f.DurationVar(&cfg.HeartbeatInterval, prefix+".heartbeat-interval", 5*time.Second, "The consumer group heartbeat interval.")
	f.DurationVar(&cfg.FetchMaxWait, prefix+".fetch-max-wait", time.Second, "The maximum time a fetch request waits for new records.")
	f.BoolVar(&cfg.ConsumeFromBeginning, prefix+".consume-from-beginning", false, "Read the retained history of both topics instead of only new records.")

	cfg.ConnectBackoff.RegisterFlagsWithPrefix(prefix+".connect", f)
	cfg.ConnectBackoff.MinBackoff = 100 * time.Millisecond
	cfg.ConnectBackoff.MaxBackoff = 2 * time.Second
	cfg.ConnectBackoff.MaxRetries = 8
}

func (cfg *KafkaConfig) Validate() error {
	if len(cfg.Address) == 0 {
		return ErrMissingKafkaAddress
	}
	if cfg.TraceTopic == "" || cfg.LogTopic == "" {
		return ErrMissingTopic
	}
	if cfg.TraceTopic == cfg.LogTopic {
		return ErrSameTopic
	}
	if cfg.ConsumerGroup == "" {
		return ErrMissingConsumerGroup
	}
	if cfg.HeartbeatInterval >= cfg.SessionTimeout {
		return ErrInvalidHeartbeatPeriod
	}
	if cfg.ConnectBackoff.MaxRetries < 0 {
		return fmt.Errorf("connect_backoff.max_retries must not be negative, got %d", cfg.ConnectBackoff.MaxRetries)
	}

	return nil
}

// Topics returns the topics the reader subscribes to.
func (cfg *KafkaConfig) Topics() []string {
	return []string{cfg.TraceTopic, cfg.LogTopic}
}
