package app

import (
	"flag"
	"fmt"
	"time"

	dslog "github.com/grafana/dskit/log"
	"go.uber.org/multierr"

	"github.com/grafana/spyglass/modules/consumer"
	"github.com/grafana/spyglass/pkg/ingest"
)

// Config is the root config for App.
type Config struct {
	Server   ServerConfig       `yaml:"server,omitempty"`
	Kafka    ingest.KafkaConfig `yaml:"kafka,omitempty"`
	Consumer consumer.Config    `yaml:"consumer,omitempty"`
}

type ServerConfig struct {
	HTTPListenAddress string        `yaml:"http_listen_address"`
	HTTPListenPort    int           `yaml:"http_listen_port"`
	LogLevel          dslog.Level   `yaml:"log_level"`
	LogFormat         string        `yaml:"log_format"`
	ShutdownTimeout   time.Duration `yaml:"graceful_shutdown_timeout"`

	// RefreshInterval is advertised to clients polling the telemetry endpoint.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

func (c *ServerConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	c.LogLevel.RegisterFlags(f)

	f.StringVar(&c.HTTPListenAddress, prefix+".http-listen-address", "", "HTTP server listen address.")
	f.IntVar(&c.HTTPListenPort, prefix+".http-listen-port", 3100, "HTTP server listen port.")
	f.StringVar(&c.LogFormat, "log.format", "logfmt", "Output log messages in the given format. Valid formats: [logfmt, json]")
	f.DurationVar(&c.ShutdownTimeout, prefix+".graceful-shutdown-timeout", 30*time.Second, "Timeout for graceful shutdowns.")
	f.DurationVar(&c.RefreshInterval, prefix+".refresh-interval", 5*time.Second, "How often clients are told to poll for new telemetry.")
}

func (c *ServerConfig) Validate() error {
	if c.HTTPListenPort < 0 || c.HTTPListenPort > 65535 {
		return fmt.Errorf("invalid http_listen_port %d", c.HTTPListenPort)
	}
	if c.LogFormat != "logfmt" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log_format %q, expected logfmt or json", c.LogFormat)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be greater than 0, got %s", c.RefreshInterval)
	}
	return nil
}

func NewDefaultConfig() *Config {
	defaultConfig := &Config{}
	defaultFS := flag.NewFlagSet("", flag.PanicOnError)
	defaultConfig.RegisterFlagsAndApplyDefaults("", defaultFS)
	return defaultConfig
}

// RegisterFlagsAndApplyDefaults registers flag.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	c.Server.RegisterFlagsAndApplyDefaults(prefixConfig(prefix, "server"), f)
	c.Kafka.RegisterFlagsWithPrefix(prefixConfig(prefix, "kafka"), f)
	c.Consumer.RegisterFlagsAndApplyDefaults(prefixConfig(prefix, "consumer"), f)
}

// Validate returns the first config error that prevents spyglass from starting.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid server config: %w", err))
	}
	if err := c.Kafka.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid kafka config: %w", err))
	}
	if err := c.Consumer.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid consumer config: %w", err))
	}

	if len(errs) > 0 {
		return multierr.Combine(errs...)
	}
	return nil
}

// ConfigWarning bundles message and explanation strings in one structure.
type ConfigWarning struct {
	Message string
	Explain string
}

var (
	warnLatencyAttributesCleared = ConfigWarning{
		Message: "consumer.latency_attributes is empty",
		Explain: "Latency statistics only use span durations, attribute overrides are ignored",
	}
	warnLagExportFasterThanFetch = ConfigWarning{
		Message: "consumer.lag_export_interval < kafka.fetch_max_wait",
		Explain: "Lag is exported more often than records are fetched",
	}
	warnRefreshFasterThanFetch = ConfigWarning{
		Message: "server.refresh_interval < kafka.fetch_max_wait",
		Explain: "Clients may poll more often than new records can arrive",
	}
	warnLargeCache = ConfigWarning{
		Message: "consumer.trace_cache_size or consumer.log_cache_size is above 10000",
		Explain: "Every snapshot copies the whole cache, large caches make reads expensive",
	}
)

// CheckConfig checks if config values are suspect and returns a bundled list of warnings and explanation.
func (c *Config) CheckConfig() []ConfigWarning {
	var warnings []ConfigWarning

	if len(c.Consumer.LatencyAttributes) == 0 {
		warnings = append(warnings, warnLatencyAttributesCleared)
	}

	if c.Consumer.LagExportInterval > 0 && c.Consumer.LagExportInterval < c.Kafka.FetchMaxWait {
		warnings = append(warnings, warnLagExportFasterThanFetch)
	}

	if c.Server.RefreshInterval < c.Kafka.FetchMaxWait {
		warnings = append(warnings, warnRefreshFasterThanFetch)
	}

	if c.Consumer.TraceCacheSize > 10_000 || c.Consumer.LogCacheSize > 10_000 {
		warnings = append(warnings, warnLargeCache)
	}

	return warnings
}

func prefixConfig(prefix string, option string) string {
	if len(prefix) > 0 {
		return prefix + "." + option
	}
	return option
}
