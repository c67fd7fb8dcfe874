package consumer

import (
	"flag"
	"fmt"
	"time"

	"github.com/grafana/dskit/flagext"

	"github.com/grafana/spyglass/pkg/frame"
	"github.com/grafana/spyglass/pkg/latency"
	"github.com/grafana/spyglass/pkg/otlpdecode"
)

const defaultCacheSize = 100

type Config struct {
	TraceCacheSize int `yaml:"trace_cache_size"`
	LogCacheSize   int `yaml:"log_cache_size"`

	Encoding otlpdecode.Encoding `yaml:"encoding"`

	// LatencyAttributes are span attributes whose numeric value replaces the
	// span duration in latency statistics. Empty means durations only.
	LatencyAttributes flagext.StringSliceCSV `yaml:"latency_attributes"`

	MaxDecompressedSize flagext.Bytes `yaml:"max_decompressed_size"`

	// LagExportInterval controls how often the consumer group lag is exported.
	// 0 disables the export.
	LagExportInterval time.Duration `yaml:"lag_export_interval"`

	// StartOnBoot starts consuming when the process starts instead of on the
	// first snapshot read.
	StartOnBoot bool `yaml:"start_on_boot"`

	// DropLogRate limits the lines logged per second for dropped or
	// undecompressable records. 0 disables the limit.
	DropLogRate  float64 `yaml:"drop_log_rate"`
	DropLogBurst int     `yaml:"drop_log_burst"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.Encoding = otlpdecode.EncodingProto
	cfg.LatencyAttributes = append(flagext.StringSliceCSV{}, latency.DefaultOverrideAttributes...)
	cfg.MaxDecompressedSize = frame.DefaultMaxDecompressedSize

	f.IntVar(&cfg.TraceCacheSize, prefix+".trace-cache-size", defaultCacheSize, "Number of trace messages kept in memory.")
	f.IntVar(&cfg.LogCacheSize, prefix+".log-cache-size", defaultCacheSize, "Number of log messages kept in memory.")
	f.StringVar((*string)(&cfg.Encoding), prefix+".encoding", string(cfg.Encoding), "Encoding of the record values, otlp_proto or otlp_json.")
	f.Var(&cfg.LatencyAttributes, prefix+".latency-attributes", "Comma separated span attributes preferred over the span duration for latency statistics.")
	f.Var(&cfg.MaxDecompressedSize, prefix+".max-decompressed-size", "Maximum size of a decompressed record value.")
	f.DurationVar(&cfg.LagExportInterval, prefix+".lag-export-interval", 15*time.Second, "How often the consumer group lag is exported. 0 to disable.")
	f.BoolVar(&cfg.StartOnBoot, prefix+".start-on-boot", false, "Start consuming at startup instead of on the first snapshot read.")
	f.Float64Var(&cfg.DropLogRate, prefix+".drop-log-rate", 1, "Lines per second logged about dropped records. 0 to log every record.")
	f.IntVar(&cfg.DropLogBurst, prefix+".drop-log-burst", 10, "Lines about dropped records logged at once before the rate applies.")
}

func (cfg *Config) Validate() error {
	if cfg.TraceCacheSize <= 0 {
		return fmt.Errorf("trace_cache_size must be greater than 0, got %d", cfg.TraceCacheSize)
	}

	if cfg.LogCacheSize <= 0 {
		return fmt.Errorf("log_cache_size must be greater than 0, got %d", cfg.LogCacheSize)
	}

	if err := cfg.Encoding.Validate(); err != nil {
		return err
	}

	if cfg.MaxDecompressedSize == 0 {
		return fmt.Errorf("max_decompressed_size must be greater than 0")
	}

	if cfg.DropLogRate < 0 {
		return fmt.Errorf("drop_log_rate must not be negative, got %g", cfg.DropLogRate)
	}

	if cfg.LagExportInterval < 0 {
		return fmt.Errorf("lag_export_interval must not be negative, got %s", cfg.LagExportInterval)
	}

	return nil
}

func (cfg *Config) latencyPolicy() latency.Policy {
	attrs := make([]string, 0, len(cfg.LatencyAttributes))
	for _, a := range cfg.LatencyAttributes {
		if a != "" {
			attrs = append(attrs, a)
		}
	}
	return latency.NewPolicy(attrs)
}
