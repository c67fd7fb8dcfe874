package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	kindTraces = "traces"
	kindLogs   = "logs"
)

type metrics struct {
	recordsConsumed     *prometheus.CounterVec
	recordsEmpty        *prometheus.CounterVec
	decodeFailures      *prometheus.CounterVec
	decompressFallbacks *prometheus.CounterVec
	recoveredPanics     prometheus.Counter
	fetchErrors         prometheus.Counter
	dropLogsDiscarded   prometheus.Counter

	entriesAdmitted  *prometheus.CounterVec
	entriesDuplicate *prometheus.CounterVec
	entriesEvicted   *prometheus.CounterVec
	cacheEntries     *prometheus.GaugeVec

	latency *prometheus.GaugeVec

	startAttempts *prometheus.CounterVec
	running       prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		recordsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spyglass",
			Subsystem: "consumer",
			Name:      "records_total",
			Help:      "The total number of records read from Kafka.",
		}, []string{"topic"}),
		recordsEmpty: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spyglass",
			Subsystem: "consumer",
			Name:      "empty_records_total",
			Help:      "The total number of records without a value.",
		}, []string{"topic"}),
		decodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spyglass",
			Subsystem: "consumer",
			Name:      "decode_failures_total",
			Help:      "The total number of records dropped because they could not be decoded.",
		}, []string{"topic"}),
		decompressFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spyglass",
			Subsystem: "consumer",
			Name:      "decompress_fallbacks_total",
			Help:      "The total number of records whose compression envelope could not be removed.",
		}, []string{"codec"}),
		recoveredPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "spyglass",
			Subsystem: "consumer",
			Name:      "recovered_panics_total",
			Help:      "The total number of panics recovered while processing a record.",
		}),
		fetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "spyglass",
			Subsystem: "consumer",
			Name:      "fetch_errors_total",
			Help:      "The total number of errors returned by Kafka fetches.",
		}),
		dropLogsDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "spyglass",
			Subsystem: "consumer",
			Name:      "drop_log_lines_discarded_total",
			Help:      "The total number of log lines about dropped records that were not written because of the log rate limit.",
		}),
		entriesAdmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spyglass",
			Subsystem: "cache",
			Name:      "entries_admitted_total",
			Help:      "The total number of entries added to the cache.",
		}, []string{"kind"}),
		entriesDuplicate: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spyglass",
			Subsystem: "cache",
			Name:      "entries_duplicate_total",
			Help:      "The total number of entries refused because they were already cached.",
		}, []string{"kind"}),
		entriesEvicted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spyglass",
			Subsystem: "cache",
			Name:      "entries_evicted_total",
			Help:      "The total number of entries evicted from the cache.",
		}, []string{"kind"}),
		cacheEntries: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "spyglass",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "The current number of cached entries.",
		}, []string{"kind"}),
		latency: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "spyglass",
			Name:      "span_latency_milliseconds",
			Help:      "Latency statistics over the cached spans.",
		}, []string{"stat"}),
		startAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spyglass",
			Subsystem: "consumer",
			Name:      "start_attempts_total",
			Help:      "The total number of attempts to start consuming.",
		}, []string{"result"}),
		running: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "spyglass",
			Subsystem: "consumer",
			Name:      "running",
			Help:      "1 while the consume loop is running.",
		}),
	}
}
