package consumer

import (
	"fmt"
	"iter"
	"slices"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/grafana/spyglass/pkg/frame"
	"github.com/grafana/spyglass/pkg/normalize"
	"github.com/grafana/spyglass/pkg/otlpdecode"
	"github.com/grafana/spyglass/pkg/recent"
	util_log "github.com/grafana/spyglass/pkg/util/log"
)

// Pipeline turns one Kafka record into cache entries: it removes the
// compression envelope, decodes the OTLP batch, flattens it and admits it to
// the store.
type Pipeline struct {
	topics  map[string]otlpdecode.Kind
	frames  *frame.Decoder
	decoder *otlpdecode.Decoder
	store   *Store

	metrics *metrics
	// logger is rate limited, a poisoned topic produces one line per record.
	logger log.Logger
}

// newRecordLogger returns the logger used for per record problems.
func newRecordLogger(cfg Config, logger log.Logger, m *metrics) log.Logger {
	return util_log.NewRateLimitedLogger(logger, cfg.DropLogRate, cfg.DropLogBurst, m.dropLogsDiscarded)
}

// NewPipeline builds a pipeline. logger receives a line for every dropped or
// undecompressable record and is expected to be rate limited.
func NewPipeline(traceTopic, logTopic string, frames *frame.Decoder, decoder *otlpdecode.Decoder, store *Store, m *metrics, logger log.Logger) *Pipeline {
	return &Pipeline{
		topics: map[string]otlpdecode.Kind{
			traceTopic: otlpdecode.KindTraces,
			logTopic:   otlpdecode.KindLogs,
		},
		frames:  frames,
		decoder: decoder,
		store:   store,
		metrics: m,
		logger:  logger,
	}
}

// Consume processes rec and logs why it was dropped, if it was.
func (p *Pipeline) Consume(rec *kgo.Record) {
	if err := p.Process(rec); err != nil {
		level.Error(p.logger).Log("msg", "dropping record", "topic", rec.Topic, "partition", rec.Partition, "offset", rec.Offset, "err", err)
	}
}

// Process handles a single record. A record that cannot be processed is
// dropped and the returned error describes why; the store is left untouched.
func (p *Pipeline) Process(rec *kgo.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.recoveredPanics.Inc()
			err = fmt.Errorf("panic processing record: %v", r)
		}
	}()

	kind, ok := p.topics[rec.Topic]
	if !ok {
		return fmt.Errorf("record from unexpected topic %q", rec.Topic)
	}

	p.metrics.recordsConsumed.WithLabelValues(rec.Topic).Inc()
	if len(rec.Value) == 0 {
		p.metrics.recordsEmpty.WithLabelValues(rec.Topic).Inc()
		return nil
	}

	res := p.frames.Decompress(rec.Value)
	if res.Fallback() {
		p.metrics.decompressFallbacks.WithLabelValues(res.Codec.String()).Inc()
		level.Warn(p.logger).Log("msg", "failed to decompress record, decoding it as is",
			"topic", rec.Topic, "partition", rec.Partition, "offset", rec.Offset, "codec", res.Codec, "err", res.Err)
	}

	switch kind {
	case otlpdecode.KindTraces:
		td, err := p.decoder.DecodeTraces(res.Bytes)
		if err != nil {
			p.metrics.decodeFailures.WithLabelValues(rec.Topic).Inc()
			return err
		}
		p.store.AdmitTraces(recent.NewEntry(rec.Partition, rec.Offset, rec.Key, rec.Timestamp, collect(normalize.Spans(td))))

	case otlpdecode.KindLogs:
		ld, err := p.decoder.DecodeLogs(res.Bytes)
		if err != nil {
			p.metrics.decodeFailures.WithLabelValues(rec.Topic).Inc()
			return err
		}
		p.store.AdmitLogs(recent.NewEntry(rec.Partition, rec.Offset, rec.Key, rec.Timestamp, collect(normalize.Logs(ld))))
	}

	return nil
}

// collect never returns nil so empty batches encode as [].
func collect[T any](seq iter.Seq[T]) []T {
	return slices.AppendSeq([]T{}, seq)
}
