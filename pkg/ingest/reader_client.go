// Forked from https://github.com/grafana/loki/blob/fa6ef0a2caeeb4d31700287e9096e5f2c3c3a0d4/pkg/kafka/partitionring/consumer/client.go

package ingest

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/backoff"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
)

// NewReaderClient returns a kgo.Client subscribed to the trace and log topics
// as a member of the configured consumer group.
func NewReaderClient(kafkaCfg KafkaConfig, metrics *kprom.Metrics, logger log.Logger, opts ...kgo.Opt) (*kgo.Client, error) {
	const fetchMaxBytes = 100_000_000

	resetOffset := kgo.NewOffset().AtEnd()
	if kafkaCfg.ConsumeFromBeginning {
		resetOffset = kgo.NewOffset().AtStart()
	}

	opts = append(opts, commonKafkaClientOptions(kafkaCfg, metrics, logger)...)
	opts = append(opts,
		kgo.ConsumerGroup(kafkaCfg.ConsumerGroup),
		kgo.ConsumeTopics(kafkaCfg.Topics()...),
		kgo.ConsumeResetOffset(resetOffset),
		kgo.SessionTimeout(kafkaCfg.SessionTimeout),
		kgo.HeartbeatInterval(kafkaCfg.HeartbeatInterval),

		kgo.FetchMinBytes(1),
		kgo.FetchMaxBytes(fetchMaxBytes),
		kgo.FetchMaxWait(kafkaCfg.FetchMaxWait),
		kgo.FetchMaxPartitionBytes(50_000_000),

		// BrokerMaxReadBytes sets the maximum response size that can be read from
		// Kafka. This is a safety measure to avoid OOMing on invalid responses.
		// franz-go recommendation is to set it 2x FetchMaxBytes.
		kgo.BrokerMaxReadBytes(2*fetchMaxBytes),
	)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating kafka client")
	}
	return client, nil
}

func commonKafkaClientOptions(cfg KafkaConfig, metrics *kprom.Metrics, logger log.Logger) []kgo.Opt {
	opts := []kgo.Opt{
		kgo.ClientID(cfg.ClientID),
		kgo.SeedBrokers(cfg.Address...),
		kgo.DialTimeout(cfg.DialTimeout),
		kgo.WithLogger(newLogger(logger, kgo.LogLevelInfo)),

		// A cluster metadata update is a request sent to a broker and getting back the map of partitions and
		// the leader broker for each partition. The cluster metadata can be updated (a) periodically or
		// (b) when some events occur (e.g. backoff due to errors).
		//
		// MetadataMinAge() sets the minimum time between two cluster metadata updates due to events.
		// MetadataMaxAge() sets how frequently the periodic update should occur.
		kgo.MetadataMinAge(time.Second),
		kgo.MetadataMaxAge(time.Minute),
	}
	if metrics != nil {
		opts = append(opts, kgo.WithHooks(metrics))
	}
	return opts
}

// WaitForKafkaBroker pings the cluster until a broker answers or the connect
// backoff gives up.
func WaitForKafkaBroker(ctx context.Context, client *kgo.Client, cfg backoff.Config, logger log.Logger) error {
	boff := backoff.New(ctx, cfg)

	var err error
	for boff.Ongoing() {
		err = client.Ping(ctx)
		if err == nil {
			return nil
		}

		level.Warn(logger).Log("msg", "kafka broker not ready yet", "attempt", boff.NumRetries()+1, "err", err)
		boff.Wait()
	}

	// Handle the case the context was canceled before the first attempt.
	if err == nil {
		err = boff.Err()
	}
	return errors.Wrap(err, "waiting for kafka broker")
}

func NewReaderClientMetrics(component string, reg prometheus.Registerer) *kprom.Metrics {
	return kprom.NewMetrics("spyglass_ingest_reader",
		kprom.Registerer(prometheus.WrapRegistererWith(prometheus.Labels{"component": component}, reg)),
		// Do not export the client ID, because we use it to specify options to the backend.
		kprom.FetchAndProduceDetail(kprom.Batches, kprom.Records, kprom.CompressedBytes, kprom.UncompressedBytes))
}
