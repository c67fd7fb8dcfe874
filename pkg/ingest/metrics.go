package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
)

const (
	labelGroup     = "group"
	labelTopic     = "topic"
	labelPartition = "partition"
)

// LagMetrics are the consumer group lag gauges, per topic and partition.
type LagMetrics struct {
	partitionLag *prometheus.GaugeVec
}

func NewLagMetrics(reg prometheus.Registerer) *LagMetrics {
	return &LagMetrics{
		partitionLag: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "spyglass",
			Subsystem: "ingest",
			Name:      "group_partition_lag",
			Help:      "Lag of a partition.",
		}, []string{labelGroup, labelTopic, labelPartition}),
	}
}

// Reset drops every exported lag series of the group, so a stopped consumer
// does not keep exporting stale data.
func (m *LagMetrics) Reset(group string) {
	m.partitionLag.DeletePartialMatch(prometheus.Labels{labelGroup: group})
}

func (m *LagMetrics) set(group string, lag kadm.GroupLag) {
	for topic, partitions := range lag {
		for p, l := range partitions {
			if l.Err != nil {
				continue
			}
			m.partitionLag.WithLabelValues(group, topic, strconv.Itoa(int(p))).Set(float64(l.Lag))
		}
	}
}

// ExportPartitionLagMetrics periodically queries Kafka for the lag of the
// consumer group on both topics until ctx is done. It blocks, callers run it in
// a goroutine.
func ExportPartitionLagMetrics(ctx context.Context, admClient *kadm.Client, logger log.Logger, cfg KafkaConfig, interval time.Duration, metrics *LagMetrics) {
	group := cfg.ConsumerGroup
	defer metrics.Reset(group)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lag, err := getGroupLag(ctx, admClient, cfg.Topics(), group)
			if err != nil {
				level.Error(logger).Log("msg", "metric lag failed:", "err", err)
				continue
			}
			metrics.set(group, lag)
		case <-ctx.Done():
			return
		}
	}
}

// getGroupLag is similar to `kadm.Client.Lag` but works when the group doesn't have live participants
// yet, which is the case right after the reader joins.
// Similar to `kadm.CalculateGroupLagWithStartOffsets`, it takes into account that the group may not have any commits.
//
// The lag is the difference between the last produced offset (high watermark) and the offset committed
// in the consumer group. If the group never committed an offset for a partition, the lag is the
// difference between the last produced offset and the start of the partition.
func getGroupLag(ctx context.Context, admClient *kadm.Client, topics []string, group string) (kadm.GroupLag, error) {
	offsets, err := admClient.FetchOffsets(ctx, group)
	if err != nil {
		if !errors.Is(err, kerr.GroupIDNotFound) {
			return nil, fmt.Errorf("fetch offsets: %w", err)
		}
	}
	if err := offsets.Error(); err != nil {
		return nil, fmt.Errorf("fetch offsets got error in response: %w", err)
	}

	startOffsets, err := admClient.ListStartOffsets(ctx, topics...)
	if err != nil {
		return nil, err
	}
	endOffsets, err := admClient.ListEndOffsets(ctx, topics...)
	if err != nil {
		return nil, err
	}

	descrGroup := kadm.DescribedGroup{
		// "Empty" makes the calculation rely on commits only, instead of the
		// partitions assigned to the members of the group.
		State: "Empty",
	}
	return kadm.CalculateGroupLagWithStartOffsets(descrGroup, offsets, startOffsets, endOffsets), nil
}
