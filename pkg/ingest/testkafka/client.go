package testkafka

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kfake"
	"github.com/twmb/franz-go/pkg/kgo"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/proto"
)

// NewCluster starts an in-process single broker cluster with the given topics
// and returns its address.
func NewCluster(t testing.TB, partitions int32, topics ...string) (*kfake.Cluster, string) {
	cluster, err := kfake.NewCluster(kfake.NumBrokers(1), kfake.SeedTopics(partitions, topics...))
	require.NoError(t, err)
	t.Cleanup(cluster.Close)

	return cluster, cluster.ListenAddrs()[0]
}

func NewKafkaClient(t testing.TB, address string) *kgo.Client {
	writeClient, err := kgo.NewClient(
		kgo.SeedBrokers(address),
		kgo.AllowAutoTopicCreation(),
		// We will choose the Partition of each record.
		kgo.RecordPartitioner(kgo.ManualPartitioner()),
	)
	require.NoError(t, err)
	t.Cleanup(writeClient.Close)

	return writeClient
}

type ReqOpts struct {
	Partition int32
	Key       []byte
	Time      time.Time
	// Snappy wraps the payload in a framed snappy stream.
	Snappy bool
}

func (r *ReqOpts) applyDefaults() {
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
}

// nolint: revive
func SendTraces(ctx context.Context, t testing.TB, client *kgo.Client, topic string, batch *tracepb.TracesData, opts ReqOpts) *kgo.Record {
	b, err := proto.Marshal(batch)
	require.NoError(t, err)
	return SendBytes(ctx, t, client, topic, b, opts)
}

// nolint: revive
func SendLogs(ctx context.Context, t testing.TB, client *kgo.Client, topic string, batch *logspb.LogsData, opts ReqOpts) *kgo.Record {
	b, err := proto.Marshal(batch)
	require.NoError(t, err)
	return SendBytes(ctx, t, client, topic, b, opts)
}

// SendBytes produces one record holding payload and returns it with the
// offset assigned by the broker.
// nolint: revive
func SendBytes(ctx context.Context, t testing.TB, client *kgo.Client, topic string, payload []byte, opts ReqOpts) *kgo.Record {
	opts.applyDefaults()

	if opts.Snappy {
		payload = SnappyFramed(t, payload)
	}

	rec := &kgo.Record{
		Topic:     topic,
		Partition: opts.Partition,
		Key:       opts.Key,
		Value:     payload,
		Timestamp: opts.Time,
	}

	res := client.ProduceSync(ctx, rec)
	require.NoError(t, res.FirstErr())

	produced, err := res.First()
	require.NoError(t, err)
	return produced
}

// SnappyFramed encodes b as a framed snappy stream.
func SnappyFramed(t testing.TB, b []byte) []byte {
	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	_, err := w.Write(b)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}
