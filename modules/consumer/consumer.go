package consumer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/atomic"

	"github.com/grafana/spyglass/pkg/frame"
	"github.com/grafana/spyglass/pkg/ingest"
	"github.com/grafana/spyglass/pkg/latency"
	"github.com/grafana/spyglass/pkg/normalize"
	"github.com/grafana/spyglass/pkg/otlpdecode"
	"github.com/grafana/spyglass/pkg/util"
)

const (
	consumerServiceName = "consumer"

	// ErrorMessage is reported in snapshots taken while the consumer is down
	// because of a failure.
	ErrorMessage = "Failed to retrieve telemetry data"

	startTimeout = time.Minute
)

var errClientClosed = errors.New("kafka client closed")

// ClientFactory creates the Kafka client used by one run of the consume loop.
type ClientFactory func(cfg ingest.KafkaConfig, metrics *kprom.Metrics, logger log.Logger) (*kgo.Client, error)

func defaultClientFactory(cfg ingest.KafkaConfig, metrics *kprom.Metrics, logger log.Logger) (*kgo.Client, error) {
	return ingest.NewReaderClient(cfg, metrics, logger)
}

// Snapshot is the cached data as served to readers.
type Snapshot struct {
	Traces          []TraceEntry     `json:"traces"`
	Logs            []LogEntry       `json:"logs"`
	Latency         latency.Snapshot `json:"latency"`
	ConsumerRunning bool             `json:"consumerRunning"`
	Error           string           `json:"error,omitempty"`
	Details         string           `json:"details,omitempty"`
}

// Consumer owns the consume loop. The loop is started at most once at a time;
// when it fails or stops it can be started again.
type Consumer struct {
	cfg      Config
	kafkaCfg ingest.KafkaConfig

	store    *Store
	pipeline *Pipeline

	newClient     ClientFactory
	clientMetrics *kprom.Metrics
	lagMetrics    *ingest.LagMetrics
	metrics       *metrics
	logger        log.Logger

	// mtx serializes Start and Stop. It is never taken by readers.
	mtx    sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	running  atomic.Bool
	starting atomic.Bool
	lastErr  atomic.Error

	// stopCtx is the parent of every start attempt and run of the loop.
	stopCtx    context.Context
	stopCancel context.CancelFunc

	// attemptsMtx orders attempts.Add against the cancellation of stopCtx,
	// so no attempt is added once Stop waits on them.
	attemptsMtx sync.Mutex
	attempts    sync.WaitGroup
}

func New(cfg Config, kafkaCfg ingest.KafkaConfig, newClient ClientFactory, logger log.Logger, reg prometheus.Registerer) (*Consumer, error) {
	decoder, err := otlpdecode.NewDecoder(cfg.Encoding)
	if err != nil {
		return nil, err
	}

	frames, err := frame.NewDecoder(int64(cfg.MaxDecompressedSize))
	if err != nil {
		return nil, err
	}

	m := newMetrics(reg)
	store, err := NewStore(cfg.TraceCacheSize, cfg.LogCacheSize, cfg.latencyPolicy(), m)
	if err != nil {
		return nil, err
	}

	if newClient == nil {
		newClient = defaultClientFactory
	}

	logger = log.With(logger, "component", consumerServiceName)
	c := &Consumer{
		cfg:           cfg,
		kafkaCfg:      kafkaCfg,
		store:         store,
		pipeline:      NewPipeline(kafkaCfg.TraceTopic, kafkaCfg.LogTopic, frames, decoder, store, m, newRecordLogger(cfg, logger, m)),
		newClient:     newClient,
		clientMetrics: ingest.NewReaderClientMetrics(consumerServiceName, reg),
		lagMetrics:    ingest.NewLagMetrics(reg),
		metrics:       m,
		logger:        logger,
	}
	c.stopCtx, c.stopCancel = context.WithCancel(context.Background())

	return c, nil
}

// Start connects to Kafka and launches the consume loop. It is a no-op when
// the loop is already running. On failure the client is discarded, the error
// is kept for Snapshot and a later call starts from scratch.
func (c *Consumer) Start(ctx context.Context) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.running.Load() {
		return nil
	}
	// a loop that stopped on its own may still be closing its client
	if c.done != nil {
		<-c.done
	}

	if err := c.start(ctx); err != nil {
		c.metrics.startAttempts.WithLabelValues("failure").Inc()
		c.lastErr.Store(err)
		level.Error(c.logger).Log("msg", "failed to start consumer", "err", err)
		return err
	}

	c.metrics.startAttempts.WithLabelValues("success").Inc()
	c.lastErr.Store(nil)
	level.Info(c.logger).Log("msg", "consumer started", "topics", strings.Join(c.kafkaCfg.Topics(), ","), "group", c.kafkaCfg.ConsumerGroup)
	return nil
}

func (c *Consumer) start(ctx context.Context) error {
	if err := context.Cause(ctx); err != nil {
		return err
	}
	if err := context.Cause(c.stopCtx); err != nil {
		return fmt.Errorf("consumer stopped: %w", err)
	}

	client, err := c.newClient(c.kafkaCfg, c.clientMetrics, c.logger)
	if err != nil {
		return fmt.Errorf("failed to create kafka reader client: %w", err)
	}

	if err := ingest.WaitForKafkaBroker(ctx, client, c.kafkaCfg.ConnectBackoff, c.logger); err != nil {
		client.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(c.stopCtx)
	done := make(chan struct{})

	c.cancel = cancel
	c.done = done
	c.running.Store(true)
	c.metrics.running.Set(1)

	go c.run(runCtx, client, done)
	return nil
}

// TriggerStart starts the consumer in the background unless it is running or
// a start attempt is already in flight. It never blocks.
func (c *Consumer) TriggerStart() {
	if c.running.Load() || !c.starting.CompareAndSwap(false, true) {
		return
	}

	c.attemptsMtx.Lock()
	if c.stopCtx.Err() != nil {
		c.attemptsMtx.Unlock()
		c.starting.Store(false)
		return
	}
	c.attempts.Add(1)
	c.attemptsMtx.Unlock()

	go func() {
		defer c.attempts.Done()
		defer c.starting.Store(false)

		ctx, cancel := context.WithTimeout(c.stopCtx, startTimeout)
		defer cancel()

		// failures are logged and reported through Snapshot
		_ = c.Start(ctx)
	}()
}

// Stop ends the consume loop and pending start attempts. The consumer cannot
// be started again afterwards.
func (c *Consumer) Stop() {
	c.attemptsMtx.Lock()
	c.stopCancel()
	c.attemptsMtx.Unlock()

	c.attempts.Wait()

	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.done != nil {
		c.cancel()
		<-c.done
	}
}

// Run starts the consumer if configured to do so and blocks until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	if c.cfg.StartOnBoot {
		// a failed start is retried on the next read
		_ = c.Start(ctx)
	}

	<-ctx.Done()
	c.Stop()
	return nil
}

func (c *Consumer) Running() bool {
	return c.running.Load()
}

// Snapshot returns the cached traces and logs and the latency statistics. It
// never waits for the consume loop.
func (c *Consumer) Snapshot() Snapshot {
	v := c.store.View()

	s := Snapshot{
		Traces:          v.Traces,
		Logs:            v.Logs,
		Latency:         v.Latency,
		ConsumerRunning: c.running.Load(),
	}
	if !s.ConsumerRunning {
		if err := c.lastErr.Load(); err != nil {
			s.Error = ErrorMessage
			s.Details = err.Error()
		}
	}
	return s
}

// Trace returns the cached spans of a trace. id may be hex or base64.
func (c *Consumer) Trace(id string) []normalize.Span {
	id = util.NormalizeID(id)
	if id == "" {
		return nil
	}

	var spans []normalize.Span
	for _, e := range c.store.View().Traces {
		for _, s := range e.Data {
			if util.EqualIDs(s.TraceID, id) {
				spans = append(spans, s)
			}
		}
	}
	return spans
}

func (c *Consumer) run(ctx context.Context, client *kgo.Client, done chan struct{}) {
	var (
		lagWG sync.WaitGroup
		err   error
	)

	defer func() {
		lagWG.Wait()
		client.Close()

		if err != nil {
			c.lastErr.Store(err)
			level.Error(c.logger).Log("msg", "consume loop stopped", "err", err)
		} else {
			level.Info(c.logger).Log("msg", "consume loop stopped")
		}

		c.running.Store(false)
		c.metrics.running.Set(0)
		close(done)
	}()

	if c.cfg.LagExportInterval > 0 {
		lagWG.Add(1)
		go func() {
			defer lagWG.Done()
			ingest.ExportPartitionLagMetrics(ctx, kadm.NewClient(client), c.logger, c.kafkaCfg, c.cfg.LagExportInterval, c.lagMetrics)
		}()
	}

	err = c.consume(ctx, client)
}

func (c *Consumer) consume(ctx context.Context, client *kgo.Client) error {
	for ctx.Err() == nil {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return errClientClosed
		}
		if fetchErr := fetches.Err(); fetchErr != nil {
			if errors.Is(fetchErr, context.Canceled) {
				return nil
			}
			if err := c.handleFetchErrors(client, fetches); err != nil {
				return err
			}
		}

		fetches.EachRecord(c.pipeline.Consume)
	}
	return nil
}

// handleFetchErrors logs the errors of a fetch and refreshes the client
// metadata when they call for it. It returns an error only when the loop
// cannot make progress anymore.
func (c *Consumer) handleFetchErrors(client *kgo.Client, fetches kgo.Fetches) error {
	var (
		mErr    = multierror.New()
		refresh bool
		fatal   error
	)

	fetches.EachError(func(topic string, partition int32, err error) {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.metrics.fetchErrors.Inc()
		mErr.Add(fmt.Errorf("topic %s partition %d: %w", topic, partition, err))

		refreshMetadata, retriable := ingest.HandleKafkaError(err)
		refresh = refresh || refreshMetadata

		var kErr *kerr.Error
		if !retriable && errors.As(err, &kErr) && !kErr.Retriable && fatal == nil {
			fatal = err
		}
	})

	if err := mErr.Err(); err != nil {
		level.Error(c.logger).Log("msg", "encountered error while fetching", "err", err)
	}
	if refresh {
		client.ForceMetadataRefresh()
	}
	return fatal
}
