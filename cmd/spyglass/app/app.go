package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/grafana/spyglass/modules/consumer"
)

// App is the root datastructure.
type App struct {
	cfg Config

	consumer *consumer.Consumer
	server   *http.Server
	logger   log.Logger
}

// New makes a new app.
func New(cfg Config, logger log.Logger, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c, err := consumer.New(cfg.Consumer, cfg.Kafka, nil, logger, reg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	return &App{
		cfg:      cfg,
		consumer: c,
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.HTTPListenAddress, strconv.Itoa(cfg.Server.HTTPListenPort)),
			Handler:           newRouter(cfg, c, gatherer, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}, nil
}

// Handler returns the HTTP routes of the app.
func (t *App) Handler() http.Handler {
	return t.server.Handler
}

// Run serves HTTP and runs the consumer until ctx is done or one of them
// fails.
func (t *App) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", t.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", t.server.Addr, err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		level.Info(t.logger).Log("msg", "server listening on addresses", "http", lis.Addr().String())
		if err := t.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return t.consumer.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), t.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := t.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	})

	level.Info(t.logger).Log("msg", "Spyglass started")
	defer level.Info(t.logger).Log("msg", "Spyglass stopped")

	return g.Wait()
}
