// Package runtime assembles the deposit pipeline from its configuration and
// manages its lifecycle: record store, transports, assemblers, worker pool,
// status poller and aggregator, event ingress, and the auxiliary HTTP
// servers (admin API, metrics).
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/depositd/internal/logger"
	"github.com/marmos91/depositd/pkg/api"
	"github.com/marmos91/depositd/pkg/api/auth"
	"github.com/marmos91/depositd/pkg/config"
	"github.com/marmos91/depositd/pkg/deposit"
	"github.com/marmos91/depositd/pkg/ingress"
	"github.com/marmos91/depositd/pkg/metrics"
	metricsprom "github.com/marmos91/depositd/pkg/metrics/prometheus"
	"github.com/marmos91/depositd/pkg/packaging"
	"github.com/marmos91/depositd/pkg/packaging/dspace"
	"github.com/marmos91/depositd/pkg/packaging/nihms"
	"github.com/marmos91/depositd/pkg/status"
	"github.com/marmos91/depositd/pkg/store"
)

// DefaultShutdownTimeout is the default timeout for graceful pipeline
// shutdown.
const DefaultShutdownTimeout = 30 * time.Second

// AuxiliaryServer is an interface for auxiliary HTTP servers (API, metrics)
// that are managed alongside the pipeline.
type AuxiliaryServer interface {
	// Start starts the HTTP server and blocks until context is cancelled
	// or error.
	Start(ctx context.Context) error
	// Stop initiates graceful shutdown.
	Stop(ctx context.Context) error
	// Port returns the TCP port the server is listening on.
	Port() int
}

// Runtime owns every component of the deposit pipeline.
type Runtime struct {
	cfg    *config.Config
	client store.Client

	pool       *deposit.Pool
	dispatcher *deposit.Dispatcher
	poller     *status.Poller
	aggregator *status.Aggregator
	ingress    *ingress.Ingress
	pollSource *ingress.PollSource

	apiServer     AuxiliaryServer
	metricsServer AuxiliaryServer

	shutdownTimeout time.Duration

	// serveOnce ensures Serve() is only called once
	serveOnce sync.Once
	served    bool
}

// New builds the full pipeline from the configuration. The record store is
// opened and the transports are constructed here; nothing starts running
// until Serve.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	client, err := config.CreateStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("create record store: %w", err)
	}

	rt, err := build(ctx, cfg, client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return rt, nil
}

// NewWithStore builds the pipeline around an existing record store client.
// The caller keeps ownership of the client's lifetime in tests; Serve still
// closes it on shutdown.
func NewWithStore(ctx context.Context, cfg *config.Config, client store.Client) (*Runtime, error) {
	return build(ctx, cfg, client)
}

func build(ctx context.Context, cfg *config.Config, client store.Client) (*Runtime, error) {
	rt := &Runtime{
		cfg:             cfg,
		client:          client,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	if rt.shutdownTimeout == 0 {
		rt.shutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	transports, err := cfg.BuildTransports(ctx)
	if err != nil {
		return nil, fmt.Errorf("build transports: %w", err)
	}

	resolver := packaging.NewResolver(nil)
	registry := packaging.NewRegistry()
	registry.Register(dspace.SpecURI, dspace.New(resolver))
	registry.Register(nihms.SpecURI, nihms.New(resolver))

	handler := deposit.NewErrorHandler(client)

	task := deposit.NewTask(client, registry, transports, cfg)
	rt.pool = deposit.NewPool(task, cfg.Pool, handler.Handle)
	rt.dispatcher = deposit.NewDispatcher(client, rt.pool)

	statusResolver := status.NewResolver(client, nil, cfg)
	rt.poller = status.NewPoller(client, statusResolver, cfg.Poller)
	rt.aggregator = status.NewAggregator(client, cfg.Aggregator)

	// A deposit that lands submitted with a status reference starts
	// polling right away. Enqueue reports whether the deposit was newly
	// queued; the hook has no use for that.
	task.OnSubmitted(func(depositID string) { rt.poller.Enqueue(depositID) })

	rt.ingress = ingress.New(client, ingress.DefaultPolicy(), rt.dispatcher, rt.poller, cfg.Ingress, handler.Handle)
	rt.pollSource = ingress.NewPollSource(client, rt.ingress, cfg.Scan)

	if cfg.Metrics.Enabled {
		task.SetMetrics(metricsprom.NewPipelineMetrics())
		rt.pool.SetMetrics(metricsprom.NewPipelineMetrics())
		statusResolver.SetMetrics(metricsprom.NewStatusMetrics())
		rt.aggregator.SetMetrics(metricsprom.NewStatusMetrics())

		if srv := metrics.NewServer(cfg.Metrics.Port); srv != nil {
			rt.metricsServer = srv
		}
	}

	if cfg.API.IsEnabled() {
		jwtService, err := auth.NewJWTService(auth.JWTConfig{Secret: cfg.API.JWTSecret})
		if err != nil {
			return nil, fmt.Errorf("create JWT service: %w", err)
		}
		credential := auth.Credential{
			Username:     cfg.Admin.Username,
			PasswordHash: cfg.Admin.PasswordHash,
		}
		rt.apiServer = api.NewServer(cfg.API, api.Deps{
			Client:  client,
			Pool:    rt.pool,
			Stats:   rt.pool,
			Poller:  rt.poller,
			Ingress: rt.ingress,
		}, credential, jwtService)
	}

	return rt, nil
}

// Client exposes the record store client (for migrations and tests).
func (r *Runtime) Client() store.Client { return r.client }

// Notify feeds a change event into the ingress, for callers outside the
// HTTP surface.
func (r *Runtime) Notify(e ingress.Event) bool { return r.ingress.Notify(e) }

// Serve runs the pipeline until ctx is cancelled or an auxiliary server
// fails. It can only be called once.
func (r *Runtime) Serve(ctx context.Context) error {
	var err error

	r.serveOnce.Do(func() {
		r.served = true
		err = r.serve(ctx)
	})

	return err
}

// serve is the internal implementation of Serve().
func (r *Runtime) serve(ctx context.Context) error {
	logger.Info("Starting deposit pipeline")

	// Background loops get their own cancellation so shutdown can stop
	// them after the intake is closed.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// 1. Start the pipeline: workers first, then the intake that feeds
	// them.
	r.pool.Start(bgCtx)
	r.ingress.Start(bgCtx)

	var bg sync.WaitGroup
	bg.Add(2)
	go func() {
		defer bg.Done()
		r.aggregator.Run(bgCtx)
	}()
	go func() {
		defer bg.Done()
		r.pollSource.Run(bgCtx)
	}()

	// 2. Start auxiliary servers
	serverErrChan := make(chan error, 2)
	if r.apiServer != nil {
		go func() {
			if err := r.apiServer.Start(ctx); err != nil {
				logger.Error("API server error", "error", err)
				serverErrChan <- fmt.Errorf("API server error: %w", err)
			}
		}()
		logger.Info("Admin API listening", "port", r.apiServer.Port())
	}
	if r.metricsServer != nil {
		go func() {
			if err := r.metricsServer.Start(ctx); err != nil {
				logger.Error("Metrics server error", "error", err)
				serverErrChan <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
		logger.Info("Metrics server listening", "port", r.metricsServer.Port())
	}

	// 3. Wait for shutdown signal or server error
	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received", "reason", ctx.Err())
		shutdownErr = ctx.Err()

	case err := <-serverErrChan:
		logger.Error("Auxiliary server failed - initiating shutdown", "error", err)
		shutdownErr = err
	}

	// 4. Graceful shutdown
	r.shutdown(bgCancel, &bg)

	logger.Info("Deposit pipeline stopped")
	return shutdownErr
}

// shutdown stops the pipeline in reverse dependency order: close the intake
// first, drain the workers, then the background loops and servers, the
// record store last.
func (r *Runtime) shutdown(bgCancel context.CancelFunc, bg *sync.WaitGroup) {
	deadline := time.Now().Add(r.shutdownTimeout)

	logger.Info("Stopping event ingress")
	r.ingress.Stop(time.Until(deadline))

	logger.Info("Draining deposit pool")
	r.pool.Stop(time.Until(deadline))

	logger.Debug("Stopping status poller")
	r.poller.Stop()

	// Aggregator and poll source exit on cancellation.
	bgCancel()
	bg.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if r.apiServer != nil {
		logger.Debug("Stopping API server")
		if err := r.apiServer.Stop(stopCtx); err != nil {
			logger.Error("API server shutdown error", "error", err)
		}
	}
	if r.metricsServer != nil {
		logger.Debug("Stopping metrics server")
		if err := r.metricsServer.Stop(stopCtx); err != nil {
			logger.Error("Metrics server shutdown error", "error", err)
		}
	}

	logger.Info("Closing record store")
	if err := r.client.Close(); err != nil {
		logger.Warn("Error closing record store", "error", err)
	}
}
