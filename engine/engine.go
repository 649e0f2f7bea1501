// Package engine builds the plugin registry and routes from a validated
// configuration and supervises their lifecycles. A failed route stops only
// itself; the other routes keep shipping. On shutdown the engine waits for
// the pipelines to drain, bounded by DrainDeadline.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/log-store/log-ship/config"
	"github.com/log-store/log-ship/drivers"
	"github.com/log-store/log-ship/errors"
	"github.com/log-store/log-ship/metric"
	"github.com/log-store/log-ship/plugin"
	"github.com/log-store/log-ship/route"
)

// DrainDeadline bounds the shutdown drain; after it the engine abandons
// in-flight work, leaving unacked records for replay on the next start.
const DrainDeadline = 10 * time.Second

// Engine owns the registry and the constructed routes
type Engine struct {
	cfg      *config.Config
	registry *plugin.Registry
	routes   []*route.Route
	logger   *slog.Logger
	metrics  *metric.Registry

	drainDeadline time.Duration
}

// New builds the registry, constructs every declared plugin instance, and
// wires the routes. Any error here is a configuration error and fatal for
// the daemon.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := plugin.NewRegistry()
	if err := drivers.RegisterAll(registry); err != nil {
		return nil, err
	}

	var metricsRegistry *metric.Registry
	if cfg.Globals.MetricsAddr != "" {
		metricsRegistry = metric.NewRegistry()
	}

	deps := plugin.Dependencies{
		Logger:  logger,
		Metrics: metricsRegistry,
	}

	for _, decl := range cfg.Inputs {
		if err := registry.CreateSource(decl.Name, decl.Type, plugin.Args(decl.Args), deps); err != nil {
			return nil, err
		}
	}
	for _, decl := range cfg.Transforms {
		if err := registry.CreateTransform(decl.Name, decl.Type, plugin.Args(decl.Args), deps); err != nil {
			return nil, err
		}
	}
	for _, decl := range cfg.Outputs {
		if err := registry.CreateSink(decl.Name, decl.Type, plugin.Args(decl.Args), deps); err != nil {
			return nil, err
		}
	}

	e := &Engine{
		cfg:           cfg,
		registry:      registry,
		logger:        logger,
		metrics:       metricsRegistry,
		drainDeadline: DrainDeadline,
	}

	for _, decl := range cfg.Routes {
		r, err := e.buildRoute(decl)
		if err != nil {
			return nil, err
		}
		e.routes = append(e.routes, r)
		logger.Info("constructed route", "route", decl.Name)
	}

	return e, nil
}

// buildRoute claims the route's drivers and wires them
func (e *Engine) buildRoute(decl config.RouteDecl) (*route.Route, error) {
	source, err := e.registry.ClaimSource(decl.Name, decl.Input)
	if err != nil {
		return nil, err
	}

	transforms := make([]plugin.Transform, 0, len(decl.Transforms))
	for _, name := range decl.Transforms {
		t, err := e.registry.ClaimTransform(decl.Name, name)
		if err != nil {
			return nil, err
		}
		transforms = append(transforms, t)
	}

	sinks := make([]plugin.Sink, 0, len(decl.Outputs))
	for _, name := range decl.Outputs {
		s, err := e.registry.ClaimSink(decl.Name, name)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}

	return route.New(
		decl.Name,
		source,
		transforms,
		sinks,
		e.cfg.Globals.ChannelSize,
		e.logger,
		metric.NewRouteMetrics(e.metrics, decl.Name),
	)
}

// Routes returns the constructed routes
func (e *Engine) Routes() []*route.Route { return e.routes }

// Run starts every route and blocks until all of them finish. Cancelling
// ctx initiates graceful shutdown; the drain is bounded by DrainDeadline.
// The returned error is the first route failure, if any.
func (e *Engine) Run(ctx context.Context) error {
	if e.metrics != nil {
		e.serveMetrics(ctx)
	}

	e.logger.Info("running all routes", "count", len(e.routes))

	var wg sync.WaitGroup
	errCh := make(chan error, len(e.routes))

	for _, r := range e.routes {
		wg.Add(1)
		go func(r *route.Route) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				e.logger.Error("route failed", "route", r.ID(), "error", err)
				errCh <- errors.Wrap(err, "Engine", "Run", fmt.Sprintf("route %q", r.ID()))
			} else {
				e.logger.Info("route finished", "route", r.ID())
			}
		}(r)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Shutdown: give the pipelines a bounded window to drain
		select {
		case <-done:
		case <-time.After(e.drainDeadline):
			e.logger.Warn("pipelines did not drain before the deadline, forcing termination",
				"deadline", e.drainDeadline)
		}
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// serveMetrics exposes the Prometheus registry over HTTP
func (e *Engine) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.metrics.Handler())

	server := &http.Server{Addr: e.cfg.Globals.MetricsAddr, Handler: mux}

	go func() {
		e.logger.Info("serving metrics", "addr", e.cfg.Globals.MetricsAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.logger.Warn("metrics listener failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
