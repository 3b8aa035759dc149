package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/Vihanga22365/governance-analysis/internal/api"
	"github.com/Vihanga22365/governance-analysis/internal/governance"
	"github.com/Vihanga22365/governance-analysis/pkg/backend"
	"github.com/Vihanga22365/governance-analysis/pkg/broadcast"
	"github.com/Vihanga22365/governance-analysis/pkg/config"
	"github.com/Vihanga22365/governance-analysis/pkg/domain"
	"github.com/Vihanga22365/governance-analysis/pkg/logging"
	"github.com/Vihanga22365/governance-analysis/pkg/policy"
	"github.com/Vihanga22365/governance-analysis/pkg/snapshot"
	"github.com/Vihanga22365/governance-analysis/pkg/telemetry"
	"github.com/Vihanga22365/governance-analysis/pkg/workflow"
)

// app holds every long-lived component of the hub process.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	metrics  *telemetry.Metrics
	hub      *broadcast.Hub
	gate     *policy.Gate
	limiter  *governance.RateLimiter
	router   *gin.Engine
	ws       http.Handler
	shutdown telemetry.ShutdownFunc
}

func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	logger, err := logging.NewLogger(cfg.Logging, logOut)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger.Logger)

	shutdown, err := telemetry.SetupProvider(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	metrics := telemetry.NewMetrics()
	client, err := backend.NewClient(cfg.Backend, logger.With("component", "backend"), backend.WithMetrics(metrics))
	if err != nil {
		return nil, err
	}

	gate := policy.NewGate(logger.With("component", "policy"))
	if err := gate.LoadFile(ctx, cfg.Policy.File); err != nil {
		return nil, err
	}

	hub := broadcast.NewHub(cfg.Broadcast, logger.With("component", "hub"), broadcast.WithHubMetrics(metrics))
	bridge := broadcast.NewBridge(hub, logger.With("component", "bridge"), metrics)
	aggregator := snapshot.NewAggregator(client.Sources(), cfg.Snapshot, logger.With("component", "snapshot"),
		snapshot.WithMetrics(metrics), snapshot.WithTracer(telemetry.Tracer()))

	service := workflow.NewService(client, aggregator, bridge, logger.With("component", "workflow"),
		workflow.WithApprover(gate),
		workflow.WithChatSource(client.Source(domain.SourceChatHistory)),
	)

	ws := broadcast.NewHandler(hub, cfg.Broadcast, logger.With("component", "subscribers"))
	limiter := governance.NewRateLimiter(cfg.Server.RateLimits)
	router := api.NewRouter(api.Deps{
		Workflow:    service,
		Hub:         hub,
		Metrics:     metrics,
		Limiter:     limiter,
		Subscribers: ws,
		ServiceName: cfg.Telemetry.ServiceName,
		Logger:      logger.Logger,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		hub:      hub,
		gate:     gate,
		limiter:  limiter,
		router:   router,
		ws:       ws,
		shutdown: shutdown,
	}, nil
}

// run starts the publisher loop, then the listeners, and blocks until ctx ends.
func (a *app) run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.hub.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if err := waitReady(gctx, a.hub); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}

	servers := []*http.Server{{Addr: a.cfg.Server.APIAddress, Handler: a.router, ReadHeaderTimeout: 10 * time.Second}}
	if a.cfg.Server.WSAddress != "" {
		servers = append(servers, &http.Server{Addr: a.cfg.Server.WSAddress, Handler: a.ws, ReadHeaderTimeout: 10 * time.Second})
	}
	for _, srv := range servers {
		g.Go(func() error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			a.logger.Info("listener started", "address", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, a.reload, a.recordReload, a.logger.With("component", "config"))
		if err != nil {
			a.logger.Warn("config watcher disabled", "error", err)
		} else {
			g.Go(func() error { return watcher.Run(gctx) })
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer shutdownCancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("error during shutdown", "address", srv.Addr, "error", err)
			}
		}
		if err := a.shutdown(shutdownCtx); err != nil {
			a.logger.Error("error flushing telemetry", "error", err)
		}
		return nil
	})

	a.logger.Info("governance hub started",
		"api_address", a.cfg.Server.APIAddress,
		"ws_address", a.cfg.Server.WSAddress,
		"backend", a.cfg.Backend.BaseURL,
	)
	err := g.Wait()
	<-a.hub.Done()
	a.logger.Info("governance hub stopped")
	return err
}

// reload applies the settings that can change without a restart.
func (a *app) reload(ctx context.Context, cfg *config.Config) error {
	if err := a.logger.SetLevel(cfg.Logging.Level); err != nil {
		return err
	}
	if err := a.gate.LoadFile(ctx, cfg.Policy.File); err != nil {
		return err
	}
	a.limiter.Configure(cfg.Server.RateLimits)
	return nil
}

func (a *app) recordReload(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	a.metrics.RecordConfigReload(status)
}

func (a *app) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

// waitReady blocks until the publisher loop accepts work, so no mutation is served
// before broadcasts can be scheduled.
func waitReady(ctx context.Context, hub *broadcast.Hub) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for !hub.Ready() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("publisher loop did not start: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}
