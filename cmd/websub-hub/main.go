// Package main provides the WebSub hub executable: the subscription and
// publish HTTP API and the fan-out and delivery processors.
//
// HUB_MODE selects what this process runs: all (default), api, fanout or
// delivery. Run several fanout/delivery processes against shared storage to
// scale out.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/coregx/websub"
	"github.com/coregx/websub/cmd/websub-hub/internal/api"
	"github.com/coregx/websub/cmd/websub-hub/internal/config"
	"github.com/coregx/websub/cmd/websub-hub/internal/logging"
	"github.com/coregx/websub/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("Hub stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Hub stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	logger := logging.Zerolog{Log: log}

	log.Info().
		Str("mode", cfg.Mode).
		Str("store", cfg.Store.Driver).
		Str("queue", cfg.Queue.Driver).
		Str("addr", cfg.Server.Addr()).
		Msg("Starting WebSub hub")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metrics.NewRecorder(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	hooks := websub.MultiNotificationService{
		websub.NewLoggingNotificationService(logger),
		recorder,
	}
	common := []websub.Option{
		websub.WithLogger(logger),
		websub.WithNotifications(hooks),
	}

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close backends")
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	if runs(cfg.Mode, config.ModeAPI) {
		server, err := newServer(cfg, b, common, registry, log)
		if err != nil {
			return err
		}
		g.Go(func() error {
			log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if runs(cfg.Mode, config.ModeFanOut) {
		dispatcher, err := websub.NewDispatcher(b.notifications, b.outbox, b.store, common...)
		if err != nil {
			return err
		}
		if err := startProcessors(gctx, g, "fanout", recorder.InstrumentEngine("fanout", dispatcher), cfg.Hub.FanOutConcurrency, cfg, logger); err != nil {
			return err
		}
	}

	if runs(cfg.Mode, config.ModeDelivery) {
		gateway := websub.NewHTTPCallbackGateway(
			websub.WithHubURL(cfg.Hub.URL),
			websub.WithCallbackTimeout(cfg.Hub.CallbackTimeout),
		)
		deliverer, err := websub.NewDeliverer(b.outbox, gateway,
			append(common, websub.WithMaxRetries(cfg.Hub.MaxRetries))...)
		if err != nil {
			return err
		}
		log.Info().Msg("Delivery retry schedule:\n" + deliverer.GetRetrySchedule())
		if err := startProcessors(gctx, g, "delivery", recorder.InstrumentEngine("delivery", deliverer), cfg.Hub.DeliveryConcurrency, cfg, logger); err != nil {
			return err
		}
	}

	return g.Wait()
}

// runs reports whether mode includes role.
func runs(mode, role string) bool {
	return mode == config.ModeAll || mode == role
}

func newServer(cfg *config.Config, b *backends, common []websub.Option, registry *prometheus.Registry, log zerolog.Logger) (*http.Server, error) {
	manager, err := websub.NewSubscriptionManager(b.store, common...)
	if err != nil {
		return nil, err
	}
	publisher, err := websub.NewPublisher(b.notifications, common...)
	if err != nil {
		return nil, err
	}

	handler := api.NewHandler(manager, publisher, metrics.Handler(registry), logging.Zerolog{Log: log})
	return &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      logging.Middleware(log, handler.Router()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, nil
}

func startProcessors(ctx context.Context, g *errgroup.Group, role string, engine websub.Engine, n int, cfg *config.Config, logger websub.Logger) error {
	for i := 0; i < n; i++ {
		p, err := websub.NewProcessor(engine,
			websub.WithLogger(logger),
			websub.WithIdleInterval(cfg.Hub.IdleInterval),
			websub.WithName(fmt.Sprintf("%s-%d", role, i+1)),
		)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return p.Run(ctx)
		})
	}
	return nil
}
