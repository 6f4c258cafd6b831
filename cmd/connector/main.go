// Command connector launches the exchange connector HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/crosstide/connector/internal/config"
	"github.com/crosstide/connector/internal/exchange/factory"
	"github.com/crosstide/connector/internal/observability"
	"github.com/crosstide/connector/internal/router"
	"github.com/crosstide/connector/internal/schema"
	"github.com/crosstide/connector/internal/server"
	"github.com/crosstide/connector/internal/stream"
	"github.com/crosstide/connector/internal/telemetry"
)

const (
	defaultConfigPath        = "config/connector.yaml"
	shutdownTimeout          = 10 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
	readHeaderTimeout        = 5 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the connector configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := log.New(os.Stderr, "connector ", log.LstdFlags|log.LUTC)
	observability.SetLogger(observability.NewStdLogger(logger, *debug))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	logger.Printf("configuration loaded: env=%s exchanges=%d", cfg.Environment, len(cfg.Exchanges))

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		logger.Fatalf("initialise telemetry: %v", err)
	}

	registry := router.New()
	for name, settings := range cfg.Exchanges {
		adapter, err := factory.Build(name, settings)
		if err != nil {
			logger.Fatalf("build adapter %q: %v", name, err)
		}
		if err := registry.Register(adapter); err != nil {
			logger.Fatalf("register adapter %q: %v", name, err)
		}
		logger.Printf("adapter registered: %s", adapter.Name())
	}

	watchers := startWatchers(ctx, cfg, registry)
	defer func() {
		for _, sub := range watchers {
			sub.Close()
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(registry),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("http server: %v", err)
			cancel()
		}
	})

	<-ctx.Done()
	logger.Printf("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}
	wg.Wait()

	telemetryCtx, telemetryCancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer telemetryCancel()
	if err := shutdownTelemetry(telemetryCtx); err != nil {
		logger.Printf("telemetry shutdown: %v", err)
	}
	logger.Printf("stopped")
}

// startWatchers opens the configured always-on trade streams. Failures are
// logged, not fatal: one broken venue must not keep the rest offline.
func startWatchers(ctx context.Context, cfg config.Config, registry *router.Registry) []*stream.Subscription {
	var subs []*stream.Subscription
	for name, settings := range cfg.Exchanges {
		adapter, err := registry.Resolve(name)
		if err != nil {
			continue
		}
		for _, symbol := range settings.WatchSymbols {
			exchange := adapter.Name()
			sub, err := adapter.StreamTrades(ctx, symbol,
				func(update schema.TradeUpdate) {
					observability.Log().Debug("trade",
						observability.F("exchange", exchange),
						observability.F("symbol", update.Symbol),
						observability.F("price", update.Price),
						observability.F("quantity", update.Quantity))
				},
				func(err error) {
					observability.Log().Error("watch stream error",
						observability.F("exchange", exchange),
						observability.F("symbol", symbol),
						observability.F("error", err))
				})
			if err != nil {
				observability.Log().Error("watch stream not started",
					observability.F("exchange", exchange),
					observability.F("symbol", symbol),
					observability.F("error", err))
				continue
			}
			observability.Log().Info("watch stream started",
				observability.F("exchange", exchange),
				observability.F("symbol", symbol))
			subs = append(subs, sub)
		}
	}
	return subs
}
