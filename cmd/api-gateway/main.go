package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cryptosim/trading-sagas/internal/api-gateway/core/ports"
	"github.com/cryptosim/trading-sagas/internal/api-gateway/infra/adapters/service"
	"github.com/cryptosim/trading-sagas/internal/api-gateway/infra/httpx"
	"github.com/cryptosim/trading-sagas/internal/breaker"
	"github.com/cryptosim/trading-sagas/internal/config"
	"github.com/cryptosim/trading-sagas/internal/coordinator"
	"github.com/cryptosim/trading-sagas/internal/coordinator/sagalog"
	sagasqlite "github.com/cryptosim/trading-sagas/internal/coordinator/sagalog/sqlite"
	"github.com/cryptosim/trading-sagas/internal/pkg/telemetry"
	"github.com/cryptosim/trading-sagas/internal/registry"
	"github.com/cryptosim/trading-sagas/internal/resilient"
)

func main() {
	telemetry.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, getEnv("OTEL_SERVICE_NAME", "api-gateway"))
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	cfg, err := config.Load(getEnv("CONFIG_PATH", ""))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var backend registry.Backend
	if cfg.ConsulAddr != "" {
		consul, err := registry.NewConsulBackend(cfg.ConsulAddr)
		if err != nil {
			slog.Error("failed to connect to consul", "addr", cfg.ConsulAddr, "error", err)
			os.Exit(1)
		}
		backend = consul
	}

	fallback := make(map[string]registry.Address, len(cfg.Fallback))
	for name, addr := range cfg.Fallback {
		fallback[name] = registry.Address{Service: name, Host: addr.Host, Port: addr.Port}
	}
	reg := registry.New(backend, fallback, cfg.RegistryTTL.Std())

	breakers := breaker.NewSet(breaker.Config{
		Window:                   cfg.Breaker.Window.Std(),
		Buckets:                  cfg.Breaker.Buckets,
		VolumeThreshold:          cfg.Breaker.VolumeThreshold,
		ErrorThresholdPercentage: cfg.Breaker.ErrorThresholdPercentage,
		ResetTimeout:             cfg.Breaker.ResetTimeout.Std(),
		CallTimeout:              cfg.Breaker.CallTimeout.Std(),
		OnStateChange: func(name string, from, to breaker.State) {
			slog.Warn("circuit breaker state change",
				"service", name, "from", from.String(), "to", to.String())
		},
	})

	client := resilient.New(reg, breakers)

	var sagaLog sagalog.Repository
	if cfg.SagaLogPath != "" {
		repo, err := sagasqlite.Open(cfg.SagaLogPath)
		if err != nil {
			slog.Error("failed to open saga log", "path", cfg.SagaLogPath, "error", err)
			os.Exit(1)
		}
		defer repo.Close()
		sagaLog = repo
	} else {
		slog.Warn("SAGA_LOG_PATH not set, saga transitions will not be persisted")
	}

	deps := coordinator.Deps{
		Market:    service.NewMarket(client),
		User:      service.NewUser(client),
		Portfolio: service.NewPortfolio(client),
		Trades:    service.NewTrade(client),
	}
	rules := coordinator.Rules{
		FeeRate:     decimal.RequireFromString(cfg.Trade.FeeRate),
		MinTradeUSD: decimal.RequireFromString(cfg.Trade.MinTradeUSD),
	}
	var notifier ports.NotificationService = service.NewNotification(client)

	exposeState := getEnv("APP_ENV", "development") != "production"
	handler := httpx.NewHandler(deps, rules, notifier, sagaLog, breakers, exposeState)

	serve(ctx, cfg.ListenAddr, "api-gateway", httpx.NewRouter(handler))
}

// serve runs the HTTP server with OTel instrumentation until the context is
// cancelled, then shuts it down gracefully.
func serve(ctx context.Context, addr, name string, h http.Handler) {
	srv := &http.Server{
		Addr:    addr,
		Handler: otelhttp.NewHandler(h, name),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server running", "service", name, "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
