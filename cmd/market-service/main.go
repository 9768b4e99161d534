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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cryptosim/trading-sagas/internal/market-service/app"
	"github.com/cryptosim/trading-sagas/internal/market-service/provider"
	"github.com/cryptosim/trading-sagas/internal/pkg/cache"
	"github.com/cryptosim/trading-sagas/internal/pkg/telemetry"
)

func main() {
	telemetry.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, getEnv("OTEL_SERVICE_NAME", "market-service"))
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

	var prices provider.Provider = provider.Static{}
	if upstream := os.Getenv("MARKET_UPSTREAM_URL"); upstream != "" {
		prices = provider.NewUpstream(upstream)
		slog.Info("using upstream price feed", "url", upstream)
	}

	var priceCache cache.Cache
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		priceCache = cache.NewRedisCache(redisAddr, "market")
		slog.Info("price cache enabled", "redis", redisAddr)
	}

	addr := ":" + getEnv("PORT", "8082")
	srv := &http.Server{
		Addr:    addr,
		Handler: otelhttp.NewHandler(app.NewServer(prices, priceCache).Router(), "market-service"),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("market service running", "addr", addr)
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
