// Package app is the market service HTTP surface: price lookups served from
// a short-lived Redis cache in front of the configured provider.
package app

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/cryptosim/trading-sagas/internal/market-service/provider"
	"github.com/cryptosim/trading-sagas/internal/pkg/cache"
)

// priceTTL keeps quotes hot long enough to absorb saga bursts without
// serving stale prices for long.
const priceTTL = 10 * time.Second

type Server struct {
	provider provider.Provider
	cache    cache.Cache
}

// NewServer builds the service. cache may be nil to run without Redis.
func NewServer(p provider.Provider, c cache.Cache) *Server {
	return &Server{provider: p, cache: c}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/price/{coinId}", s.getPrice)
	return r
}

func (s *Server) getPrice(w http.ResponseWriter, r *http.Request) {
	coinID := chi.URLParam(r, "coinId")
	ctx := r.Context()

	if s.cache != nil {
		var cached provider.Quote
		key := s.cache.GenerateKey("price", coinID)
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
		if !errors.Is(err, cache.ErrMiss) {
			// Cache outage degrades to provider calls.
			slog.WarnContext(ctx, "price cache read failed", "coin_id", coinID, "error", err)
		}
	}

	quote, err := s.provider.Quote(ctx, coinID)
	if err != nil {
		if errors.Is(err, provider.ErrUnknownCoin) {
			writeError(w, http.StatusNotFound, "unknown_coin", err.Error())
			return
		}
		slog.ErrorContext(ctx, "price lookup failed", "coin_id", coinID, "error", err)
		writeError(w, http.StatusBadGateway, "price_unavailable", err.Error())
		return
	}

	if s.cache != nil {
		key := s.cache.GenerateKey("price", coinID)
		if err := s.cache.Set(ctx, key, quote, priceTTL); err != nil {
			slog.WarnContext(ctx, "price cache write failed", "coin_id", coinID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, quote)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}
