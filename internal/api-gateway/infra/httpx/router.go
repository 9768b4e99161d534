package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cryptosim/trading-sagas/internal/api-gateway/infra/httpx/middlewares"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachMetadata)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/trade", func(r chi.Router) {
		// Health is unauthenticated so monitoring can scrape it.
		r.Get("/health/circuit-breakers", handler.CircuitBreakerHealth)

		r.Group(func(r chi.Router) {
			r.Use(middlewares.RequireUser)
			r.Post("/buy", handler.BuyTrade)
			r.Post("/sell", handler.SellTrade)
		})
	})
	return r
}
