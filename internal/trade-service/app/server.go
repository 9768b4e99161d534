// Package app is the trade service: an append-only in-memory store of
// committed trades behind a JSON/HTTP surface.
package app

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cryptosim/trading-sagas/internal/pkg/httpmeta"
)

// Trade is the immutable record of one executed exchange.
type Trade struct {
	ID            string           `json:"id"`
	UserID        string           `json:"userId"`
	Type          string           `json:"type"`
	Symbol        string           `json:"symbol"`
	Amount        decimal.Decimal  `json:"amount"`
	Price         decimal.Decimal  `json:"price"`
	TotalCost     decimal.Decimal  `json:"totalCost"`
	Fee           decimal.Decimal  `json:"fee"`
	BalanceBefore decimal.Decimal  `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal  `json:"balanceAfter"`
	ProfitLoss    *decimal.Decimal `json:"profitLoss,omitempty"`
	ExecutedAt    time.Time        `json:"executedAt"`
}

type Server struct {
	mu     sync.RWMutex
	trades map[string][]Trade // userID -> trades, oldest first
}

func NewServer() *Server {
	return &Server{trades: make(map[string][]Trade)}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/", s.createTrade)
	r.Get("/", s.listTrades)
	return r
}

func (s *Server) createTrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var trade Trade
	if err := json.NewDecoder(r.Body).Decode(&trade); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if trade.Type != "buy" && trade.Type != "sell" {
		writeError(w, http.StatusBadRequest, "invalid_request", "type must be buy or sell")
		return
	}
	if trade.Symbol == "" || !trade.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "invalid_request", "symbol and a positive amount are required")
		return
	}

	trade.ID = uuid.NewString()
	trade.UserID = userID
	if trade.ExecutedAt.IsZero() {
		trade.ExecutedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.trades[userID] = append(s.trades[userID], trade)
	s.mu.Unlock()

	slog.InfoContext(r.Context(), "trade recorded",
		"trade_id", trade.ID, "user_id", userID, "type", trade.Type,
		"symbol", trade.Symbol, "amount", trade.Amount)
	writeJSON(w, http.StatusCreated, trade)
}

func (s *Server) listTrades(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	s.mu.RLock()
	out := make([]Trade, len(s.trades[userID]))
	copy(out, s.trades[userID])
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{"trades": out})
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(httpmeta.HeaderUserID)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing_user", "X-User-Id header is required")
		return "", false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}
