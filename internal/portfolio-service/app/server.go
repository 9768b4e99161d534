// Package app is the portfolio service: an in-memory holdings store behind a
// JSON/HTTP surface. All holding arithmetic runs under one lock so add/reduce
// are atomic even when two sagas for the same user race each other.
package app

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/cryptosim/trading-sagas/internal/pkg/httpmeta"
	"github.com/cryptosim/trading-sagas/internal/portfolio-service/domain"
)

type Server struct {
	mu       sync.RWMutex
	holdings map[string]map[string]*domain.Holding // userID -> symbol -> holding
}

func NewServer() *Server {
	return &Server{holdings: make(map[string]map[string]*domain.Holding)}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.listHoldings)
	r.Post("/holding", s.addHolding)
	r.Put("/holding", s.reduceHolding)
	return r
}

type addHoldingRequest struct {
	Symbol   string          `json:"symbol"`
	CoinID   string          `json:"coinId"`
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	BuyPrice decimal.Decimal `json:"buyPrice"`
}

type reduceHoldingRequest struct {
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) listHoldings(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	s.mu.RLock()
	list := make([]domain.Holding, 0, len(s.holdings[userID]))
	for _, h := range s.holdings[userID] {
		list = append(list, *h)
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{"holdings": list})
}

func (s *Server) addHolding(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req addHoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Symbol == "" || !req.Amount.IsPositive() || !req.BuyPrice.IsPositive() {
		writeError(w, http.StatusBadRequest, "invalid_request", "symbol, amount and buyPrice are required")
		return
	}
	symbol := strings.ToUpper(req.Symbol)

	s.mu.Lock()
	if s.holdings[userID] == nil {
		s.holdings[userID] = make(map[string]*domain.Holding)
	}
	h, exists := s.holdings[userID][symbol]
	if !exists {
		h = &domain.Holding{Symbol: symbol, CoinID: req.CoinID, Name: req.Name}
		s.holdings[userID][symbol] = h
	}
	h.Merge(req.Amount, req.BuyPrice)
	out := *h
	s.mu.Unlock()

	slog.InfoContext(r.Context(), "holding merged",
		"user_id", userID, "symbol", symbol, "amount", req.Amount)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) reduceHolding(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req reduceHoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Symbol == "" || !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "invalid_request", "symbol and amount are required")
		return
	}
	symbol := strings.ToUpper(req.Symbol)

	s.mu.Lock()
	h, exists := s.holdings[userID][symbol]
	if !exists {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "insufficient_holding", "no "+symbol+" holding found")
		return
	}
	// The gateway's earlier sufficiency check is only advisory; this is the
	// authoritative one, done atomically with the decrement.
	empty, err := h.Reduce(req.Amount)
	if err != nil {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "insufficient_holding", err.Error())
		return
	}
	if empty {
		delete(s.holdings[userID], symbol)
	}
	out := *h
	s.mu.Unlock()

	slog.InfoContext(r.Context(), "holding reduced",
		"user_id", userID, "symbol", symbol, "amount", req.Amount, "deleted", empty)
	writeJSON(w, http.StatusOK, out)
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
