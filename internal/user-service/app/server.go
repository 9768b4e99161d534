// Package app is the user service: in-memory balances with a transaction
// ledger behind a JSON/HTTP surface. Every mutation is applied atomically
// under one lock and re-validated against overdraft here, regardless of what
// the gateway checked beforehand.
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

// Transaction is one ledger entry. Type is the label the gateway sent with
// the mutation ("trade", "rollback").
type Transaction struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	Amount       decimal.Decimal `json:"amount"`
	Type         string          `json:"type"`
	Description  string          `json:"description"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type Server struct {
	startingBalance decimal.Decimal

	mu       sync.RWMutex
	balances map[string]decimal.Decimal
	ledger   map[string][]Transaction
}

// NewServer builds the service. Unknown users get startingBalance on first
// touch, which is what makes the simulator usable without a signup flow.
func NewServer(startingBalance decimal.Decimal) *Server {
	return &Server{
		startingBalance: startingBalance,
		balances:        make(map[string]decimal.Decimal),
		ledger:          make(map[string][]Transaction),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/balance", s.getBalance)
	r.Put("/balance", s.applyDelta)
	r.Get("/transactions", s.listTransactions)
	return r
}

type balanceDeltaRequest struct {
	UserID      string          `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	balance := s.balanceLocked(userID)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

func (s *Server) applyDelta(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req balanceDeltaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Amount.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_request", "amount must be non-zero")
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "type is required")
		return
	}

	s.mu.Lock()
	balance := s.balanceLocked(userID)
	next := balance.Add(req.Amount)
	if next.IsNegative() {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "insufficient_balance",
			"balance "+balance.StringFixed(2)+" cannot absorb delta "+req.Amount.StringFixed(2))
		return
	}
	s.balances[userID] = next
	s.ledger[userID] = append(s.ledger[userID], Transaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		Amount:       req.Amount,
		Type:         req.Type,
		Description:  req.Description,
		BalanceAfter: next,
		CreatedAt:    time.Now().UTC(),
	})
	s.mu.Unlock()

	slog.InfoContext(r.Context(), "balance updated",
		"user_id", userID, "delta", req.Amount, "type", req.Type, "balance", next)
	writeJSON(w, http.StatusOK, map[string]any{"balance": next})
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	s.mu.RLock()
	out := make([]Transaction, len(s.ledger[userID]))
	copy(out, s.ledger[userID])
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

// balanceLocked seeds the starting balance on first touch. Callers hold mu.
func (s *Server) balanceLocked(userID string) decimal.Decimal {
	if b, ok := s.balances[userID]; ok {
		return b
	}
	s.balances[userID] = s.startingBalance
	return s.startingBalance
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
