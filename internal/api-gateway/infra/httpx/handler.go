package httpx

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/cryptosim/trading-sagas/internal/api-gateway/core/domain/entity"
	"github.com/cryptosim/trading-sagas/internal/api-gateway/core/ports"
	"github.com/cryptosim/trading-sagas/internal/breaker"
	"github.com/cryptosim/trading-sagas/internal/coordinator"
	"github.com/cryptosim/trading-sagas/internal/coordinator/sagalog"
	"github.com/cryptosim/trading-sagas/internal/pkg/errs"
	"github.com/cryptosim/trading-sagas/internal/pkg/httpmeta"
)

// Handler handles incoming trade requests and runs the sagas.
type Handler struct {
	deps     coordinator.Deps
	rules    coordinator.Rules
	notifier ports.NotificationService
	sagaLog  sagalog.Repository
	breakers *breaker.Set

	// exposeState includes the transaction-state snapshot in failure
	// responses. Enabled outside production only.
	exposeState bool
}

// NewHandler initializes the handler. sagaLog may be nil, in which case saga
// state transitions are not persisted.
func NewHandler(
	deps coordinator.Deps,
	rules coordinator.Rules,
	notifier ports.NotificationService,
	sagaLog sagalog.Repository,
	breakers *breaker.Set,
	exposeState bool,
) *Handler {
	return &Handler{
		deps:        deps,
		rules:       rules,
		notifier:    notifier,
		sagaLog:     sagaLog,
		breakers:    breakers,
		exposeState: exposeState,
	}
}

// BuyTrade runs the buy saga synchronously and answers with the committed
// trade or the failure plus its rollback outcome.
func (h *Handler) BuyTrade(w http.ResponseWriter, r *http.Request) {
	var req buyTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	ctx := r.Context()
	saga, st, err := coordinator.NewBuySaga(h.deps, h.rules, h.sagaLog, coordinator.BuyRequest{
		UserID: httpmeta.UserID(ctx),
		Symbol: req.Symbol,
		CoinID: req.CoinID,
		Amount: req.Amount,
	})
	if err != nil {
		writeError(w, errs.HTTPStatus(err), string(errs.CodeOf(err)), err.Error())
		return
	}

	slog.InfoContext(ctx, "buy trade requested",
		"symbol", req.Symbol, "coin_id", req.CoinID, "amount", req.Amount)

	res := saga.Run(ctx)
	if !res.Succeeded() {
		h.writeSagaFailure(w, res, st)
		return
	}

	h.notifier.Notify(ctx, tradeNotification(st.Trade))
	writeJSON(w, http.StatusOK, tradeResponse{
		Success:    true,
		Trade:      st.Trade,
		NewBalance: st.BalanceAfter,
	})
}

// SellTrade runs the sell saga, symmetric to BuyTrade.
func (h *Handler) SellTrade(w http.ResponseWriter, r *http.Request) {
	var req sellTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	ctx := r.Context()
	saga, st, err := coordinator.NewSellSaga(h.deps, h.rules, h.sagaLog, coordinator.SellRequest{
		UserID: httpmeta.UserID(ctx),
		Symbol: req.Symbol,
		Amount: req.Amount,
	})
	if err != nil {
		writeError(w, errs.HTTPStatus(err), string(errs.CodeOf(err)), err.Error())
		return
	}

	slog.InfoContext(ctx, "sell trade requested",
		"symbol", req.Symbol, "amount", req.Amount)

	res := saga.Run(ctx)
	if !res.Succeeded() {
		h.writeSagaFailure(w, res, st)
		return
	}

	h.notifier.Notify(ctx, tradeNotification(st.Trade))
	writeJSON(w, http.StatusOK, tradeResponse{
		Success:    true,
		Trade:      st.Trade,
		NewBalance: st.BalanceAfter,
	})
}

// CircuitBreakerHealth reports the state and counters of every breaker the
// gateway has opened so far.
func (h *Handler) CircuitBreakerHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, breakerHealthResponse{Services: h.breakers.Snapshot()})
}

// writeSagaFailure maps a failed saga result onto the HTTP error contract:
// the primary error determines the status, the rollback block reports what
// compensation achieved.
func (h *Handler) writeSagaFailure(w http.ResponseWriter, res *coordinator.Result, state any) {
	body := errorResponse{
		Error:   string(errs.CodeOf(res.Err)),
		Message: res.Err.Error(),
		Rollback: &rollbackResponse{
			Attempted: res.RollbackAttempted,
			Succeeded: res.RollbackAttempted && len(res.RollbackErrors) == 0,
			Errors:    res.RollbackErrors,
		},
	}
	if h.exposeState {
		body.State = state
	}
	writeJSON(w, errs.HTTPStatus(res.Err), body)
}

func tradeNotification(trade *entity.Trade) entity.Notification {
	verb := "Bought"
	if trade.Type == entity.TradeTypeSell {
		verb = "Sold"
	}
	return entity.Notification{
		UserID: trade.UserID,
		Type:   "trade_executed",
		Title:  fmt.Sprintf("%s %s %s", verb, trade.Amount, trade.Symbol),
		Message: fmt.Sprintf("%s %s %s at $%s (fee $%s)",
			verb, trade.Amount, trade.Symbol,
			trade.Price.StringFixed(2), trade.Fee.StringFixed(2)),
		Data: map[string]any{
			"tradeId": trade.ID,
			"type":    string(trade.Type),
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}
