package httpx

import (
	"github.com/shopspring/decimal"

	"github.com/cryptosim/trading-sagas/internal/api-gateway/core/domain/entity"
	"github.com/cryptosim/trading-sagas/internal/coordinator"
)

type buyTradeRequest struct {
	Symbol string          `json:"symbol"`
	CoinID string          `json:"coinId"`
	Amount decimal.Decimal `json:"amount"`
}

type sellTradeRequest struct {
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}

type tradeResponse struct {
	Success    bool            `json:"success"`
	Trade      *entity.Trade   `json:"trade"`
	NewBalance decimal.Decimal `json:"newBalance"`
}

// rollbackResponse tells the caller what compensation did after a failed
// saga. Succeeded is true only when every attempted compensation went
// through.
type rollbackResponse struct {
	Attempted bool                            `json:"attempted"`
	Succeeded bool                            `json:"succeeded"`
	Errors    []coordinator.CompensationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Success  bool              `json:"success"`
	Error    string            `json:"error"`
	Message  string            `json:"message,omitempty"`
	Rollback *rollbackResponse `json:"rollback,omitempty"`

	// State is the full transaction-state snapshot, included outside
	// production for debugging failed sagas.
	State any `json:"state,omitempty"`
}

type breakerHealthResponse struct {
	Services any `json:"services"`
}
