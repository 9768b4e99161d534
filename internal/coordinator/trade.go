package coordinator

import (
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cryptosim/trading-sagas/internal/api-gateway/core/domain/entity"
	"github.com/cryptosim/trading-sagas/internal/api-gateway/core/ports"
	"github.com/cryptosim/trading-sagas/internal/coordinator/sagalog"
	"github.com/cryptosim/trading-sagas/internal/pkg/errs"
)

// Deps bundles the downstream service ports a trade saga calls.
type Deps struct {
	Market    ports.MarketService
	User      ports.UserService
	Portfolio ports.PortfolioService
	Trades    ports.TradeService
}

// Rules holds the business parameters applied to every trade.
type Rules struct {
	// FeeRate is the fraction of the trade value charged as fee (0.001 = 0.1%).
	FeeRate decimal.Decimal
	// MinTradeUSD is the minimum trade value accepted.
	MinTradeUSD decimal.Decimal
}

// BuyRequest starts a buy saga.
type BuyRequest struct {
	UserID string          `json:"userId"`
	Symbol string          `json:"symbol"`
	CoinID string          `json:"coinId"`
	Amount decimal.Decimal `json:"amount"`
}

// SellRequest starts a sell saga. The coin ID comes from the user's holding,
// not the request.
type SellRequest struct {
	UserID string          `json:"userId"`
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}

// BuyState is the request-local transaction state of one buy saga. Each field
// is written exactly once, by the step that commits it, and is read-only
// during compensation.
type BuyState struct {
	UserID string          `json:"userId"`
	Symbol string          `json:"symbol"`
	CoinID string          `json:"coinId"`
	Amount decimal.Decimal `json:"amount"`

	Quote     *entity.Quote   `json:"quote,omitempty"`
	TotalCost decimal.Decimal `json:"totalCost"`
	Fee       decimal.Decimal `json:"fee"`
	FinalCost decimal.Decimal `json:"finalCost"`

	BalanceBefore decimal.Decimal `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal `json:"balanceAfter"`

	BalanceMutated bool            `json:"balanceMutated"`
	BalanceDelta   decimal.Decimal `json:"balanceDelta"`
	HoldingMutated bool            `json:"holdingMutated"`
	TradeRecorded  bool            `json:"tradeRecorded"`
	TradeID        string          `json:"tradeId,omitempty"`

	Trade *entity.Trade `json:"trade,omitempty"`
}

// SellState is the request-local transaction state of one sell saga.
// HoldingSnapshot captures the holding before any mutation so a rollback can
// fully recreate it, since a reduce may have deleted the holding outright.
type SellState struct {
	UserID string          `json:"userId"`
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`

	HoldingSnapshot *entity.Holding `json:"holdingSnapshot,omitempty"`

	Quote         *entity.Quote   `json:"quote,omitempty"`
	TotalProceeds decimal.Decimal `json:"totalProceeds"`
	Fee           decimal.Decimal `json:"fee"`
	FinalProceeds decimal.Decimal `json:"finalProceeds"`
	ProfitLoss    decimal.Decimal `json:"profitLoss"`

	BalanceBefore decimal.Decimal `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal `json:"balanceAfter"`

	BalanceMutated bool            `json:"balanceMutated"`
	BalanceDelta   decimal.Decimal `json:"balanceDelta"`
	HoldingMutated bool            `json:"holdingMutated"`
	TradeRecorded  bool            `json:"tradeRecorded"`
	TradeID        string          `json:"tradeId,omitempty"`

	Trade *entity.Trade `json:"trade,omitempty"`
}

// NewBuySaga validates the request and assembles the buy workflow.
// repo may be nil (no durable saga log).
func NewBuySaga(deps Deps, rules Rules, repo sagalog.Repository, req BuyRequest) (*Orchestrator, *BuyState, error) {
	if req.UserID == "" {
		return nil, nil, errs.New(errs.CodeInvalidInput, "userId is required")
	}
	if req.Symbol == "" || req.CoinID == "" {
		return nil, nil, errs.New(errs.CodeInvalidInput, "symbol and coinId are required")
	}
	if !req.Amount.IsPositive() {
		return nil, nil, errs.New(errs.CodeInvalidInput, "amount must be greater than zero")
	}

	st := &BuyState{
		UserID: req.UserID,
		Symbol: req.Symbol,
		CoinID: req.CoinID,
		Amount: req.Amount,
	}

	steps := []Step{
		&buyPriceLookupStep{deps: deps, rules: rules, st: st},
		&buyBalanceCheckStep{deps: deps, st: st},
		&buyBalanceDebitStep{deps: deps, st: st},
		&buyHoldingAddStep{deps: deps, st: st},
		&buyTradeRecordStep{deps: deps, st: st},
	}

	return NewOrchestrator(uuid.NewString(), marshalPayload(req), steps, repo), st, nil
}

// NewSellSaga validates the request and assembles the sell workflow.
func NewSellSaga(deps Deps, rules Rules, repo sagalog.Repository, req SellRequest) (*Orchestrator, *SellState, error) {
	if req.UserID == "" {
		return nil, nil, errs.New(errs.CodeInvalidInput, "userId is required")
	}
	if req.Symbol == "" {
		return nil, nil, errs.New(errs.CodeInvalidInput, "symbol is required")
	}
	if !req.Amount.IsPositive() {
		return nil, nil, errs.New(errs.CodeInvalidInput, "amount must be greater than zero")
	}

	st := &SellState{
		UserID: req.UserID,
		Symbol: req.Symbol,
		Amount: req.Amount,
	}

	steps := []Step{
		&sellHoldingCheckStep{deps: deps, st: st},
		&sellPriceLookupStep{deps: deps, rules: rules, st: st},
		&sellBalanceCheckStep{deps: deps, st: st},
		&sellBalanceCreditStep{deps: deps, st: st},
		&sellHoldingReduceStep{deps: deps, st: st},
		&sellTradeRecordStep{deps: deps, st: st},
	}

	return NewOrchestrator(uuid.NewString(), marshalPayload(req), steps, repo), st, nil
}

func marshalPayload(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
