// Package entity holds the gateway-side view of the trading domain. All
// money fields use decimal and serialize as JSON strings so no precision is
// lost crossing service boundaries.
package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeType distinguishes the two saga flavors.
type TradeType string

const (
	TradeTypeBuy  TradeType = "buy"
	TradeTypeSell TradeType = "sell"
)

// Quote is the market service's answer for one coin.
type Quote struct {
	CoinID string          `json:"coinId"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}

// Holding is owned by the portfolio service; the gateway only reads it and
// issues add/reduce commands.
type Holding struct {
	Symbol          string          `json:"symbol"`
	CoinID          string          `json:"coinId"`
	Name            string          `json:"name"`
	Amount          decimal.Decimal `json:"amount"`
	AverageBuyPrice decimal.Decimal `json:"averageBuyPrice"`
	TotalInvested   decimal.Decimal `json:"totalInvested"`
}

// AddHolding is the command payload for POST /holding: the portfolio service
// merges it into an existing holding (recomputing the weighted-average buy
// price) or creates a new one, atomically on its side.
type AddHolding struct {
	Symbol   string          `json:"symbol"`
	CoinID   string          `json:"coinId"`
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	BuyPrice decimal.Decimal `json:"buyPrice"`
}

// Trade is the immutable record created once per committed saga.
type Trade struct {
	ID            string           `json:"id,omitempty"`
	UserID        string           `json:"userId"`
	Type          TradeType        `json:"type"`
	Symbol        string           `json:"symbol"`
	Amount        decimal.Decimal  `json:"amount"`
	Price         decimal.Decimal  `json:"price"`
	TotalCost     decimal.Decimal  `json:"totalCost"`
	Fee           decimal.Decimal  `json:"fee"`
	BalanceBefore decimal.Decimal  `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal  `json:"balanceAfter"`
	ProfitLoss    *decimal.Decimal `json:"profitLoss,omitempty"`
	ExecutedAt    time.Time        `json:"executedAt,omitempty"`
}

// Notification is the best-effort payload pushed after a committed trade.
type Notification struct {
	UserID  string         `json:"userId"`
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}
