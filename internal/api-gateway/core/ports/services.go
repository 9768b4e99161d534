// Package ports defines the downstream service interfaces the saga steps
// depend on. The HTTP adapters implement them in production; tests swap in
// fakes.
package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/cryptosim/trading-sagas/internal/api-gateway/core/domain/entity"
)

// MarketService answers price lookups.
type MarketService interface {
	GetPrice(ctx context.Context, coinID string) (*entity.Quote, error)
}

// UserService owns balances. ApplyBalanceDelta moves a signed amount and
// returns the resulting balance; kind is a ledger label ("trade",
// "rollback") the user service records with the mutation.
type UserService interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	ApplyBalanceDelta(ctx context.Context, userID string, delta decimal.Decimal, kind, description string) (decimal.Decimal, error)
}

// PortfolioService owns holdings. Add and Reduce are applied atomically
// server-side; the gateway never does read-modify-write on a holding.
type PortfolioService interface {
	ListHoldings(ctx context.Context, userID string) ([]entity.Holding, error)
	AddHolding(ctx context.Context, userID string, cmd entity.AddHolding) error
	ReduceHolding(ctx context.Context, userID, symbol string, amount decimal.Decimal) error
}

// TradeService records committed trades.
type TradeService interface {
	CreateTrade(ctx context.Context, trade *entity.Trade) (*entity.Trade, error)
}

// NotificationService is fire-and-forget: Notify never returns an error and
// is never awaited by the saga. Implementations log failures and move on.
type NotificationService interface {
	Notify(ctx context.Context, n entity.Notification)
}
