package service

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/cryptosim/trading-sagas/internal/api-gateway/core/domain/entity"
	"github.com/cryptosim/trading-sagas/internal/resilient"
)

// Portfolio adapts the portfolio service's holding endpoints.
type Portfolio struct {
	client *resilient.Client
}

// NewPortfolio builds the adapter.
func NewPortfolio(client *resilient.Client) *Portfolio {
	return &Portfolio{client: client}
}

type holdingsResponse struct {
	Holdings []entity.Holding `json:"holdings"`
}

type reduceHoldingRequest struct {
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}

// ListHoldings returns the user's full holdings list.
func (p *Portfolio) ListHoldings(ctx context.Context, userID string) ([]entity.Holding, error) {
	resp, err := p.client.Call(ctx, resilient.Request{
		Service: portfolioServiceName,
		Method:  http.MethodGet,
		Path:    "/",
	})
	if err != nil {
		return nil, err
	}
	out, err := resilient.Decode[holdingsResponse](resp)
	if err != nil {
		return nil, err
	}
	return out.Holdings, nil
}

// AddHolding merges the command into the user's holdings (weighted-average
// buy price recomputed server-side).
func (p *Portfolio) AddHolding(ctx context.Context, userID string, cmd entity.AddHolding) error {
	_, err := p.client.Call(ctx, resilient.Request{
		Service: portfolioServiceName,
		Method:  http.MethodPost,
		Path:    "/holding",
		Body:    cmd,
	})
	return err
}

// ReduceHolding decrements a holding; the portfolio service removes it
// entirely when the remaining amount hits exactly zero, and rejects the
// reduce when the held amount is insufficient.
func (p *Portfolio) ReduceHolding(ctx context.Context, userID, symbol string, amount decimal.Decimal) error {
	_, err := p.client.Call(ctx, resilient.Request{
		Service: portfolioServiceName,
		Method:  http.MethodPut,
		Path:    "/holding",
		Body:    reduceHoldingRequest{Symbol: symbol, Amount: amount},
	})
	return err
}
