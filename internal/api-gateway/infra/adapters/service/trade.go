package service

import (
	"context"
	"net/http"

	"github.com/cryptosim/trading-sagas/internal/api-gateway/core/domain/entity"
	"github.com/cryptosim/trading-sagas/internal/resilient"
)

// Trade adapts the trade service.
type Trade struct {
	client *resilient.Client
}

// NewTrade builds the adapter.
func NewTrade(client *resilient.Client) *Trade {
	return &Trade{client: client}
}

// CreateTrade records a committed trade and returns it with its assigned ID.
func (t *Trade) CreateTrade(ctx context.Context, trade *entity.Trade) (*entity.Trade, error) {
	resp, err := t.client.Call(ctx, resilient.Request{
		Service: tradeServiceName,
		Method:  http.MethodPost,
		Path:    "/",
		Body:    trade,
	})
	if err != nil {
		return nil, err
	}
	created, err := resilient.Decode[entity.Trade](resp)
	if err != nil {
		return nil, err
	}
	return &created, nil
}
