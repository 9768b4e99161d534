// Package service contains the HTTP adapters that implement the gateway's
// ports against the downstream microservices. Every call goes through the
// resilient client, so registry resolution and circuit breaking are uniform
// across services.
package service

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cryptosim/trading-sagas/internal/api-gateway/core/domain/entity"
	"github.com/cryptosim/trading-sagas/internal/pkg/errs"
	"github.com/cryptosim/trading-sagas/internal/resilient"
)

// Logical service names as registered in the service registry.
const (
	userServiceName         = "user-service"
	marketServiceName       = "market-service"
	portfolioServiceName    = "portfolio-service"
	tradeServiceName        = "trade-service"
	notificationServiceName = "notification-service"
)

// Market adapts the market service.
type Market struct {
	client *resilient.Client
}

// NewMarket builds the adapter.
func NewMarket(client *resilient.Client) *Market {
	return &Market{client: client}
}

// GetPrice fetches the current quote for a coin. Any failure is reported as
// PriceUnavailable: the buy/sell flows cannot start without a price, and the
// distinction between transport flavors does not matter to the caller here.
func (m *Market) GetPrice(ctx context.Context, coinID string) (*entity.Quote, error) {
	resp, err := m.client.Call(ctx, resilient.Request{
		Service: marketServiceName,
		Method:  http.MethodGet,
		Path:    "/price/" + url.PathEscape(coinID),
	})
	if err != nil {
		return nil, errs.Wrap(errs.CodePriceUnavailable, err, "no price for %s", coinID)
	}
	quote, err := resilient.Decode[entity.Quote](resp)
	if err != nil {
		return nil, errs.Wrap(errs.CodePriceUnavailable, err, "bad quote for %s", coinID)
	}
	return &quote, nil
}
