// Package provider supplies coin quotes to the market service, either from a
// live upstream price feed or from the built-in static catalog.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// ErrUnknownCoin is returned for coin IDs outside the supported catalog.
var ErrUnknownCoin = errors.New("unknown coin")

// Quote is one coin's current price in USD.
type Quote struct {
	CoinID string          `json:"coinId"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}

// Provider answers price lookups.
type Provider interface {
	Quote(ctx context.Context, coinID string) (Quote, error)
}

type coin struct {
	name  string
	price decimal.Decimal
}

// catalog lists the coins the simulator supports, with the reference prices
// the static provider serves when no upstream feed is configured.
var catalog = map[string]coin{
	"bitcoin":  {name: "Bitcoin", price: decimal.RequireFromString("50000")},
	"ethereum": {name: "Ethereum", price: decimal.RequireFromString("3000")},
	"solana":   {name: "Solana", price: decimal.RequireFromString("150")},
	"cardano":  {name: "Cardano", price: decimal.RequireFromString("0.45")},
	"dogecoin": {name: "Dogecoin", price: decimal.RequireFromString("0.08")},
}

// Static serves the fixed catalog prices.
type Static struct{}

func (Static) Quote(_ context.Context, coinID string) (Quote, error) {
	c, ok := catalog[coinID]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnknownCoin, coinID)
	}
	return Quote{CoinID: coinID, Name: c.name, Price: c.price}, nil
}

// Upstream fetches live USD prices from a CoinGecko-compatible simple-price
// endpoint, retrying with exponential backoff and falling back to the static
// catalog when the feed stays unreachable.
type Upstream struct {
	baseURL  string
	client   *http.Client
	fallback Provider
	maxTries int
}

// NewUpstream builds the live provider. baseURL points at the feed root
// (e.g. https://api.coingecko.com/api/v3).
func NewUpstream(baseURL string) *Upstream {
	return &Upstream{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 3 * time.Second},
		fallback: Static{},
		maxTries: 3,
	}
}

func (u *Upstream) Quote(ctx context.Context, coinID string) (Quote, error) {
	// The catalog also acts as the allow-list for upstream lookups.
	c, ok := catalog[coinID]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnknownCoin, coinID)
	}

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = 100 * time.Millisecond

	var lastErr error
	for try := 0; try < u.maxTries; try++ {
		if try > 0 {
			select {
			case <-ctx.Done():
				return Quote{}, ctx.Err()
			case <-time.After(backoffCfg.NextBackOff()):
			}
		}
		price, err := u.fetchPrice(ctx, coinID)
		if err != nil {
			lastErr = err
			continue
		}
		return Quote{CoinID: coinID, Name: c.name, Price: price}, nil
	}

	// Feed down: a stale reference price beats failing every trade.
	q, err := u.fallback.Quote(ctx, coinID)
	if err != nil {
		return Quote{}, errors.Join(lastErr, err)
	}
	return q, nil
}

func (u *Upstream) fetchPrice(ctx context.Context, coinID string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd",
		u.baseURL, url.QueryEscape(coinID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price feed status %d", resp.StatusCode)
	}

	var payload map[string]struct {
		USD json.Number `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, err
	}
	entry, ok := payload[coinID]
	if !ok || entry.USD == "" {
		return decimal.Zero, fmt.Errorf("price feed has no entry for %s", coinID)
	}
	return decimal.NewFromString(entry.USD.String())
}
