package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestStaticQuote(t *testing.T) {
	q, err := Static{}.Quote(context.Background(), "bitcoin")
	require.NoError(t, err)
	require.Equal(t, "Bitcoin", q.Name)
	require.True(t, q.Price.Equal(decimal.RequireFromString("50000")))

	_, err = Static{}.Quote(context.Background(), "notacoin")
	require.ErrorIs(t, err, ErrUnknownCoin)
}

func TestUpstreamQuote(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":51234.5}}`))
	}))
	defer feed.Close()

	u := NewUpstream(feed.URL)
	q, err := u.Quote(context.Background(), "bitcoin")
	require.NoError(t, err)
	require.True(t, q.Price.Equal(decimal.RequireFromString("51234.5")), "price = %s", q.Price)
	require.Equal(t, "Bitcoin", q.Name)
}

func TestUpstreamRetriesThenSucceeds(t *testing.T) {
	var calls int
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"ethereum":{"usd":3100}}`))
	}))
	defer feed.Close()

	u := NewUpstream(feed.URL)
	u.maxTries = 3

	q, err := u.Quote(context.Background(), "ethereum")
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.True(t, q.Price.Equal(decimal.RequireFromString("3100")))
}

func TestUpstreamFallsBackToCatalog(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer feed.Close()

	u := NewUpstream(feed.URL)
	u.maxTries = 2

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q, err := u.Quote(ctx, "solana")
	require.NoError(t, err)
	require.True(t, q.Price.Equal(decimal.RequireFromString("150")))
}

func TestUpstreamRejectsUnknownCoin(t *testing.T) {
	u := NewUpstream("http://unused.invalid")
	_, err := u.Quote(context.Background(), "notacoin")
	require.ErrorIs(t, err, ErrUnknownCoin)
}
