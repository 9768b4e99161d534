package resilient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/cryptosim/trading-sagas/internal/breaker"
	"github.com/cryptosim/trading-sagas/internal/pkg/errs"
	"github.com/cryptosim/trading-sagas/internal/pkg/httpmeta"
	"github.com/cryptosim/trading-sagas/internal/registry"
)

func addrOf(t *testing.T, srv *httptest.Server) registry.Address {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return registry.Address{Host: host, Port: port}
}

func newClient(t *testing.T, service string, srv *httptest.Server, cfg breaker.Config) (*Client, *registry.Client) {
	t.Helper()
	fallback := map[string]registry.Address{}
	if srv != nil {
		fallback[service] = addrOf(t, srv)
	}
	reg := registry.New(nil, fallback, 30*time.Second)
	return New(reg, breaker.NewSet(cfg)), reg
}

func TestCallSuccessPropagatesHeaders(t *testing.T) {
	var gotUser, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get(httpmeta.HeaderUserID)
		gotRequestID = r.Header.Get(httpmeta.HeaderRequestID)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"balance":"499.50"}`))
	}))
	defer srv.Close()

	client, _ := newClient(t, "user-service", srv, breaker.Config{})
	ctx := httpmeta.WithUserID(context.Background(), "user-1")
	ctx = httpmeta.WithRequestID(ctx, "req-42")

	resp, err := client.Call(ctx, Request{Service: "user-service", Method: http.MethodGet, Path: "/balance"})
	require.NoError(t, err)
	require.Equal(t, "user-1", gotUser)
	require.Equal(t, "req-42", gotRequestID)

	decoded, err := Decode[map[string]string](resp)
	require.NoError(t, err)
	require.Equal(t, "499.50", decoded["balance"])
}

func TestCallEncodesJSONBody(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, _ := newClient(t, "trade-service", srv, breaker.Config{})
	_, err := client.Call(context.Background(), Request{
		Service: "trade-service",
		Method:  http.MethodPost,
		Path:    "/",
		Body:    map[string]string{"symbol": "BTC"},
	})
	require.NoError(t, err)
	require.Equal(t, "BTC", got["symbol"])
}

func TestCallPassesDownstreamErrorThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"insufficient_balance"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client, _ := newClient(t, "user-service", srv, breaker.Config{})
	_, err := client.Call(context.Background(), Request{Service: "user-service", Method: http.MethodPut, Path: "/balance"})

	require.Equal(t, errs.CodeDownstream, errs.CodeOf(err))
	require.Equal(t, http.StatusBadRequest, errs.HTTPStatus(err))
	require.Contains(t, err.Error(), "insufficient_balance")
}

func TestCallTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client, _ := newClient(t, "market-service", srv, breaker.Config{CallTimeout: 50 * time.Millisecond})
	_, err := client.Call(context.Background(), Request{Service: "market-service", Method: http.MethodGet, Path: "/price/bitcoin"})

	require.Equal(t, errs.CodeServiceTimeout, errs.CodeOf(err))
}

func TestCompensationCallGetsDoubledTimeout(t *testing.T) {
	// The server answers between 1x and 2x the breaker's call timeout, so a
	// normal call overruns while a compensation call fits in its budget.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(300 * time.Millisecond):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, _ := newClient(t, "user-service", srv, breaker.Config{CallTimeout: 200 * time.Millisecond})

	_, err := client.Call(context.Background(), Request{Service: "user-service", Method: http.MethodPut, Path: "/balance"})
	require.Equal(t, errs.CodeServiceTimeout, errs.CodeOf(err))

	ctx := httpmeta.WithCompensation(context.Background())
	resp, err := client.Call(ctx, Request{Service: "user-service", Method: http.MethodPut, Path: "/balance"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
}

func TestCallCircuitOpenIsFlagged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := breaker.Config{VolumeThreshold: 2, ErrorThresholdPercentage: 50}
	client, _ := newClient(t, "portfolio-service", srv, cfg)

	for i := 0; i < 2; i++ {
		_, err := client.Call(context.Background(), Request{Service: "portfolio-service", Method: http.MethodGet, Path: "/"})
		require.Error(t, err)
	}

	_, err := client.Call(context.Background(), Request{Service: "portfolio-service", Method: http.MethodGet, Path: "/"})
	require.Equal(t, errs.CodeServiceUnavailable, errs.CodeOf(err))
	require.True(t, errs.IsCircuitOpen(err))
}

func TestCallUnresolvableService(t *testing.T) {
	client, _ := newClient(t, "user-service", nil, breaker.Config{})
	_, err := client.Call(context.Background(), Request{Service: "ghost-service", Method: http.MethodGet, Path: "/"})

	require.Equal(t, errs.CodeServiceUnavailable, errs.CodeOf(err))
	require.False(t, errs.IsCircuitOpen(err))
}

func TestConnectionErrorInvalidatesCache(t *testing.T) {
	// A listener that is closed immediately gives a connect-refused port.
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(lis.Addr().String())
	require.NoError(t, err)
	port, _ := strconv.Atoi(portStr)
	require.NoError(t, lis.Close())

	backend := &countingBackend{addr: registry.Address{Service: "user-service", Host: host, Port: port}}
	reg := registry.New(backend, nil, time.Hour)
	client := New(reg, breaker.NewSet(breaker.Config{}))

	_, err = client.Call(context.Background(), Request{Service: "user-service", Method: http.MethodGet, Path: "/balance"})
	require.Equal(t, errs.CodeServiceUnavailable, errs.CodeOf(err))

	// The failed connection evicted the cache entry, so the next call
	// resolves again instead of reusing the dead address for a full TTL.
	_, _ = client.Call(context.Background(), Request{Service: "user-service", Method: http.MethodGet, Path: "/balance"})
	require.Equal(t, 2, backend.calls)
}

type countingBackend struct {
	addr  registry.Address
	calls int
}

func (b *countingBackend) Lookup(ctx context.Context, service string) ([]registry.Address, error) {
	b.calls++
	return []registry.Address{b.addr}, nil
}
