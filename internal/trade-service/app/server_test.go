package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cryptosim/trading-sagas/internal/pkg/httpmeta"
)

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(httpmeta.HeaderUserID, "user-1")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndListTrades(t *testing.T) {
	srv := NewServer().Router()

	rec := do(t, srv, http.MethodPost, "/",
		`{"type":"buy","symbol":"BTC","amount":"0.01","price":"50000","totalCost":"500","fee":"0.5","balanceBefore":"1000","balanceAfter":"499.5"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created Trade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	require.Equal(t, "user-1", created.UserID)
	require.False(t, created.ExecutedAt.IsZero())

	rec = do(t, srv, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Trades []Trade `json:"trades"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Trades, 1)
	require.True(t, resp.Trades[0].TotalCost.Equal(decimal.RequireFromString("500")))
}

func TestCreateTradeValidatesType(t *testing.T) {
	srv := NewServer().Router()

	rec := do(t, srv, http.MethodPost, "/", `{"type":"short","symbol":"BTC","amount":"1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTradeRequiresUser(t *testing.T) {
	srv := NewServer().Router()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"type":"buy","symbol":"BTC","amount":"1"}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
