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
	"github.com/cryptosim/trading-sagas/internal/portfolio-service/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(httpmeta.HeaderUserID, "user-1")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func listHoldings(t *testing.T, srv http.Handler) []domain.Holding {
	t.Helper()
	rec := do(t, srv, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Holdings []domain.Holding `json:"holdings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Holdings
}

func TestAddAndListHoldings(t *testing.T) {
	srv := NewServer().Router()

	rec := do(t, srv, http.MethodPost, "/holding",
		`{"symbol":"btc","coinId":"bitcoin","name":"Bitcoin","amount":"0.01","buyPrice":"40000"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	holdings := listHoldings(t, srv)
	require.Len(t, holdings, 1)
	require.Equal(t, "BTC", holdings[0].Symbol)
	require.True(t, holdings[0].Amount.Equal(d("0.01")))
	require.True(t, holdings[0].AverageBuyPrice.Equal(d("40000")))
}

func TestAddMergesWeightedAverage(t *testing.T) {
	srv := NewServer().Router()

	do(t, srv, http.MethodPost, "/holding",
		`{"symbol":"BTC","coinId":"bitcoin","amount":"0.01","buyPrice":"40000"}`)
	do(t, srv, http.MethodPost, "/holding",
		`{"symbol":"BTC","coinId":"bitcoin","amount":"0.01","buyPrice":"50000"}`)

	holdings := listHoldings(t, srv)
	require.Len(t, holdings, 1)
	require.True(t, holdings[0].Amount.Equal(d("0.02")))
	require.True(t, holdings[0].AverageBuyPrice.Equal(d("45000")))
}

func TestReduceDeletesAtZero(t *testing.T) {
	srv := NewServer().Router()

	do(t, srv, http.MethodPost, "/holding",
		`{"symbol":"BTC","coinId":"bitcoin","amount":"0.02","buyPrice":"45000"}`)

	rec := do(t, srv, http.MethodPut, "/holding", `{"symbol":"BTC","amount":"0.02"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Empty(t, listHoldings(t, srv))
}

func TestReduceRejectsInsufficientAmount(t *testing.T) {
	srv := NewServer().Router()

	do(t, srv, http.MethodPost, "/holding",
		`{"symbol":"BTC","coinId":"bitcoin","amount":"0.01","buyPrice":"45000"}`)

	rec := do(t, srv, http.MethodPut, "/holding", `{"symbol":"BTC","amount":"0.05"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "insufficient_holding", resp["error"])

	// Nothing was mutated by the rejected reduce.
	holdings := listHoldings(t, srv)
	require.Len(t, holdings, 1)
	require.True(t, holdings[0].Amount.Equal(d("0.01")))
}

func TestReduceUnknownSymbol(t *testing.T) {
	srv := NewServer().Router()

	rec := do(t, srv, http.MethodPut, "/holding", `{"symbol":"DOGE","amount":"1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequiresUserHeader(t *testing.T) {
	srv := NewServer().Router()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
