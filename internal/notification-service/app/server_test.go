package app

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/cryptosim/trading-sagas/internal/pkg/httpmeta"
)

func send(t *testing.T, srv http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestSendAndListRecent(t *testing.T) {
	srv := NewServer().Router()

	rec := send(t, srv, `{"userId":"user-1","type":"trade_executed","title":"Bought 0.01 BTC"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/recent", nil)
	req.Header.Set(httpmeta.HeaderUserID, "user-1")
	out := httptest.NewRecorder()
	srv.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)

	var resp struct {
		Notifications []Notification `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(out.Body.Bytes(), &resp))
	require.Len(t, resp.Notifications, 1)
	require.Equal(t, "trade_executed", resp.Notifications[0].Type)
	require.NotEmpty(t, resp.Notifications[0].ID)
}

func TestSendValidates(t *testing.T) {
	srv := NewServer().Router()

	rec := send(t, srv, `{"title":"no user or type"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecentIsBounded(t *testing.T) {
	srv := NewServer().Router()

	for i := 0; i < keepPerUser+10; i++ {
		send(t, srv, fmt.Sprintf(`{"userId":"user-1","type":"t","title":"n%d"}`, i))
	}

	req := httptest.NewRequest(http.MethodGet, "/recent", nil)
	req.Header.Set(httpmeta.HeaderUserID, "user-1")
	out := httptest.NewRecorder()
	srv.ServeHTTP(out, req)

	var resp struct {
		Notifications []Notification `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(out.Body.Bytes(), &resp))
	require.Len(t, resp.Notifications, keepPerUser)
	require.Equal(t, "n59", resp.Notifications[keepPerUser-1].Title)
}
