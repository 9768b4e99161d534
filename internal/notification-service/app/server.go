// Package app is the notification service: a best-effort sink that keeps the
// most recent notifications per user in memory. Delivery to a real push
// channel is simulated with a log line.
package app

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/cryptosim/trading-sagas/internal/pkg/httpmeta"
)

// keepPerUser bounds the in-memory history per user.
const keepPerUser = 50

type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

type Server struct {
	mu     sync.RWMutex
	recent map[string][]Notification // userID -> newest last
}

func NewServer() *Server {
	return &Server{recent: make(map[string][]Notification)}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/send", s.send)
	r.Get("/recent", s.listRecent)
	return r
}

func (s *Server) send(w http.ResponseWriter, r *http.Request) {
	var n Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if n.UserID == "" {
		n.UserID = r.Header.Get(httpmeta.HeaderUserID)
	}
	if n.UserID == "" || n.Type == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "userId and type are required")
		return
	}

	n.ID = uuid.NewString()
	n.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	list := append(s.recent[n.UserID], n)
	if len(list) > keepPerUser {
		list = list[len(list)-keepPerUser:]
	}
	s.recent[n.UserID] = list
	s.mu.Unlock()

	slog.InfoContext(r.Context(), "notification delivered",
		"user_id", n.UserID, "type", n.Type, "title", n.Title)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": n.ID})
}

func (s *Server) listRecent(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(httpmeta.HeaderUserID)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing_user", "X-User-Id header is required")
		return
	}

	s.mu.RLock()
	out := make([]Notification, len(s.recent[userID]))
	copy(out, s.recent[userID])
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}
