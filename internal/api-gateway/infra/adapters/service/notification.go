package service

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cryptosim/trading-sagas/internal/resilient"

	"github.com/cryptosim/trading-sagas/internal/api-gateway/core/domain/entity"
)

// Notification is the best-effort sink. Notify dispatches on a detached
// context and may race the HTTP response: it is never awaited, never
// retried, and its failure only produces a log line.
type Notification struct {
	client  *resilient.Client
	timeout time.Duration
}

// NewNotification builds the adapter.
func NewNotification(client *resilient.Client) *Notification {
	return &Notification{client: client, timeout: 5 * time.Second}
}

// Notify sends the payload in a background goroutine. The context is
// detached from the request so cancellation of the HTTP response does not
// cancel the push, while tracing metadata still propagates.
func (n *Notification) Notify(ctx context.Context, payload entity.Notification) {
	detached := context.WithoutCancel(ctx)
	go func() {
		sendCtx, cancel := context.WithTimeout(detached, n.timeout)
		defer cancel()

		_, err := n.client.Call(sendCtx, resilient.Request{
			Service: notificationServiceName,
			Method:  http.MethodPost,
			Path:    "/send",
			Body:    payload,
		})
		if err != nil {
			slog.WarnContext(sendCtx, "notification dispatch failed",
				"user_id", payload.UserID, "type", payload.Type, "error", err)
		}
	}()
}
