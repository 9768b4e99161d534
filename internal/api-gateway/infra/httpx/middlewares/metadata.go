// Package middlewares holds the gateway's chi middlewares.
package middlewares

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/cryptosim/trading-sagas/internal/pkg/httpmeta"
)

// AttachMetadata copies the chi request ID into the context so the resilient
// client forwards it on every downstream call via the X-Request-Id header.
func AttachMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := httpmeta.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects requests without an X-User-Id header. The edge proxy
// terminates the bearer token and injects this header; inside the platform it
// is the sole authentication context.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(httpmeta.HeaderUserID)
		if userID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":"unauthorized","message":"missing X-User-Id header"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(httpmeta.WithUserID(r.Context(), userID)))
	})
}
