package server

import (
	"context"
	"net/http"
)

type contextKey string

const userIDKey contextKey = "userID"

// requireUser pulls the caller's identity from the X-User-ID header.
// Authentication itself happens upstream at the API gateway; this service
// trusts the header it is handed.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "missing X-User-ID header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func userFrom(r *http.Request) string {
	userID, _ := r.Context().Value(userIDKey).(string)
	return userID
}
