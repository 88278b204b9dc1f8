package daemon

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"lectern/internal/api"
)

// authMiddleware guards every route with the configured api_token. An empty
// token disables the check. The events websocket also accepts ?token= since
// browsers cannot attach headers to an upgrade request.
func authMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	want := []byte(token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subtle.ConstantTimeCompare([]byte(presentedToken(r)), want) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func presentedToken(r *http.Request) string {
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(bearer)
	}
	if r.URL.Path == "/api/events" {
		return r.URL.Query().Get("token")
	}
	return ""
}
