package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// QueryParam is the query parameter accepted in place of the header.
// Browsers cannot attach headers to a WebSocket handshake.
const QueryParam = "token"

// Middleware returns HTTP middleware that enforces a shared token on every
// request passed to the wrapped handler.
//
// Behaviour:
//   - If mode != "token" or key == "", all requests pass through.
//   - Otherwise the token is read from header, falling back to the "token"
//     query parameter, and compared to key in constant time.
//   - A missing or incorrect token is answered with 401 before the handler
//     (and any WebSocket upgrade) runs.
func Middleware(mode, header, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if mode != "token" || key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if got == "" {
				got = r.URL.Query().Get(QueryParam)
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				slog.Debug("auth: rejected request", "path", r.URL.Path, "remote", r.RemoteAddr)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Exempt wraps next so that requests for the listed paths skip guard.
// The gateway uses it to keep /metrics scrapeable without a token.
func Exempt(guard func(http.Handler) http.Handler, next http.Handler, paths ...string) http.Handler {
	guarded := guard(next)
	open := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		open[p] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := open[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}
		guarded.ServeHTTP(w, r)
	})
}
