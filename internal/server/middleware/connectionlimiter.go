package middleware

import (
	"log/slog"
	"net/http"
)

// ConnectionCounter reports how many live connections the server holds.
type ConnectionCounter func() int

// NewConnectionLimiter rejects gateway upgrades once the server-wide
// connection cap is reached. A cap of zero disables the limiter.
func NewConnectionLimiter(logger *slog.Logger, counter ConnectionCounter, maxConns int) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxConns <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			count := counter()
			if count < maxConns {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("connection cap reached, rejecting upgrade", slog.Int("count", count), slog.Int("max", maxConns))
			http.Error(w, "Too Many Active Connections", http.StatusTooManyRequests)
		})
	}
}
