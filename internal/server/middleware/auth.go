package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/yhaddad/go-relay/internal/auth"
)

// NewAuthMiddleware gates the WebSocket gateway behind a session token
// issued at login over the primary protocol. The token arrives either as a
// bearer header or a session-token cookie.
func NewAuthMiddleware(logger *slog.Logger, tokens *auth.TokenIssuer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

			// couldn't extract metadata from request so something went wrong with previous middlewares
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			var tokenString string
			if header := r.Header.Get("Authorization"); len(header) > 7 && header[:7] == "Bearer " {
				tokenString = header[7:]
			} else if cookie, err := r.Cookie("session-token"); err == nil {
				tokenString = cookie.Value
			}

			if tokenString == "" {
				logger.Warn("session token missing in request", "ip", reqMeta.IP)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := tokens.Verify(tokenString)
			if err != nil {
				logger.Warn("invalid session token presented", "ip", reqMeta.IP, slog.Any("error", err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			userID, err := strconv.ParseInt(claims.Subject, 10, 64)
			if err != nil {
				logger.Warn("token subject is not a user id", "ip", reqMeta.IP)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			reqMeta.UserID = userID
			reqMeta.Username = claims.Username
			reqMeta.IsAdmin = claims.IsAdmin
			next.ServeHTTP(w, r)
		})
	}
}
