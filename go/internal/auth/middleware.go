package auth

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// Middleware authenticates HTTP and websocket requests
type Middleware struct {
	svc *Service
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(svc *Service) *Middleware {
	return &Middleware{svc: svc}
}

// RequireIdentity validates the bearer token (or the token query parameter, for
// websocket upgrades) and stores the identity in the request context
func (m *Middleware) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			writeAuthError(w, "missing authorization")
			return
		}

		id, err := m.svc.ValidateToken(token)
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected token")
			writeAuthError(w, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func writeAuthError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
