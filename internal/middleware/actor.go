package middleware

import (
	"net/http"

	"github.com/jakekausler/campaign-manager/internal/auth"
)

// ActorMiddleware copies the X-Actor header into the request context so
// handlers can stamp writes without threading the header everywhere.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := r.Header.Get("X-Actor"); actor != "" {
			r = r.WithContext(auth.ContextWithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}
