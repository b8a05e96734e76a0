package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/israelgr/High-lander-task/internal/auth"
	"github.com/israelgr/High-lander-task/internal/highlander"
)

type ctxKey int

const ctxKeyIdentity ctxKey = iota

func bearer(r *http.Request) string {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		return ""
	}
	return strings.TrimSpace(token)
}

// authMiddleware requires a valid access token and stores its identity in
// the request context.
func authMiddleware(accounts *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearer(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required")
				return
			}
			id, err := accounts.Authenticate(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyIdentity, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// adminMiddleware runs after authMiddleware and rejects non-admin users.
func adminMiddleware(accounts *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := accounts.IsAdmin(r.Context(), identityFrom(r).UserID)
			if err != nil || !ok {
				writeError(w, http.StatusForbidden, codeForbidden, "admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func identityFrom(r *http.Request) highlander.Identity {
	return r.Context().Value(ctxKeyIdentity).(highlander.Identity)
}
