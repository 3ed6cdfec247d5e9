package auth

import (
	"net/http"
	"strings"

	"exam-system/internal/apperr"
	"exam-system/internal/httpx"
	"exam-system/internal/identity"
	"exam-system/pkg/logger"
)

// bearer extracts the token from the Authorization header, or from the
// token query parameter for websocket upgrades which cannot set headers.
func bearer(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if t := r.URL.Query().Get("token"); t != "" {
			return t, nil
		}
		return "", apperr.Unauthenticated("authorization header required")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", apperr.Unauthenticated("invalid token format")
	}
	return parts[1], nil
}

// JWTMiddleware authenticates every request and places the caller's
// Identity on the request context.
func JWTMiddleware(svc *Service, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearer(r)
			if err != nil {
				httpx.Error(w, r, log, err)
				return
			}
			accountID, err := svc.ParseToken(raw)
			if err != nil {
				httpx.Error(w, r, log, err)
				return
			}
			id, err := svc.Identify(r.Context(), accountID)
			if err != nil {
				httpx.Error(w, r, log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), id)))
		})
	}
}
