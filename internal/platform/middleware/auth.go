package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// JWTValidator defines the interface for validating JWT tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator.
type JWTClaims struct {
	Subject  string
	ClientID string
}

type contextKeySubject struct{}
type contextKeyClientID struct{}

// Context keys exported for handlers and tests.
var (
	ContextKeySubject  = contextKeySubject{}
	ContextKeyClientID = contextKeyClientID{}
)

// GetSubject retrieves the authenticated subject from the context.
func GetSubject(ctx context.Context) string {
	subject, ok := ctx.Value(ContextKeySubject).(string)
	if !ok {
		return ""
	}
	return subject
}

// GetClientID retrieves the calling client ID from the context.
func GetClientID(ctx context.Context) string {
	clientID, ok := ctx.Value(ContextKeyClientID).(string)
	if !ok {
		return ""
	}
	return clientID
}

// RequireAuth validates the bearer token and stores the authenticated
// subject in the request context. Handlers behind it can assume GetSubject
// returns a non-empty value.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				logger.WarnContext(r.Context(), "missing bearer token",
					"path", r.URL.Path,
					"request_id", GetRequestID(r.Context()),
				)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(strings.TrimPrefix(authHeader, bearerPrefix))
			if err != nil {
				logger.WarnContext(r.Context(), "token validation failed",
					"path", r.URL.Path,
					"request_id", GetRequestID(r.Context()),
					"error", err.Error(),
				)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySubject, claims.Subject)
			ctx = context.WithValue(ctx, ContextKeyClientID, claims.ClientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
