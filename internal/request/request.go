// Package request holds per-request helpers shared by middleware and handlers.
package request

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/benvon/wellness-sessions/internal/models"
)

type contextKey string

const userContextKey contextKey = "user"

var (
	// ErrMissingAuthorization is returned when no Authorization header is sent
	ErrMissingAuthorization = errors.New("missing Authorization header")
	// ErrMalformedAuthorization is returned for anything other than "Bearer <token>"
	ErrMalformedAuthorization = errors.New("invalid Authorization header format")
)

// UserContextKey returns the context key used for the user. Exposed for tests that inject non-user values.
func UserContextKey() contextKey { return userContextKey }

// ClientIP extracts the client IP, preferring X-Forwarded-For then X-Real-IP.
// The port is stripped from RemoteAddr so one client maps to one key.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// BearerToken returns the token from an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingAuthorization
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" || strings.Contains(token, " ") {
		return "", ErrMalformedAuthorization
	}
	return token, nil
}

// WithUser returns a context with the user attached.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the user from the request context, or nil if missing or wrong type.
func UserFromContext(r *http.Request) *models.User {
	u, _ := r.Context().Value(userContextKey).(*models.User)
	return u
}
