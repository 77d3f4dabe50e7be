package middleware

import (
	"errors"
	"net/http"

	"github.com/benvon/wellness-sessions/internal/database"
	logpkg "github.com/benvon/wellness-sessions/internal/logger"
	"github.com/benvon/wellness-sessions/internal/models"
	"github.com/benvon/wellness-sessions/internal/request"
	"go.uber.org/zap"
)

// TokenVerifier validates a bearer token and returns its claims
type TokenVerifier interface {
	Verify(token string) (*models.JWTClaims, error)
}

// UserFromContext extracts the user from the request context
func UserFromContext(r *http.Request) *models.User {
	return request.UserFromContext(r)
}

// Auth verifies the bearer token and attaches the matching user to the request
// context. Unknown subjects are registered on first sight.
func Auth(verifier TokenVerifier, users database.UserRepositoryInterface, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := request.BearerToken(r)
			if err != nil {
				respondErrorJSON(w, r, http.StatusUnauthorized, "Unauthorized", err.Error(), logger)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("token_verification_failed",
					zap.String("error", logpkg.SanitizeError(err)),
					zap.String("token", logpkg.RedactToken(token)),
				)
				respondErrorJSON(w, r, http.StatusUnauthorized, "Unauthorized", "Invalid or expired token", logger)
				return
			}

			ctx := r.Context()
			user, err := users.GetByProviderID(ctx, claims.Sub)
			switch {
			case errors.Is(err, database.ErrUserNotFound):
				user = &models.User{Email: claims.Email, ProviderID: &claims.Sub}
				if claims.Name != "" {
					name := claims.Name
					user.Name = &name
				}
				if err := users.Create(ctx, user); err != nil {
					logger.Error("failed_to_create_user",
						zap.String("error", logpkg.SanitizeError(err)),
					)
					respondErrorJSON(w, r, http.StatusInternalServerError, "Internal Server Error", "Failed to create user", logger)
					return
				}
				logger.Info("user_registered", zap.String("user_id", user.ID.String()))
			case err != nil:
				logger.Error("failed_to_fetch_user",
					zap.String("error", logpkg.SanitizeError(err)),
				)
				respondErrorJSON(w, r, http.StatusInternalServerError, "Internal Server Error", "Database error", logger)
				return
			default:
				syncProfile(r, users, user, claims, logger)
			}

			next.ServeHTTP(w, r.WithContext(request.WithUser(ctx, user)))
		})
	}
}

// syncProfile copies email and name from fresh claims onto the stored user.
// Failures are logged; the request continues with the stale profile.
func syncProfile(r *http.Request, users database.UserRepositoryInterface, user *models.User, claims *models.JWTClaims, logger *zap.Logger) {
	changed := false
	if claims.Email != "" && user.Email != claims.Email {
		user.Email = claims.Email
		changed = true
	}
	if claims.Name != "" && (user.Name == nil || *user.Name != claims.Name) {
		name := claims.Name
		user.Name = &name
		changed = true
	}
	if !changed {
		return
	}
	if err := users.Update(r.Context(), user); err != nil {
		logger.Warn("failed_to_update_user_profile",
			zap.String("user_id", user.ID.String()),
			zap.String("error", logpkg.SanitizeError(err)),
		)
	}
}
