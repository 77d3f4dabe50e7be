package middleware

import (
	"net/http"

	logpkg "github.com/benvon/wellness-sessions/internal/logger"
	"github.com/benvon/wellness-sessions/internal/request"
	"go.uber.org/zap"
)

// Audit logs failed authentication, authorization and rate limit events
func Audit(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			var event string
			switch rec.status {
			case http.StatusUnauthorized, http.StatusForbidden:
				event = "security_event"
			case http.StatusTooManyRequests:
				event = "rate_limit_violation"
			default:
				return
			}

			fields := []zap.Field{
				zap.Int("status_code", rec.status),
				zap.String("method", r.Method),
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.String("ip", logpkg.SanitizeString(request.ClientIP(r), logpkg.MaxGeneralStringLength)),
			}
			if user := request.UserFromContext(r); user != nil {
				fields = append(fields, zap.String("user_id", logpkg.SanitizeUserID(user.ID.String())))
			}
			logger.Warn(event, fields...)
		})
	}
}
