package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ashita-ai/manabi/internal/ctxutil"
	"github.com/ashita-ai/manabi/internal/model"
)

// KeyFunc extracts the rate-limit key for a request. An empty key exempts
// the request from limiting.
type KeyFunc func(r *http.Request) string

// KeyByUser keys requests by the authenticated caller's user id, falling
// back to client IP for unauthenticated requests. Admins are exempt.
func KeyByUser(r *http.Request) string {
	if claims := ctxutil.ClaimsFromContext(r.Context()); claims != nil {
		if claims.Role == model.RoleAdmin {
			return ""
		}
		return "user:" + claims.UserID
	}
	return KeyByIP(r)
}

// KeyByIP keys requests by client IP. Used for unauthenticated endpoints
// like token issuance, where credential stuffing is the concern.
func KeyByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// Middleware applies limiter to requests keyed by keyFn, namespaced under
// prefix so different endpoint groups have independent budgets. Rejected
// requests receive a 429 with the standard error envelope.
func Middleware(limiter Limiter, prefix string, keyFn KeyFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			key = prefix + ":" + key

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				// Fail open: a broken limiter should degrade to
				// unlimited, not take the API down.
				logger.Error("rate limiter failure", "error", err, "key", key)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				logger.Warn("request rate limited", "key", key, "path", r.URL.Path)
				writeRateLimited(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	requestID := ctxutil.RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(model.APIError{
		Error: model.ErrorDetail{
			Code:    model.ErrCodeRateLimited,
			Message: "rate limit exceeded, slow down",
		},
		Meta: model.ResponseMeta{
			RequestID: requestID,
			Timestamp: time.Now().UTC(),
		},
	})
}
