package ratelimit_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/manabi/internal/auth"
	"github.com/ashita-ai/manabi/internal/ctxutil"
	"github.com/ashita-ai/manabi/internal/model"
	"github.com/ashita-ai/manabi/internal/ratelimit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_RejectsWith429(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(1, 2)
	defer limiter.Close()

	handler := ratelimit.Middleware(limiter, "auth", ratelimit.KeyByIP, testLogger())(okHandler())

	// Burst of 2, so the third rapid request from the same IP is rejected.
	for i := range 3 {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/auth/token", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		handler.ServeHTTP(rec, req)

		if i < 2 {
			assert.Equal(t, http.StatusOK, rec.Code, "request %d within burst", i+1)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code, "request %d over burst", i+1)
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
			assert.Contains(t, rec.Body.String(), model.ErrCodeRateLimited)
		}
	}
}

func TestMiddleware_PrefixesIsolateBudgets(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(1, 1)
	defer limiter.Close()

	ingest := ratelimit.Middleware(limiter, "ingest", ratelimit.KeyByIP, testLogger())(okHandler())
	query := ratelimit.Middleware(limiter, "query", ratelimit.KeyByIP, testLogger())(okHandler())

	req := func() *http.Request {
		r := httptest.NewRequest("GET", "/x", nil)
		r.RemoteAddr = "10.0.0.1:1000"
		return r
	}

	rec := httptest.NewRecorder()
	ingest.ServeHTTP(rec, req())
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	ingest.ServeHTTP(rec, req())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "ingest budget exhausted")

	// The query budget for the same caller is untouched.
	rec = httptest.NewRecorder()
	query.ServeHTTP(rec, req())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestKeyByUser_AdminExempt(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(1, 1)
	defer limiter.Close()

	handler := ratelimit.Middleware(limiter, "query", ratelimit.KeyByUser, testLogger())(okHandler())

	adminReq := func() *http.Request {
		r := httptest.NewRequest("GET", "/x", nil)
		claims := &auth.Claims{UserID: "root", Role: model.RoleAdmin}
		return r.WithContext(ctxutil.WithClaims(r.Context(), claims))
	}

	// Admins bypass the limiter entirely, so repeated requests all pass.
	for i := range 5 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, adminReq())
		assert.Equal(t, http.StatusOK, rec.Code, "admin request %d", i+1)
	}
}

func TestKeyByUser_LearnersKeyedSeparately(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(1, 1)
	defer limiter.Close()

	handler := ratelimit.Middleware(limiter, "ingest", ratelimit.KeyByUser, testLogger())(okHandler())

	reqFor := func(userID string) *http.Request {
		r := httptest.NewRequest("POST", "/v1/events", nil)
		claims := &auth.Claims{UserID: userID, Role: model.RoleLearner}
		return r.WithContext(ctxutil.WithClaims(r.Context(), claims))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, reqFor("alice"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, reqFor("alice"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, reqFor("bob"))
	assert.Equal(t, http.StatusOK, rec.Code, "separate learner has its own bucket")
}
