package manabi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/manabi/sdk/go/manabi"
)

func newTestClient(t *testing.T, handler http.Handler) (*manabi.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := manabi.NewClient(manabi.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	return client, srv
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := manabi.NewClient(manabi.Config{})
	assert.Error(t, err)
}

func TestLoginStoresToken(t *testing.T) {
	expiry := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/token", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["user_id"])
		assert.Equal(t, "alice-key", body["api_key"])
		writeData(w, http.StatusOK, map[string]any{"token": "tok-123", "expires_at": expiry})
	}))

	got, err := client.Login(context.Background(), "alice", "alice-key")
	require.NoError(t, err)
	assert.Equal(t, expiry, got.UTC())
	assert.Equal(t, "tok-123", client.SessionToken())
}

func TestLoginFailure(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
	}))

	_, err := client.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)

	var apiErr *manabi.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
	assert.Equal(t, "invalid credentials", apiErr.Message)
	assert.True(t, manabi.IsUnauthorized(err))
	assert.Empty(t, client.SessionToken())
}

func TestIngestEventsSendsBearer(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/events", r.URL.Path)
		assert.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))

		var body struct {
			Events []manabi.EventInput `json:"events"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeData(w, http.StatusAccepted, map[string]int{"accepted": len(body.Events)})
	}))
	client.SetSessionToken("tok-abc")

	accepted, err := client.IngestEvents(context.Background(), []manabi.EventInput{
		{CourseID: "c1", EventType: "video.play"},
		{CourseID: "c1", EventType: "quiz.fail"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, accepted)
}

func TestAuthedCallWithoutTokenFailsLocally(t *testing.T) {
	called := false
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	_, err := client.IngestEvents(context.Background(), []manabi.EventInput{
		{CourseID: "c1", EventType: "video.play"},
	})
	require.Error(t, err)
	assert.True(t, manabi.IsUnauthorized(err))
	assert.False(t, called, "no request should be made without a token")
}

func TestCourseStatuses(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/courses/go-basics/statuses", r.URL.Path)
		writeData(w, http.StatusOK, manabi.CourseStatusesResponse{
			CourseID: "go-basics",
			Statuses: []manabi.AggregatedStatus{
				{UserID: "alice", CourseID: "go-basics", Status: manabi.StatusContentFriction},
			},
			Summary: manabi.StatusSummary{ContentFriction: 1},
		})
	}))
	client.SetSessionToken("tok")

	resp, err := client.CourseStatuses(context.Background(), "go-basics")
	require.NoError(t, err)
	assert.Equal(t, "go-basics", resp.CourseID)
	require.Len(t, resp.Statuses, 1)
	assert.Equal(t, manabi.StatusContentFriction, resp.Statuses[0].Status)
}

func TestLearnerHistoryQueryParams(t *testing.T) {
	before := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/learners/alice/history", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "go-basics", q.Get("course_id"))
		assert.Equal(t, "25", q.Get("limit"))
		assert.Equal(t, before.Format(time.RFC3339), q.Get("before"))
		writeData(w, http.StatusOK, manabi.HistoryResponse{
			UserID: "alice", CourseID: "go-basics", Events: []manabi.ClassifiedEvent{},
		})
	}))
	client.SetSessionToken("tok")

	resp, err := client.LearnerHistory(context.Background(), "alice", "go-basics",
		&manabi.HistoryOptions{Limit: 25, Before: &before})
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.UserID)
}

func TestHealthWithoutToken(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		writeData(w, http.StatusOK, manabi.HealthResponse{Status: "healthy", Postgres: "connected"})
	}))

	resp, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", resp.Status)
}

func TestErrorHelpers(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusNotFound, manabi.IsNotFound},
		{http.StatusForbidden, manabi.IsForbidden},
		{http.StatusTooManyRequests, manabi.IsRateLimited},
	}
	for _, tc := range cases {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeAPIError(w, tc.status, http.StatusText(tc.status), "nope")
		}))
		client.SetSessionToken("tok")

		_, err := client.CourseStatuses(context.Background(), "c")
		require.Error(t, err)
		assert.True(t, tc.check(err), "status %d", tc.status)
	}
}

func TestNonEnvelopeResponseFallback(t *testing.T) {
	// A bare body without the {data} wrapper still decodes.
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(manabi.HealthResponse{Status: "healthy"})
	}))

	resp, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", resp.Status)
}
