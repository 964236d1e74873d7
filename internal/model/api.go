package model

import (
	"fmt"
	"time"
)

// Field length limits for ingestion inputs. These keep caller-controlled
// strings out of unbounded Postgres TEXT columns and log lines.
const (
	MaxEventTypeLen = 200
	MaxCourseIDLen  = 200
	MaxTopicIDLen   = 200
	MaxReasonLen    = 2048
	MaxBatchEvents  = 100
)

// EventInput is a single telemetry event in an ingestion batch.
// The learner identity is never part of the input; it is attached from the
// authenticated caller's claims.
type EventInput struct {
	CourseID   string         `json:"course_id"`
	ModuleNo   *int           `json:"module_no,omitempty"`
	TopicID    *string        `json:"topic_id,omitempty"`
	EventType  string         `json:"event_type"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt *time.Time     `json:"occurred_at,omitempty"`
}

// Validate checks a single event input against field limits.
func (e EventInput) Validate() error {
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if len(e.EventType) > MaxEventTypeLen {
		return fmt.Errorf("event_type exceeds maximum length of %d characters", MaxEventTypeLen)
	}
	if e.CourseID == "" {
		return fmt.Errorf("course_id is required")
	}
	if len(e.CourseID) > MaxCourseIDLen {
		return fmt.Errorf("course_id exceeds maximum length of %d characters", MaxCourseIDLen)
	}
	if e.TopicID != nil && len(*e.TopicID) > MaxTopicIDLen {
		return fmt.Errorf("topic_id exceeds maximum length of %d characters", MaxTopicIDLen)
	}
	if reason, ok := e.Payload["reason"].(string); ok && len(reason) > MaxReasonLen {
		return fmt.Errorf("payload.reason exceeds maximum length of %d bytes", MaxReasonLen)
	}
	return nil
}

// IngestEventsRequest is the request body for POST /v1/events.
type IngestEventsRequest struct {
	Events []EventInput `json:"events"`
}

// IngestEventsResponse reports whole-batch success; there is no per-event
// accounting because the batch is inserted atomically.
type IngestEventsResponse struct {
	Accepted int `json:"accepted"`
}

// CourseStatusesResponse is the response for GET /v1/courses/{course_id}/statuses.
type CourseStatusesResponse struct {
	CourseID string             `json:"course_id"`
	Statuses []AggregatedStatus `json:"statuses"`
	Summary  StatusSummary      `json:"summary"`
}

// HistoryResponse is the response for GET /v1/learners/{user_id}/history.
type HistoryResponse struct {
	UserID   string            `json:"user_id"`
	CourseID string            `json:"course_id"`
	Events   []ClassifiedEvent `json:"events"`
	HasMore  bool              `json:"has_more"`
}

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	UserID string `json:"user_id"`
	APIKey string `json:"api_key"`
}

// AuthTokenResponse is the response for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateUserRequest is the request body for POST /v1/users.
type CreateUserRequest struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name"`
	Role   UserRole `json:"role"`
	APIKey string   `json:"api_key"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Uptime   int64  `json:"uptime_seconds"`
}

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)
