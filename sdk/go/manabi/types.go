package manabi

import (
	"time"

	"github.com/google/uuid"
)

// DerivedStatus is the engagement category assigned to an event or learner.
type DerivedStatus string

const (
	StatusEngaged         DerivedStatus = "engaged"
	StatusAttentionDrift  DerivedStatus = "attention_drift"
	StatusContentFriction DerivedStatus = "content_friction"
	StatusUnknown         DerivedStatus = "unknown"
)

// EventInput is a single telemetry event to record. The learner identity is
// taken from the session token, never from the event itself.
type EventInput struct {
	CourseID   string         `json:"course_id"`
	ModuleNo   *int           `json:"module_no,omitempty"`
	TopicID    *string        `json:"topic_id,omitempty"`
	EventType  string         `json:"event_type"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt *time.Time     `json:"occurred_at,omitempty"`
}

// ClassifiedEvent is a stored telemetry event with its derived status.
type ClassifiedEvent struct {
	ID            uuid.UUID      `json:"id"`
	UserID        string         `json:"user_id"`
	CourseID      string         `json:"course_id"`
	ModuleNo      *int           `json:"module_no,omitempty"`
	TopicID       *string        `json:"topic_id,omitempty"`
	EventType     string         `json:"event_type"`
	Payload       map[string]any `json:"payload,omitempty"`
	DerivedStatus *DerivedStatus `json:"derived_status,omitempty"`
	StatusReason  *string        `json:"status_reason,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
	CreatedAt     time.Time      `json:"created_at"`
}

// AggregatedStatus is one learner's current engagement status in a course.
type AggregatedStatus struct {
	UserID       string        `json:"user_id"`
	CourseID     string        `json:"course_id"`
	Status       DerivedStatus `json:"status"`
	EventType    string        `json:"event_type"`
	StatusReason string        `json:"status_reason"`
	CreatedAt    time.Time     `json:"created_at"`
}

// StatusSummary counts learners per engagement category.
type StatusSummary struct {
	Engaged         int `json:"engaged"`
	AttentionDrift  int `json:"attention_drift"`
	ContentFriction int `json:"content_friction"`
	Unknown         int `json:"unknown"`
}

// CourseStatusesResponse is the result of a course-wide status query.
type CourseStatusesResponse struct {
	CourseID string             `json:"course_id"`
	Statuses []AggregatedStatus `json:"statuses"`
	Summary  StatusSummary      `json:"summary"`
}

// HistoryResponse is a page of a learner's classified event history.
type HistoryResponse struct {
	UserID   string            `json:"user_id"`
	CourseID string            `json:"course_id"`
	Events   []ClassifiedEvent `json:"events"`
	HasMore  bool              `json:"has_more"`
}

// HealthResponse is the server's health status.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Uptime   int64  `json:"uptime_seconds"`
}
