package model

import (
	"time"

	"github.com/google/uuid"
)

// DerivedStatus is the engagement label the classifier assigns to a single event.
type DerivedStatus string

const (
	StatusEngaged         DerivedStatus = "engaged"
	StatusAttentionDrift  DerivedStatus = "attention_drift"
	StatusContentFriction DerivedStatus = "content_friction"

	// StatusUnknown never appears on a stored event (unmatched events carry
	// a nil status). It exists only as an aggregation output for learners
	// whose recent window holds no classified events.
	StatusUnknown DerivedStatus = "unknown"
)

// ClassifiedEvent is an append-only row in the learning event log.
// Source of truth. Never mutated or deleted.
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

// AggregatedStatus is the single representative status for one learner,
// recomputed on every query from their recent event window. Not persisted.
type AggregatedStatus struct {
	UserID       string        `json:"user_id"`
	CourseID     string        `json:"course_id"`
	Status       DerivedStatus `json:"status"`
	EventType    string        `json:"event_type,omitempty"`
	StatusReason string        `json:"status_reason,omitempty"`
	CreatedAt    time.Time     `json:"created_at,omitzero"`
}

// StatusSummary counts learners per aggregated status category.
type StatusSummary struct {
	Engaged         int `json:"engaged"`
	AttentionDrift  int `json:"attention_drift"`
	ContentFriction int `json:"content_friction"`
	Unknown         int `json:"unknown"`
}
