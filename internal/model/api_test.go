package model_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/manabi/internal/model"
)

// ptr is a convenience helper for pointer literals in test cases.
func ptr[T any](v T) *T { return &v }

func TestEventInputValidate_HappyPath(t *testing.T) {
	e := model.EventInput{
		CourseID:  "cs101",
		ModuleNo:  ptr(3),
		TopicID:   ptr("pointer-arithmetic"),
		EventType: "quiz.fail",
		Payload:   map[string]any{"reason": "third failed attempt"},
	}
	assert.NoError(t, e.Validate())
}

func TestEventInputValidate_MissingEventType(t *testing.T) {
	e := model.EventInput{CourseID: "cs101"}
	err := e.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event_type")
}

func TestEventInputValidate_MissingCourseID(t *testing.T) {
	e := model.EventInput{EventType: "video.play"}
	err := e.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "course_id")
}

func TestEventInputValidate_EventTypeAtExactMax(t *testing.T) {
	e := model.EventInput{
		CourseID:  "cs101",
		EventType: strings.Repeat("x", model.MaxEventTypeLen),
	}
	assert.NoError(t, e.Validate(), "at the limit should pass")
}

func TestEventInputValidate_EventTypeOverMax(t *testing.T) {
	e := model.EventInput{
		CourseID:  "cs101",
		EventType: strings.Repeat("x", model.MaxEventTypeLen+1),
	}
	err := e.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event_type")
}

func TestEventInputValidate_CourseIDOverMax(t *testing.T) {
	e := model.EventInput{
		CourseID:  strings.Repeat("x", model.MaxCourseIDLen+1),
		EventType: "video.play",
	}
	err := e.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "course_id")
}

func TestEventInputValidate_TopicIDOverMax(t *testing.T) {
	e := model.EventInput{
		CourseID:  "cs101",
		EventType: "video.play",
		TopicID:   ptr(strings.Repeat("x", model.MaxTopicIDLen+1)),
	}
	err := e.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic_id")
}

func TestEventInputValidate_PayloadReasonOverMax(t *testing.T) {
	e := model.EventInput{
		CourseID:  "cs101",
		EventType: "quiz.fail",
		Payload:   map[string]any{"reason": strings.Repeat("x", model.MaxReasonLen+1)},
	}
	err := e.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload.reason")
}

func TestEventInputValidate_NonStringPayloadReasonIgnored(t *testing.T) {
	e := model.EventInput{
		CourseID:  "cs101",
		EventType: "quiz.fail",
		Payload:   map[string]any{"reason": 12345},
	}
	assert.NoError(t, e.Validate())
}
