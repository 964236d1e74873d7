package aggregate_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/manabi/internal/aggregate"
	"github.com/ashita-ai/manabi/internal/classify"
	"github.com/ashita-ai/manabi/internal/model"
)

// event builds a classified event at the given age. Windows are ordered
// newest-first, so tests list events from most to least recent.
func event(eventType string, status model.DerivedStatus, reason string, age time.Duration) model.ClassifiedEvent {
	now := time.Now().UTC()
	return model.ClassifiedEvent{
		ID:            uuid.New(),
		UserID:        "learner-1",
		CourseID:      "course-1",
		EventType:     eventType,
		DerivedStatus: &status,
		StatusReason:  &reason,
		OccurredAt:    now.Add(-age),
		CreatedAt:     now.Add(-age),
	}
}

func unclassified(eventType string, age time.Duration) model.ClassifiedEvent {
	now := time.Now().UTC()
	return model.ClassifiedEvent{
		ID:         uuid.New(),
		UserID:     "learner-1",
		CourseID:   "course-1",
		EventType:  eventType,
		OccurredAt: now.Add(-age),
		CreatedAt:  now.Add(-age),
	}
}

func TestCompute_FrictionBeatsMoreRecentEngaged(t *testing.T) {
	window := []model.ClassifiedEvent{
		event("video.play", model.StatusEngaged, "Learner interacting with content (video.play)", 1*time.Second),
		event("quiz.fail", model.StatusContentFriction, "Failed quiz 3", 10*time.Minute),
	}

	agg := aggregate.Compute("learner-1", "course-1", window)
	assert.Equal(t, model.StatusContentFriction, agg.Status)
	assert.Equal(t, "quiz.fail", agg.EventType)
	assert.Equal(t, "Failed quiz 3", agg.StatusReason)
}

func TestCompute_DriftBeatsMoreRecentEngaged(t *testing.T) {
	window := []model.ClassifiedEvent{
		event("notes.saved", model.StatusEngaged, "", 2*time.Second),
		event("idle.detected", model.StatusAttentionDrift, "Idle for 5 minutes", 3*time.Minute),
	}

	agg := aggregate.Compute("learner-1", "course-1", window)
	assert.Equal(t, model.StatusAttentionDrift, agg.Status)
	assert.Equal(t, "idle.detected", agg.EventType)
}

func TestCompute_MostRecentWithinWinningBand(t *testing.T) {
	window := []model.ClassifiedEvent{
		event("quiz.retry", model.StatusContentFriction, "Retried quiz 4", 1*time.Minute),
		event("quiz.fail", model.StatusContentFriction, "Failed quiz 4", 5*time.Minute),
		event("quiz.fail", model.StatusContentFriction, "Failed quiz 3", 9*time.Minute),
	}

	agg := aggregate.Compute("learner-1", "course-1", window)
	assert.Equal(t, model.StatusContentFriction, agg.Status)
	assert.Equal(t, "quiz.retry", agg.EventType, "most recent event in the winning band wins")
	assert.Equal(t, "Retried quiz 4", agg.StatusReason)
}

func TestCompute_AllEngaged(t *testing.T) {
	window := []model.ClassifiedEvent{
		event("video.play", model.StatusEngaged, "playing", 1*time.Second),
		event("lesson.opened", model.StatusEngaged, "opened", 1*time.Minute),
	}

	agg := aggregate.Compute("learner-1", "course-1", window)
	assert.Equal(t, model.StatusEngaged, agg.Status)
	assert.Equal(t, "video.play", agg.EventType)
}

func TestCompute_UnclassifiedOnlyFallsBackToUnknown(t *testing.T) {
	window := []model.ClassifiedEvent{
		unclassified("heartbeat", 1*time.Second),
		unclassified("page.view", 1*time.Minute),
	}

	agg := aggregate.Compute("learner-1", "course-1", window)
	assert.Equal(t, model.StatusUnknown, agg.Status)
	assert.Equal(t, "heartbeat", agg.EventType, "most recent unclassified event is reported")
	assert.Empty(t, agg.StatusReason)
}

func TestCompute_UnclassifiedEventsAreSkippedWhenClassifiedExist(t *testing.T) {
	window := []model.ClassifiedEvent{
		unclassified("heartbeat", 1*time.Second),
		event("video.play", model.StatusEngaged, "playing", 2*time.Minute),
	}

	agg := aggregate.Compute("learner-1", "course-1", window)
	assert.Equal(t, model.StatusEngaged, agg.Status)
	assert.Equal(t, "video.play", agg.EventType)
}

func TestCompute_EmptyWindow(t *testing.T) {
	agg := aggregate.Compute("learner-1", "course-1", nil)
	assert.Equal(t, model.StatusUnknown, agg.Status)
	assert.Empty(t, agg.EventType)
	assert.True(t, agg.CreatedAt.IsZero())
}

// A learner watches a video, pauses, struggles with a quiz, then resumes.
// Walks the same window through each stage to check the status transitions.
func TestCompute_SessionProgression(t *testing.T) {
	classed := func(eventType string, age time.Duration) model.ClassifiedEvent {
		res := classify.Classify(eventType, nil)
		return event(eventType, res.Status, res.Reason, age)
	}

	// 09:00 video.play → engaged.
	window := []model.ClassifiedEvent{classed("video.play", 15*time.Minute)}
	assert.Equal(t, model.StatusEngaged, aggregate.Compute("u", "c", window).Status)

	// 09:05 video.pause → drift wins over older engaged.
	window = append([]model.ClassifiedEvent{classed("video.pause", 10*time.Minute)}, window...)
	assert.Equal(t, model.StatusAttentionDrift, aggregate.Compute("u", "c", window).Status)

	// 09:10 quiz.fail → friction wins over everything.
	window = append([]model.ClassifiedEvent{classed("quiz.fail", 5*time.Minute)}, window...)
	assert.Equal(t, model.StatusContentFriction, aggregate.Compute("u", "c", window).Status)

	// 09:15 video.resume → friction still wins: recency never crosses bands.
	window = append([]model.ClassifiedEvent{classed("video.resume", 0)}, window...)
	agg := aggregate.Compute("u", "c", window)
	assert.Equal(t, model.StatusContentFriction, agg.Status)
	assert.Equal(t, "quiz.fail", agg.EventType)
}

func TestSummarize(t *testing.T) {
	statuses := []model.AggregatedStatus{
		{Status: model.StatusEngaged},
		{Status: model.StatusEngaged},
		{Status: model.StatusAttentionDrift},
		{Status: model.StatusContentFriction},
		{Status: model.StatusUnknown},
	}

	s := aggregate.Summarize(statuses)
	assert.Equal(t, 2, s.Engaged)
	assert.Equal(t, 1, s.AttentionDrift)
	assert.Equal(t, 1, s.ContentFriction)
	assert.Equal(t, 1, s.Unknown)
}

func TestSummarize_Empty(t *testing.T) {
	s := aggregate.Summarize(nil)
	assert.Equal(t, model.StatusSummary{}, s)
}
