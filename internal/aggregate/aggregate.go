// Package aggregate collapses a learner's recent classified events into one
// representative engagement status.
package aggregate

import (
	"github.com/ashita-ai/manabi/internal/model"
)

// statusPriority is the fixed severity ordering, highest first. Statuses
// are never blended by count or weighted average.
var statusPriority = []model.DerivedStatus{
	model.StatusContentFriction,
	model.StatusAttentionDrift,
	model.StatusEngaged,
}

// Compute selects the single representative status from a learner's recent
// event window. Events must be ordered newest-first (the order the store
// returns them in).
//
// The winner is the most recent event whose derived status equals the
// highest-priority status present anywhere in the window. Recency matters
// within a status band, never across bands: a content_friction event from
// nineteen events ago still outranks an engaged event from one second ago.
//
// Windows with no classified events fall back to the most recent event with
// status "unknown"; empty windows yield a bare "unknown" result.
func Compute(userID, courseID string, events []model.ClassifiedEvent) model.AggregatedStatus {
	agg := model.AggregatedStatus{
		UserID:   userID,
		CourseID: courseID,
		Status:   model.StatusUnknown,
	}

	for _, want := range statusPriority {
		for _, e := range events {
			if e.DerivedStatus != nil && *e.DerivedStatus == want {
				agg.Status = want
				agg.EventType = e.EventType
				if e.StatusReason != nil {
					agg.StatusReason = *e.StatusReason
				}
				agg.CreatedAt = e.CreatedAt
				return agg
			}
		}
	}

	// No classified events: report the most recent unclassified one.
	if len(events) > 0 {
		agg.EventType = events[0].EventType
		agg.CreatedAt = events[0].CreatedAt
	}
	return agg
}

// Summarize counts aggregated statuses per category.
func Summarize(statuses []model.AggregatedStatus) model.StatusSummary {
	var s model.StatusSummary
	for _, st := range statuses {
		switch st.Status {
		case model.StatusEngaged:
			s.Engaged++
		case model.StatusAttentionDrift:
			s.AttentionDrift++
		case model.StatusContentFriction:
			s.ContentFriction++
		default:
			s.Unknown++
		}
	}
	return s
}
