// Package classify maps raw telemetry event types to derived engagement
// statuses using ordered prefix-matching rules.
package classify

import (
	"strings"

	"github.com/ashita-ai/manabi/internal/model"
)

// Result is the classifier's output for a single event. When Matched is
// false, Status and Reason carry no meaning and the event is stored
// unclassified.
type Result struct {
	Status  model.DerivedStatus
	Reason  string
	Matched bool
}

// ruleGroup is one priority band of prefixes. Groups are evaluated in slice
// order and the first group with a matching prefix wins. Group order, not
// prefix specificity, breaks ties. That ordering is load-bearing:
// "lesson.locked_click" must hit the attention-drift group before the
// broader "lesson." prefix in the engaged group is ever consulted.
type ruleGroup struct {
	status   model.DerivedStatus
	fallback string
	prefixes []string
}

var ruleGroups = []ruleGroup{
	{
		status:   model.StatusAttentionDrift,
		fallback: "Idle or pause pattern detected",
		prefixes: []string{
			"idle.",
			"video.pause",
			"video.buffer.start",
			"lesson.locked_click",
		},
	},
	{
		status:   model.StatusContentFriction,
		fallback: "Learner signaled friction",
		prefixes: []string{
			"quiz.fail",
			"quiz.retry",
			"tutor.prompt",
			"cold_call.star",
			"cold_call.submit",
			"tutor.response_received",
			"content.friction",
		},
	},
	{
		status:   model.StatusEngaged,
		fallback: "Learner interacting with content",
		prefixes: []string{
			"video.play",
			"video.resume",
			"video.buffer.end",
			"progress.snapshot",
			"persona.",
			"notes.",
			"lesson.",
			"cold_call.",
			"tutor.response",
		},
	},
}

// Classify maps an event type (case-insensitive) and optional payload to a
// derived status and human-readable reason. It is a pure function: no state,
// identical inputs always yield identical output.
//
// When the payload carries a non-empty "reason" string it is used verbatim;
// otherwise the reason is synthesized from the matching group's fallback
// phrase and the original (non-lowercased) event type.
func Classify(eventType string, payload map[string]any) Result {
	normalized := strings.ToLower(eventType)

	for _, g := range ruleGroups {
		for _, prefix := range g.prefixes {
			if strings.HasPrefix(normalized, prefix) {
				return Result{
					Status:  g.status,
					Reason:  reasonFor(g, eventType, payload),
					Matched: true,
				}
			}
		}
	}
	return Result{}
}

func reasonFor(g ruleGroup, eventType string, payload map[string]any) string {
	if reason, ok := payload["reason"].(string); ok && reason != "" {
		return reason
	}
	return g.fallback + " (" + eventType + ")"
}
