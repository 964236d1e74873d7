// Package engagement provides the shared business logic for the telemetry
// pipeline: classification at ingestion, and recency-windowed aggregation
// at query time.
//
// Both the HTTP API and MCP handlers delegate to this service, ensuring
// consistent behavior across all interfaces.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/manabi/internal/aggregate"
	"github.com/ashita-ai/manabi/internal/classify"
	"github.com/ashita-ai/manabi/internal/model"
	"github.com/ashita-ai/manabi/internal/telemetry"
)

// ErrInvalidEvent marks ingestion failures caused by caller input rather
// than by storage. Handlers map it to a 400.
var ErrInvalidEvent = errors.New("engagement: invalid event")

// EventStore is the storage surface the service depends on.
// *storage.DB satisfies it; tests substitute an in-memory fake.
type EventStore interface {
	InsertEvents(ctx context.Context, events []model.ClassifiedEvent) (int64, error)
	GetLearnerHistory(ctx context.Context, userID, courseID string, limit int, before *time.Time) ([]model.ClassifiedEvent, error)
	GetRecentPerLearner(ctx context.Context, courseID string, windowSize int) ([]model.ClassifiedEvent, error)
}

// Service encapsulates engagement business logic shared by HTTP and MCP handlers.
type Service struct {
	store  EventStore
	logger *slog.Logger
	window int

	// statusGroup coalesces concurrent course-status computations for the
	// same course. Dashboards poll on a shared interval, so identical
	// queries tend to arrive together; in-flight sharing keeps the
	// "recomputed on every query" contract without caching results.
	statusGroup singleflight.Group

	ingested       metric.Int64Counter
	aggregationDur metric.Float64Histogram
}

// New creates a new engagement Service. windowSize is the number of recent
// events per learner fed into aggregation (20 unless configured otherwise).
func New(store EventStore, logger *slog.Logger, windowSize int) *Service {
	if windowSize <= 0 {
		windowSize = 20
	}

	meter := telemetry.Meter("manabi/engagement")
	ingested, _ := meter.Int64Counter("manabi.events.ingested",
		metric.WithDescription("Classified events accepted into the event log"),
	)
	aggDur, _ := meter.Float64Histogram("manabi.aggregation.duration",
		metric.WithDescription("Time to compute course-wide learner statuses (ms)"),
		metric.WithUnit("ms"),
	)

	return &Service{
		store:          store,
		logger:         logger,
		window:         windowSize,
		ingested:       ingested,
		aggregationDur: aggDur,
	}
}

// Ingest classifies a batch of telemetry events, stamps them with the
// authenticated learner's identity and server-side ids/timestamps, and
// appends them to the event log. The whole batch fails together; retries
// can duplicate events but never corrupt them.
func (s *Service) Ingest(ctx context.Context, userID string, inputs []model.EventInput) ([]model.ClassifiedEvent, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	events := make([]model.ClassifiedEvent, len(inputs))
	for i, input := range inputs {
		if err := input.Validate(); err != nil {
			return nil, fmt.Errorf("%w %d: %v", ErrInvalidEvent, i, err)
		}

		// One microsecond per batch index keeps created_at strictly
		// increasing within a batch (timestamptz stores microseconds), so
		// history ordering preserves batch order.
		createdAt := now.Add(time.Duration(i) * time.Microsecond)

		occurredAt := createdAt
		if input.OccurredAt != nil {
			occurredAt = input.OccurredAt.UTC()
		}

		e := model.ClassifiedEvent{
			ID:         uuid.New(),
			UserID:     userID,
			CourseID:   input.CourseID,
			ModuleNo:   input.ModuleNo,
			TopicID:    input.TopicID,
			EventType:  input.EventType,
			Payload:    input.Payload,
			OccurredAt: occurredAt,
			CreatedAt:  createdAt,
		}

		if res := classify.Classify(input.EventType, input.Payload); res.Matched {
			status := res.Status
			reason := res.Reason
			e.DerivedStatus = &status
			e.StatusReason = &reason
		}
		events[i] = e
	}

	if _, err := s.store.InsertEvents(ctx, events); err != nil {
		return nil, fmt.Errorf("engagement: ingest batch: %w", err)
	}

	for _, e := range events {
		status := "unknown"
		if e.DerivedStatus != nil {
			status = string(*e.DerivedStatus)
		}
		s.ingested.Add(ctx, 1, metric.WithAttributes(
			attribute.String("manabi.derived_status", status),
		))
	}

	return events, nil
}

// CourseStatuses computes one AggregatedStatus per learner with any event in
// the course, plus summary counts per status category. The result is derived
// from each learner's most recent window of events and is never cached
// beyond the lifetime of the (possibly shared) in-flight computation.
func (s *Service) CourseStatuses(ctx context.Context, courseID string) (model.CourseStatusesResponse, error) {
	// The computation is shared across coalesced callers, so it must not die
	// with whichever caller happened to arrive first. Trace values survive
	// the detach.
	sharedCtx := context.WithoutCancel(ctx)
	v, err, _ := s.statusGroup.Do(courseID, func() (any, error) {
		return s.computeCourseStatuses(sharedCtx, courseID)
	})
	if err != nil {
		return model.CourseStatusesResponse{}, err
	}
	return v.(model.CourseStatusesResponse), nil
}

func (s *Service) computeCourseStatuses(ctx context.Context, courseID string) (model.CourseStatusesResponse, error) {
	start := time.Now()

	rows, err := s.store.GetRecentPerLearner(ctx, courseID, s.window)
	if err != nil {
		return model.CourseStatusesResponse{}, fmt.Errorf("engagement: course statuses: %w", err)
	}

	// Rows arrive grouped by user_id, newest first within each learner.
	statuses := make([]model.AggregatedStatus, 0)
	var (
		window      []model.ClassifiedEvent
		currentUser string
	)
	flush := func() {
		if len(window) > 0 {
			statuses = append(statuses, aggregate.Compute(currentUser, courseID, window))
			window = window[:0]
		}
	}
	for _, e := range rows {
		if e.UserID != currentUser {
			flush()
			currentUser = e.UserID
		}
		window = append(window, e)
	}
	flush()

	// Highest-severity learners first so instructors see who needs
	// intervention at the top; ties ordered by user_id for stability.
	sort.SliceStable(statuses, func(i, j int) bool {
		ri, rj := severityRank(statuses[i].Status), severityRank(statuses[j].Status)
		if ri != rj {
			return ri > rj
		}
		return statuses[i].UserID < statuses[j].UserID
	})

	s.aggregationDur.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.String("manabi.course_id", courseID)),
	)

	return model.CourseStatusesResponse{
		CourseID: courseID,
		Statuses: statuses,
		Summary:  aggregate.Summarize(statuses),
	}, nil
}

// severityRank orders aggregated statuses for display. The aggregation
// itself is decided per learner inside the aggregate package; this ranking
// only affects list ordering.
func severityRank(s model.DerivedStatus) int {
	switch s {
	case model.StatusContentFriction:
		return 3
	case model.StatusAttentionDrift:
		return 2
	case model.StatusEngaged:
		return 1
	default:
		return 0
	}
}

// History returns a learner's classified-event history for one course,
// newest first. Requesting limit+1 rows detects whether more pages exist.
func (s *Service) History(ctx context.Context, userID, courseID string, limit int, before *time.Time) (model.HistoryResponse, error) {
	if limit <= 0 {
		limit = 50
	}

	events, err := s.store.GetLearnerHistory(ctx, userID, courseID, limit+1, before)
	if err != nil {
		return model.HistoryResponse{}, fmt.Errorf("engagement: history: %w", err)
	}

	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}
	if events == nil {
		events = []model.ClassifiedEvent{}
	}

	return model.HistoryResponse{
		UserID:   userID,
		CourseID: courseID,
		Events:   events,
		HasMore:  hasMore,
	}, nil
}
