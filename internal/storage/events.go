package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/manabi/internal/model"
)

// InsertEvents inserts classified events using the COPY protocol.
// Events must already carry server-assigned IDs and timestamps. The insert
// is all-or-nothing: any failure fails the whole batch and the error
// propagates to the caller.
func (db *DB) InsertEvents(ctx context.Context, events []model.ClassifiedEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	columns := []string{
		"id", "user_id", "course_id", "module_no", "topic_id",
		"event_type", "payload", "derived_status", "status_reason",
		"occurred_at", "created_at",
	}

	rows := make([][]any, len(events))
	for i, e := range events {
		var status *string
		if e.DerivedStatus != nil {
			s := string(*e.DerivedStatus)
			status = &s
		}
		rows[i] = []any{
			e.ID,
			e.UserID,
			e.CourseID,
			e.ModuleNo,
			e.TopicID,
			e.EventType,
			e.Payload,
			status,
			e.StatusReason,
			e.OccurredAt,
			e.CreatedAt,
		}
	}

	// Dedicated 30s COPY timeout prevents a hung Postgres from blocking
	// ingestion requests indefinitely.
	copyCtx, copyCancel := context.WithTimeout(ctx, 30*time.Second)
	copyCount, err := db.pool.CopyFrom(
		copyCtx,
		pgx.Identifier{"learning_events"},
		columns,
		pgx.CopyFromRows(rows),
	)
	copyCancel()
	if err != nil {
		return 0, fmt.Errorf("storage: copy events: %w", err)
	}
	return copyCount, nil
}

// GetLearnerHistory retrieves up to limit most recent events for one
// learner/course pair, newest first. Ties on created_at are broken by id
// descending so pagination ordering stays stable when timestamps collide.
// A non-nil before restricts results to rows created strictly earlier.
func (db *DB) GetLearnerHistory(ctx context.Context, userID, courseID string, limit int, before *time.Time) ([]model.ClassifiedEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows pgx.Rows
		err  error
	)
	if before != nil {
		rows, err = db.pool.Query(ctx,
			`SELECT id, user_id, course_id, module_no, topic_id, event_type, payload,
			        derived_status, status_reason, occurred_at, created_at
			 FROM learning_events
			 WHERE user_id = $1 AND course_id = $2 AND created_at < $3
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`, userID, courseID, *before, limit,
		)
	} else {
		rows, err = db.pool.Query(ctx,
			`SELECT id, user_id, course_id, module_no, topic_id, event_type, payload,
			        derived_status, status_reason, occurred_at, created_at
			 FROM learning_events
			 WHERE user_id = $1 AND course_id = $2
			 ORDER BY created_at DESC, id DESC
			 LIMIT $3`, userID, courseID, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get learner history: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetRecentPerLearner returns, for every learner with any event in courseID,
// their most recent windowSize events in a single windowed query, never a
// query per learner. Rows come back grouped by user_id, newest first within
// each learner, so callers can partition with a single pass.
func (db *DB) GetRecentPerLearner(ctx context.Context, courseID string, windowSize int) ([]model.ClassifiedEvent, error) {
	if windowSize <= 0 {
		windowSize = 20
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, course_id, module_no, topic_id, event_type, payload,
		        derived_status, status_reason, occurred_at, created_at
		 FROM (
		     SELECT e.*,
		            row_number() OVER (
		                PARTITION BY user_id
		                ORDER BY created_at DESC, id DESC
		            ) AS rn
		     FROM learning_events e
		     WHERE course_id = $1
		 ) ranked
		 WHERE rn <= $2
		 ORDER BY user_id, created_at DESC, id DESC`, courseID, windowSize,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get recent per learner: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]model.ClassifiedEvent, error) {
	var events []model.ClassifiedEvent
	for rows.Next() {
		var (
			e      model.ClassifiedEvent
			status *string
		)
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.CourseID, &e.ModuleNo, &e.TopicID,
			&e.EventType, &e.Payload, &status, &e.StatusReason,
			&e.OccurredAt, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan event: %w", err)
		}
		if status != nil {
			s := model.DerivedStatus(*status)
			e.DerivedStatus = &s
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
