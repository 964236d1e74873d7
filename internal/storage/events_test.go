package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/manabi/internal/model"
	"github.com/ashita-ai/manabi/internal/storage"
	"github.com/ashita-ai/manabi/internal/testutil"
)

var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()
	code := setupAndRun(m, tc)
	tc.Terminate()
	os.Exit(code)
}

func setupAndRun(m *testing.M, tc *testutil.TestContainer) int {
	ctx := context.Background()

	var err error
	testDB, err = tc.NewTestDB(ctx, testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "storage test: create DB: %v\n", err)
		return 1
	}
	defer testDB.Close()

	return m.Run()
}

func ptr[T any](v T) *T { return &v }

// newEvent builds a stored event with server-side fields populated, the way
// the service layer stamps them before insert.
func newEvent(userID, courseID, eventType string, createdAt time.Time) model.ClassifiedEvent {
	return model.ClassifiedEvent{
		ID:         uuid.New(),
		UserID:     userID,
		CourseID:   courseID,
		EventType:  eventType,
		OccurredAt: createdAt,
		CreatedAt:  createdAt,
	}
}

func TestInsertEventsRoundtrip(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	status := model.StatusContentFriction
	e := newEvent("rt-user", "rt-course", "quiz.fail", now)
	e.ModuleNo = ptr(3)
	e.TopicID = ptr("limits")
	e.Payload = map[string]any{"reason": "failed twice", "score": float64(40)}
	e.DerivedStatus = &status
	e.StatusReason = ptr("failed twice")

	count, err := testDB.InsertEvents(ctx, []model.ClassifiedEvent{e})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := testDB.GetLearnerHistory(ctx, "rt-user", "rt-course", 10, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, e.ID, got[0].ID)
	assert.Equal(t, "quiz.fail", got[0].EventType)
	require.NotNil(t, got[0].ModuleNo)
	assert.Equal(t, 3, *got[0].ModuleNo)
	require.NotNil(t, got[0].TopicID)
	assert.Equal(t, "limits", *got[0].TopicID)
	assert.Equal(t, e.Payload, got[0].Payload)
	require.NotNil(t, got[0].DerivedStatus)
	assert.Equal(t, model.StatusContentFriction, *got[0].DerivedStatus)
	require.NotNil(t, got[0].StatusReason)
	assert.Equal(t, "failed twice", *got[0].StatusReason)
	assert.WithinDuration(t, now, got[0].CreatedAt, time.Millisecond)
}

func TestInsertEventsEmptyBatch(t *testing.T) {
	count, err := testDB.InsertEvents(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestInsertEventsNilOptionalFields(t *testing.T) {
	ctx := context.Background()

	e := newEvent("nil-user", "nil-course", "heartbeat", time.Now().UTC())
	_, err := testDB.InsertEvents(ctx, []model.ClassifiedEvent{e})
	require.NoError(t, err)

	got, err := testDB.GetLearnerHistory(ctx, "nil-user", "nil-course", 10, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].ModuleNo)
	assert.Nil(t, got[0].TopicID)
	assert.Nil(t, got[0].Payload)
	assert.Nil(t, got[0].DerivedStatus)
	assert.Nil(t, got[0].StatusReason)
}

func TestGetLearnerHistoryOrdering(t *testing.T) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	var batch []model.ClassifiedEvent
	for i := 0; i < 5; i++ {
		batch = append(batch, newEvent("hist-user", "hist-course",
			fmt.Sprintf("step.%d", i), base.Add(time.Duration(i)*time.Second)))
	}
	_, err := testDB.InsertEvents(ctx, batch)
	require.NoError(t, err)

	got, err := testDB.GetLearnerHistory(ctx, "hist-user", "hist-course", 10, nil)
	require.NoError(t, err)
	require.Len(t, got, 5)

	// Newest first.
	for i := 0; i < 5; i++ {
		assert.Equal(t, fmt.Sprintf("step.%d", 4-i), got[i].EventType)
	}

	// Limit trims from the old end.
	got, err = testDB.GetLearnerHistory(ctx, "hist-user", "hist-course", 2, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "step.4", got[0].EventType)
	assert.Equal(t, "step.3", got[1].EventType)

	// before is a strict cutoff.
	cutoff := base.Add(3 * time.Second)
	got, err = testDB.GetLearnerHistory(ctx, "hist-user", "hist-course", 10, &cutoff)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "step.2", got[0].EventType)
}

func TestGetLearnerHistoryIsolation(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := testDB.InsertEvents(ctx, []model.ClassifiedEvent{
		newEvent("iso-a", "iso-course", "video.play", now),
		newEvent("iso-b", "iso-course", "video.play", now),
		newEvent("iso-a", "iso-other", "video.play", now),
	})
	require.NoError(t, err)

	got, err := testDB.GetLearnerHistory(ctx, "iso-a", "iso-course", 10, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "iso-a", got[0].UserID)
	assert.Equal(t, "iso-course", got[0].CourseID)
}

func TestGetRecentPerLearnerWindowing(t *testing.T) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	// Alice has 5 events, bob has 2. Window of 3 should trim alice only.
	var batch []model.ClassifiedEvent
	for i := 0; i < 5; i++ {
		batch = append(batch, newEvent("win-alice", "win-course",
			fmt.Sprintf("alice.%d", i), base.Add(time.Duration(i)*time.Second)))
	}
	for i := 0; i < 2; i++ {
		batch = append(batch, newEvent("win-bob", "win-course",
			fmt.Sprintf("bob.%d", i), base.Add(time.Duration(i)*time.Second)))
	}
	_, err := testDB.InsertEvents(ctx, batch)
	require.NoError(t, err)

	got, err := testDB.GetRecentPerLearner(ctx, "win-course", 3)
	require.NoError(t, err)
	require.Len(t, got, 5)

	// Grouped by user, newest first within each learner.
	assert.Equal(t, "win-alice", got[0].UserID)
	assert.Equal(t, "alice.4", got[0].EventType)
	assert.Equal(t, "alice.3", got[1].EventType)
	assert.Equal(t, "alice.2", got[2].EventType)
	assert.Equal(t, "win-bob", got[3].UserID)
	assert.Equal(t, "bob.1", got[3].EventType)
	assert.Equal(t, "bob.0", got[4].EventType)
}

func TestGetRecentPerLearnerEmptyCourse(t *testing.T) {
	got, err := testDB.GetRecentPerLearner(context.Background(), "no-such-course", 20)
	require.NoError(t, err)
	assert.Empty(t, got)
}
