package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henrikfb/mailsift/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	run := &model.Run{
		ID:        "run-1",
		EmailID:   "msg-1",
		Status:    model.RunStatusFetching,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateRun(ctx, run))

	require.NoError(t, s.UpdateRunStatus(ctx, "run-1", model.RunStatusRetrieval))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRetrieval, got.Status)
	assert.Equal(t, "msg-1", got.EmailID)
	assert.Nil(t, got.Result)

	result := &model.AggregatedResult{
		Matched:           true,
		MergedData:        map[string]any{"orderId": "42"},
		OverallConfidence: 0.9,
		TotalMatchedUnits: 1,
	}
	require.NoError(t, s.UpdateRunResult(ctx, "run-1", model.RunStatusDone, result))

	got, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDone, got.Status)
	require.NotNil(t, got.Result)
	assert.True(t, got.Result.Matched)
	assert.Equal(t, "42", got.Result.MergedData["orderId"])
}

func TestSQLiteGetRunNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteListRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.CreateRun(ctx, &model.Run{
			ID:        id,
			EmailID:   "msg",
			Status:    model.RunStatusDone,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			UpdatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)
}

func TestSQLiteSnapshots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	require.NoError(t, s.AddSnapshot(ctx, &model.StageSnapshot{
		ID:         "snap-1",
		RunID:      "run-1",
		Stage:      "link_discovery",
		Payload:    map[string]any{"links": []any{"https://a.example"}},
		RecordedAt: base,
	}))
	require.NoError(t, s.AddSnapshot(ctx, &model.StageSnapshot{
		ID:         "snap-2",
		RunID:      "run-1",
		Stage:      "retrieval",
		Payload:    map[string]any{"units": float64(2)},
		RecordedAt: base.Add(time.Second),
	}))
	require.NoError(t, s.AddSnapshot(ctx, &model.StageSnapshot{
		ID:         "snap-other",
		RunID:      "run-2",
		Stage:      "retrieval",
		RecordedAt: base,
	}))

	snaps, err := s.ListSnapshots(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "link_discovery", snaps[0].Stage)
	assert.Equal(t, "retrieval", snaps[1].Stage)

	payload, ok := snaps[0].Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"https://a.example"}, payload["links"])
}
