package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskmesh/internal/model"
)

func TestSweepStuckRevertsOnlyStaleInProgressTasks(t *testing.T) {
	now := time.Now().UTC()
	stale := model.Task{ID: "stale", Status: model.StatusInProgress, AttemptCount: 1, UpdatedAt: now.Add(-1 * time.Hour)}
	fresh := model.Task{ID: "fresh", Status: model.StatusInProgress, AttemptCount: 1, UpdatedAt: now}
	done := model.Task{ID: "done", Status: model.StatusCompleted, UpdatedAt: now.Add(-2 * time.Hour)}
	tasks := newFakeTaskStore(stale, fresh, done)

	reverted, err := SweepStuck(context.Background(), tasks, 15*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, reverted)

	got, _, _ := tasks.Get(context.Background(), "stale")
	require.Equal(t, model.StatusPending, got.Status)
	require.Equal(t, 1, got.AttemptCount, "stuck sweep must not touch attempt_count")

	stillRunning, _, _ := tasks.Get(context.Background(), "fresh")
	require.Equal(t, model.StatusInProgress, stillRunning.Status)

	stillDone, _, _ := tasks.Get(context.Background(), "done")
	require.Equal(t, model.StatusCompleted, stillDone.Status)
}

func TestSweepStuckNoCandidatesIsNoop(t *testing.T) {
	tasks := newFakeTaskStore(model.Task{ID: "ok", Status: model.StatusPending})
	reverted, err := SweepStuck(context.Background(), tasks, 15*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 0, reverted)
}
