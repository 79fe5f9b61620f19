package executor

import (
	"context"
	"time"

	"taskmesh/internal/model"
	"taskmesh/internal/persistence/databases"
)

// SweepStuck reverts tasks stuck in_progress past stuckAfter back to
// pending without touching attempt_count, per spec.md §4.2's stuck sweep
// and the "stuck-sweep safety" testable property in spec.md §8: this
// replaces any in-process lease mechanism and tolerates worker crashes.
func SweepStuck(ctx context.Context, tasks databases.TaskStore, stuckAfter time.Duration) (int, error) {
	candidates, err := tasks.Stuck(ctx, stuckAfter)
	if err != nil {
		return 0, err
	}
	reverted := 0
	for _, t := range candidates {
		ok, err := tasks.CompareAndTransition(ctx, t.ID, model.StatusInProgress, model.TaskTransition{
			TaskID: t.ID, FromStatus: model.StatusInProgress, ToStatus: model.StatusPending, Reason: "stuck_sweep",
		}, func(task *model.Task) {
			task.Status = model.StatusPending
		})
		if err != nil {
			return reverted, err
		}
		if ok {
			reverted++
		}
	}
	return reverted, nil
}
