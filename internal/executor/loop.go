package executor

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"taskmesh/internal/config"
	"taskmesh/internal/model"
	"taskmesh/internal/observability"
	"taskmesh/internal/persistence/databases"
)

// Loop is the Executor's top-level scheduling cycle: stuck sweep, pending
// assignment, batched pull, and a bounded-concurrency fan-out over
// Attempt.Run for each pulled task. Grounded on the teacher's worker-pool
// main loop shape, generalized from a fixed goroutine count to the
// adaptive ceiling Pool recomputes independently.
type Loop struct {
	Tasks      databases.TaskStore
	Experts    databases.ExpertStore
	Attempt    *Attempt
	Pool       *Pool
	Weights    AssignmentWeights
	Cfg        config.ExecutorConfig
}

// Run cycles forever until ctx is cancelled, sleeping cfg.RetryDelay when it
// is above zero and at most five seconds (one second otherwise) between
// cycles that found no ready work.
func (l *Loop) Run(ctx context.Context) {
	stuckAfter := l.Cfg.StuckMinutes
	if stuckAfter <= 0 {
		stuckAfter = 15 * time.Minute
	}
	idleDelay := l.Cfg.RetryDelay
	if idleDelay <= 0 || idleDelay > 5*time.Second {
		idleDelay = time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		logger := observability.LoggerWithTrace(ctx)

		if n, err := SweepStuck(ctx, l.Tasks, stuckAfter); err != nil {
			logger.Warn().Err(err).Msg("stuck_sweep_failed")
		} else if n > 0 {
			logger.Info().Int("count", n).Msg("stuck_sweep_reverted")
		}

		unassigned, err := l.Tasks.PullReady(ctx, 0)
		if err == nil && len(unassigned) > 0 {
			if err := AssignPending(ctx, l.Tasks, l.Experts, l.Weights, unassigned); err != nil {
				logger.Warn().Err(err).Msg("assignment_pass_failed")
			}
		}

		batchSize := l.Cfg.BatchSize
		if batchSize <= 0 {
			batchSize = 20
		}
		batch, err := l.Tasks.PullReady(ctx, batchSize)
		if err != nil {
			logger.Warn().Err(err).Msg("pull_ready_failed")
			sleepOrDone(ctx, idleDelay)
			continue
		}
		if len(batch) == 0 {
			sleepOrDone(ctx, idleDelay)
			continue
		}

		l.runBatch(ctx, batch)
	}
}

// runBatch fans out Attempt.Run over batch bounded by the Pool's current
// effective_N, interleaving preferred families round-robin per spec.md
// §4.2 step 3 rather than draining one family before starting the other.
func (l *Loop) runBatch(ctx context.Context, batch []model.Task) {
	interleaved := interleaveByFamily(batch)
	logger := observability.LoggerWithTrace(ctx)

	n := int64(l.Pool.EffectiveN())
	sem := semaphore.NewWeighted(n)
	for _, t := range interleaved {
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		task := t
		go func() {
			defer sem.Release(1)
			if err := l.Attempt.Run(ctx, task); err != nil {
				logger.Warn().Err(err).Str("task_id", task.ID).Msg("attempt_failed")
			}
		}()
	}
	// Drain: wait for all in-flight attempts by acquiring the full weight.
	_ = sem.Acquire(ctx, n)
	sem.Release(n)
}

// interleaveByFamily reorders batch so fast- and heavy-preferred tasks
// alternate, which prevents one slow heavy-family block from starving ready
// fast-family work behind it. runBatch applies it to every batch: the
// INTERLEAVE_BLOCKS setting (RouterConfig.InterleaveBlocks) is loaded but
// not read by any component, so interleaving cannot be turned off.
func interleaveByFamily(batch []model.Task) []model.Task {
	var fast, heavy []model.Task
	for _, t := range batch {
		if t.Metadata.PreferredFamily == model.FamilyHeavy {
			heavy = append(heavy, t)
		} else {
			fast = append(fast, t)
		}
	}
	out := make([]model.Task, 0, len(batch))
	for i, j := 0, 0; i < len(fast) || j < len(heavy); {
		if i < len(fast) {
			out = append(out, fast[i])
			i++
		}
		if j < len(heavy) {
			out = append(out, heavy[j])
			j++
		}
	}
	return out
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
