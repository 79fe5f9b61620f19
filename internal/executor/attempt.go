package executor

import (
	"context"
	"errors"
	"strings"
	"time"

	"taskmesh/internal/analytics"
	"taskmesh/internal/config"
	"taskmesh/internal/model"
	"taskmesh/internal/persistence/databases"
	"taskmesh/internal/retrieval"
	"taskmesh/internal/router"
)

// Dispatcher is the narrow slice of Router's surface Executor depends on.
type Dispatcher interface {
	Dispatch(ctx context.Context, req router.Request) (router.Response, error)
}

// Retriever is the narrow slice of Retrieval's surface Executor depends on.
type Retriever interface {
	Context(ctx context.Context, goal, domain string, precomputed []float32) (retrieval.ContextBlock, error)
}

// Escalate hands a task that has exhausted its attempt budget to the board
// synthesizer. Implemented in escalation.go; a separate type keeps Attempt
// testable with a stub that never calls out to an LLM.
type Escalate func(ctx context.Context, task model.Task, lastErr model.ErrorKind) error

// Attempt runs spec.md §4.2 step 4's execute-one-task state machine for a
// single pulled task: claim it, enrich with retrieved context, dispatch to
// Router, validate, and either complete, retry, or escalate it.
type Attempt struct {
	Tasks      databases.TaskStore
	Retriever  Retriever
	Dispatcher Dispatcher
	Escalate   Escalate
	Cfg        config.ExecutorConfig
	// Analytics records per-attempt generate latency; analytics.NoopSink
	// is valid when no sink is configured.
	Analytics analytics.Sink
	// Events publishes task lifecycle notifications; nil is valid and
	// simply skips publishing (Kafka disabled).
	Events EventPublisher
}

// Run executes one attempt for task. It returns nil whenever the attempt
// was handled (including a CAS miss meaning another worker already claimed
// it) — only unexpected store/plumbing errors are returned to the caller.
func (a *Attempt) Run(ctx context.Context, task model.Task) error {
	claimed, ok, err := a.claim(ctx, task)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	stopHeartbeat := a.startHeartbeat(ctx, claimed.ID)
	defer stopHeartbeat()

	timeout := a.Cfg.HeartbeatSeconds * 4
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, attemptErr := a.dispatch(attemptCtx, claimed)
	if attemptErr != nil {
		return a.fail(ctx, claimed, classifyErr(attemptErr))
	}

	validation := ValidateResult(claimed.Goal, output)
	if !validation.Passed() {
		return a.fail(ctx, claimed, model.ErrorValidation)
	}
	return a.complete(ctx, claimed, output)
}

// claim transitions task from pending to in_progress, incrementing
// attempt_count, and returns the post-transition row (so subsequent writes
// see the correct attempt_count).
func (a *Attempt) claim(ctx context.Context, task model.Task) (model.Task, bool, error) {
	var claimed model.Task
	ok, err := a.Tasks.CompareAndTransition(ctx, task.ID, model.StatusPending, model.TaskTransition{
		TaskID: task.ID, FromStatus: model.StatusPending, ToStatus: model.StatusInProgress, Reason: "claimed",
	}, func(t *model.Task) {
		t.Status = model.StatusInProgress
		t.AttemptCount++
		claimed = *t
	})
	if err != nil || !ok {
		return model.Task{}, false, err
	}
	return claimed, true, nil
}

// startHeartbeat owns a ticker that keeps task's updated_at fresh while the
// attempt is in flight, matching spec.md §5's rule that the attempt which
// started a heartbeat ticker also owns stopping it.
func (a *Attempt) startHeartbeat(ctx context.Context, taskID string) func() {
	interval := a.Cfg.HeartbeatSeconds
	if interval <= 0 {
		interval = 20 * time.Second
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = a.Tasks.Heartbeat(ctx, taskID, time.Now().UTC())
			}
		}
	}()
	return func() { close(done) }
}

func (a *Attempt) dispatch(ctx context.Context, task model.Task) (string, error) {
	var block retrieval.ContextBlock
	if a.Retriever != nil {
		block, _ = a.Retriever.Context(ctx, task.Goal, task.Metadata.ParentTaskID, nil)
	}

	var b strings.Builder
	b.WriteString(task.Goal)
	for _, s := range block.Snippets {
		b.WriteString("\n\n---\n")
		b.WriteString(s.Content)
	}

	start := time.Now()
	resp, err := a.Dispatcher.Dispatch(ctx, router.Request{
		Prompt:          b.String(),
		Category:        task.Metadata.ParentTaskID,
		PreferredFamily: string(task.Metadata.PreferredFamily),
		PreferredModel:  task.Metadata.PreferredModel,
		MaxTokens:       2048,
	})
	a.recordLatency(ctx, resp.ModelUsed, resp.SourceUsed, task.Metadata.PreferredModel, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (a *Attempt) recordLatency(ctx context.Context, modelUsed, sourceUsed, fallbackModel string, elapsed time.Duration, err error) {
	if a.Analytics == nil {
		return
	}
	modelName := modelUsed
	if modelName == "" {
		modelName = fallbackModel
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if classifyErr(err) == model.ErrorTimeout {
			outcome = "timeout"
		}
	}
	_ = a.Analytics.Record(ctx, analytics.LatencyEvent{
		Model: modelName, Family: sourceUsed, Stage: "generate", DurationMs: elapsed.Milliseconds(), Outcome: outcome,
	})
}

// classifyErr maps a Router error into Executor's last_error taxonomy
// (spec.md §4.2 step 5).
func classifyErr(err error) model.ErrorKind {
	var rerr *router.Error
	if errors.As(err, &rerr) {
		switch rerr.Kind {
		case router.KindRateLimited, router.KindTransport, router.KindUnavailable:
			return model.ErrorConnection
		case router.KindTimeout:
			return model.ErrorTimeout
		case router.KindEcho:
			return model.ErrorEcho
		}
	}
	return model.ErrorOther
}

// fail records lastErr and either reverts the task to pending with a
// backoff delay (attempts remaining) or escalates it (budget exhausted),
// per spec.md §4.2 step 5.
func (a *Attempt) fail(ctx context.Context, task model.Task, kind model.ErrorKind) error {
	maxAttempts := a.Cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if task.AttemptCount > maxAttempts {
		if a.Escalate != nil {
			if err := a.Escalate(ctx, task, kind); err != nil {
				return err
			}
		}
		_, err := a.Tasks.CompareAndTransition(ctx, task.ID, model.StatusInProgress, model.TaskTransition{
			TaskID: task.ID, FromStatus: model.StatusInProgress, ToStatus: model.StatusDeferredToHuman, Reason: "attempts_exhausted",
		}, func(t *model.Task) {
			t.Status = model.StatusDeferredToHuman
			t.Metadata.LastError = kind
			t.Metadata.DeferredToHuman = true
			t.Metadata.BoardEscalated = true
		})
		if err == nil && a.Events != nil {
			_ = a.Events.Publish(ctx, TaskEvent{Type: EventTaskDeferredToHuman, TaskID: task.ID, Timestamp: time.Now().UTC()})
		}
		return err
	}

	retryDelay := a.Cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 30 * time.Second
	}
	backoff := retryDelay * time.Duration(task.AttemptCount)
	nextRetry := time.Now().UTC().Add(backoff)
	_, err := a.Tasks.CompareAndTransition(ctx, task.ID, model.StatusInProgress, model.TaskTransition{
		TaskID: task.ID, FromStatus: model.StatusInProgress, ToStatus: model.StatusPending, Reason: "retry_" + string(kind),
	}, func(t *model.Task) {
		t.Status = model.StatusPending
		t.Metadata.LastError = kind
		t.NextRetryAfter = &nextRetry
	})
	return err
}

func (a *Attempt) complete(ctx context.Context, task model.Task, output string) error {
	_, err := a.Tasks.CompareAndTransition(ctx, task.ID, model.StatusInProgress, model.TaskTransition{
		TaskID: task.ID, FromStatus: model.StatusInProgress, ToStatus: model.StatusCompleted, Reason: "validated",
	}, func(t *model.Task) {
		t.Status = model.StatusCompleted
		t.Metadata.LastOutput = output
		t.Metadata.LastError = ""
	})
	if err == nil && a.Events != nil {
		_ = a.Events.Publish(ctx, TaskEvent{Type: EventTaskCompleted, TaskID: task.ID, Timestamp: time.Now().UTC()})
	}
	return err
}
