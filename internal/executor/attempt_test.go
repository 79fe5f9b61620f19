package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskmesh/internal/analytics"
	"taskmesh/internal/config"
	"taskmesh/internal/model"
	"taskmesh/internal/router"
)

func newPendingTask(id string) model.Task {
	return model.Task{
		ID:        id,
		Goal:      "investigate the login timeout issue",
		Status:    model.StatusPending,
		Assignee:  "direct",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestAttemptRunHappyPath(t *testing.T) {
	task := newPendingTask("t1")
	tasks := newFakeTaskStore(task)
	a := &Attempt{
		Tasks:      tasks,
		Dispatcher: stubDispatcher{resp: router.Response{Text: "The login timeout issue is caused by a stale session token.", ModelUsed: "m1", SourceUsed: "fast"}},
		Cfg:        config.ExecutorConfig{HeartbeatSeconds: time.Hour, MaxAttempts: 3},
		Analytics:  analytics.NoopSink,
	}

	err := a.Run(context.Background(), task)
	require.NoError(t, err)

	got, ok, err := tasks.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.StatusCompleted, got.Status)
	require.Equal(t, 1, got.AttemptCount)
	require.Contains(t, got.Metadata.LastOutput, "stale session token")
}

func TestAttemptRunDispatchErrorRetries(t *testing.T) {
	task := newPendingTask("t2")
	tasks := newFakeTaskStore(task)
	a := &Attempt{
		Tasks:      tasks,
		Dispatcher: stubDispatcher{err: &router.Error{Kind: router.KindTimeout, Err: errors.New("deadline exceeded")}},
		Cfg:        config.ExecutorConfig{HeartbeatSeconds: time.Hour, MaxAttempts: 3, RetryDelay: time.Second},
	}

	err := a.Run(context.Background(), task)
	require.NoError(t, err)

	got, ok, err := tasks.Get(context.Background(), "t2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.StatusPending, got.Status)
	require.Equal(t, model.ErrorTimeout, got.Metadata.LastError)
	require.NotNil(t, got.NextRetryAfter)
}

func TestAttemptRunEscalatesOnceBudgetExhausted(t *testing.T) {
	task := newPendingTask("t3")
	task.AttemptCount = 3 // about to become 4 after claim, exceeding MaxAttempts=3
	tasks := newFakeTaskStore(task)

	escalated := false
	a := &Attempt{
		Tasks:      tasks,
		Dispatcher: stubDispatcher{err: &router.Error{Kind: router.KindTransport, Err: errors.New("connection refused")}},
		Cfg:        config.ExecutorConfig{HeartbeatSeconds: time.Hour, MaxAttempts: 3},
		Escalate: func(ctx context.Context, task model.Task, lastErr model.ErrorKind) error {
			escalated = true
			require.Equal(t, model.ErrorConnection, lastErr)
			return nil
		},
	}

	err := a.Run(context.Background(), task)
	require.NoError(t, err)
	require.True(t, escalated)

	got, ok, err := tasks.Get(context.Background(), "t3")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.StatusDeferredToHuman, got.Status)
	require.True(t, got.Metadata.DeferredToHuman)
	require.True(t, got.Metadata.BoardEscalated)
}

func TestAttemptRunValidationFailureRetries(t *testing.T) {
	task := newPendingTask("t4")
	tasks := newFakeTaskStore(task)
	a := &Attempt{
		Tasks:      tasks,
		Dispatcher: stubDispatcher{resp: router.Response{Text: "short"}},
		Cfg:        config.ExecutorConfig{HeartbeatSeconds: time.Hour, MaxAttempts: 3, RetryDelay: time.Second},
	}

	err := a.Run(context.Background(), task)
	require.NoError(t, err)

	got, ok, err := tasks.Get(context.Background(), "t4")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.StatusPending, got.Status)
	require.Equal(t, model.ErrorValidation, got.Metadata.LastError)
}

func TestAttemptRunClaimMissIsNotAnError(t *testing.T) {
	task := newPendingTask("t5")
	task.Status = model.StatusInProgress // already claimed by another worker
	tasks := newFakeTaskStore(task)
	a := &Attempt{Tasks: tasks, Dispatcher: stubDispatcher{}, Cfg: config.ExecutorConfig{}}

	err := a.Run(context.Background(), newPendingTask("t5"))
	require.NoError(t, err)

	got, _, _ := tasks.Get(context.Background(), "t5")
	require.Equal(t, model.StatusInProgress, got.Status)
}
