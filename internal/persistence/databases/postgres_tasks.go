package databases

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskmesh/internal/model"
)

// postgresTasks is Executor's durable queue, grounded on the task-store
// port shape from the retrieval pack's task domain package, adapted to
// Postgres with conditional (CAS) status transitions and an audit trail.
type postgresTasks struct {
	pool *pgxpool.Pool
}

func NewPostgresTasks(ctx context.Context, pool *pgxpool.Pool) (TaskStore, error) {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tasks (
  id               TEXT PRIMARY KEY,
  goal             TEXT NOT NULL,
  project_context  TEXT NOT NULL DEFAULT '',
  assignee         TEXT NOT NULL DEFAULT '',
  status           TEXT NOT NULL,
  priority         TEXT NOT NULL DEFAULT 'medium',
  attempt_count    INTEGER NOT NULL DEFAULT 0,
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
  next_retry_after TIMESTAMPTZ,
  metadata         JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS tasks_ready_idx ON tasks(status, assignee, priority, created_at) WHERE status = 'pending';
CREATE TABLE IF NOT EXISTS task_transitions (
  id          BIGSERIAL PRIMARY KEY,
  task_id     TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
  from_status TEXT NOT NULL,
  to_status   TEXT NOT NULL,
  reason      TEXT NOT NULL DEFAULT '',
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS task_transitions_task_idx ON task_transitions(task_id, created_at);
`)
	if err != nil {
		return nil, fmt.Errorf("create tasks schema: %w", err)
	}
	return &postgresTasks{pool: pool}, nil
}

func (p *postgresTasks) Enqueue(ctx context.Context, t model.Task) error {
	md, err := json.Marshal(t.Metadata)
	if err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.UpdatedAt = t.CreatedAt
	_, err = p.pool.Exec(ctx, `
INSERT INTO tasks(id, goal, project_context, assignee, status, priority, attempt_count, created_at, updated_at, next_retry_after, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET goal=EXCLUDED.goal, assignee=EXCLUDED.assignee, priority=EXCLUDED.priority, metadata=EXCLUDED.metadata
`, t.ID, t.Goal, t.ProjectContext, t.Assignee, string(t.Status), string(t.Priority), t.AttemptCount,
		t.CreatedAt, t.UpdatedAt, t.NextRetryAfter, md)
	return err
}

func (p *postgresTasks) PullReady(ctx context.Context, limit int) ([]model.Task, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.pool.Query(ctx, `
SELECT id, goal, project_context, assignee, status, priority, attempt_count, created_at, updated_at, next_retry_after, metadata
FROM tasks
WHERE status = 'pending' AND assignee <> '' AND (next_retry_after IS NULL OR next_retry_after <= now())
ORDER BY CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END, created_at
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (p *postgresTasks) Get(ctx context.Context, id string) (model.Task, bool, error) {
	row := p.pool.QueryRow(ctx, `
SELECT id, goal, project_context, assignee, status, priority, attempt_count, created_at, updated_at, next_retry_after, metadata
FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err == pgx.ErrNoRows {
		return model.Task{}, false, nil
	}
	if err != nil {
		return model.Task{}, false, err
	}
	return t, true, nil
}

// CompareAndTransition loads the task, checks its status still matches
// expectFrom, applies mutate, and writes both the updated row and the
// transition audit record inside one transaction. A CAS miss (someone else
// already moved the task) returns (false, nil) rather than an error.
func (p *postgresTasks) CompareAndTransition(ctx context.Context, id string, expectFrom model.Status, tr model.TaskTransition, mutate func(*model.Task)) (bool, error) {
	txn, err := p.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer txn.Rollback(ctx)

	row := txn.QueryRow(ctx, `
SELECT id, goal, project_context, assignee, status, priority, attempt_count, created_at, updated_at, next_retry_after, metadata
FROM tasks WHERE id = $1 FOR UPDATE`, id)
	t, err := scanTask(row)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if t.Status != expectFrom {
		return false, nil
	}

	mutate(&t)
	t.UpdatedAt = time.Now().UTC()
	md, err := json.Marshal(t.Metadata)
	if err != nil {
		return false, err
	}
	_, err = txn.Exec(ctx, `
UPDATE tasks SET goal=$2, assignee=$3, status=$4, priority=$5, attempt_count=$6, updated_at=$7, next_retry_after=$8, metadata=$9
WHERE id=$1`, t.ID, t.Goal, t.Assignee, string(t.Status), string(t.Priority), t.AttemptCount, t.UpdatedAt, t.NextRetryAfter, md)
	if err != nil {
		return false, err
	}
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = t.UpdatedAt
	}
	_, err = txn.Exec(ctx, `
INSERT INTO task_transitions(task_id, from_status, to_status, reason, created_at) VALUES ($1,$2,$3,$4,$5)
`, id, string(expectFrom), string(t.Status), tr.Reason, tr.CreatedAt)
	if err != nil {
		return false, err
	}
	if err := txn.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (p *postgresTasks) Heartbeat(ctx context.Context, id string, at time.Time) error {
	_, err := p.pool.Exec(ctx, `UPDATE tasks SET updated_at = $2 WHERE id = $1 AND status = 'in_progress'`, id, at)
	return err
}

func (p *postgresTasks) Stuck(ctx context.Context, stuckAfter time.Duration) ([]model.Task, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, goal, project_context, assignee, status, priority, attempt_count, created_at, updated_at, next_retry_after, metadata
FROM tasks WHERE status = 'in_progress' AND updated_at < $1`, time.Now().UTC().Add(-stuckAfter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (p *postgresTasks) Transitions(ctx context.Context, taskID string) ([]model.TaskTransition, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, task_id, from_status, to_status, reason, created_at FROM task_transitions WHERE task_id = $1 ORDER BY created_at`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.TaskTransition{}
	for rows.Next() {
		var tr model.TaskTransition
		var from, to string
		if err := rows.Scan(&tr.ID, &tr.TaskID, &from, &to, &tr.Reason, &tr.CreatedAt); err != nil {
			return nil, err
		}
		tr.FromStatus, tr.ToStatus = model.Status(from), model.Status(to)
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (p *postgresTasks) Close() {}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (model.Task, error) {
	var t model.Task
	var status, priority string
	var md []byte
	if err := row.Scan(&t.ID, &t.Goal, &t.ProjectContext, &t.Assignee, &status, &priority,
		&t.AttemptCount, &t.CreatedAt, &t.UpdatedAt, &t.NextRetryAfter, &md); err != nil {
		return model.Task{}, err
	}
	t.Status, t.Priority = model.Status(status), model.Priority(priority)
	if len(md) > 0 {
		if err := json.Unmarshal(md, &t.Metadata); err != nil {
			return model.Task{}, err
		}
	}
	return t, nil
}

func scanTasks(rows pgx.Rows) ([]model.Task, error) {
	out := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
