package databases

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskmesh/internal/model"
)

// postgresExperts backs Executor's assignment-scoring pass. Expert.Name is
// the store identity, matching the teacher's convention of naming fleet
// workers rather than assigning them surrogate IDs.
type postgresExperts struct {
	pool *pgxpool.Pool
}

func NewPostgresExperts(ctx context.Context, pool *pgxpool.Pool) (ExpertStore, error) {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS experts (
  name          TEXT PRIMARY KEY,
  role          TEXT NOT NULL DEFAULT '',
  department    TEXT NOT NULL DEFAULT '',
  department_id TEXT NOT NULL DEFAULT '',
  system_prompt TEXT NOT NULL DEFAULT '',
  workload      INTEGER NOT NULL DEFAULT 0,
  success_rate  DOUBLE PRECISION NOT NULL DEFAULT 1,
  outcomes      INTEGER NOT NULL DEFAULT 0
);
`)
	if err != nil {
		return nil, fmt.Errorf("create experts schema: %w", err)
	}
	return &postgresExperts{pool: pool}, nil
}

func (p *postgresExperts) List(ctx context.Context) ([]model.Expert, error) {
	rows, err := p.pool.Query(ctx, `SELECT name, role, department, department_id, system_prompt, workload, success_rate FROM experts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Expert{}
	for rows.Next() {
		var e model.Expert
		if err := rows.Scan(&e.Name, &e.Role, &e.Department, &e.DepartmentID, &e.SystemPrompt, &e.Workload, &e.SuccessRate); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *postgresExperts) Get(ctx context.Context, id string) (model.Expert, bool, error) {
	var e model.Expert
	err := p.pool.QueryRow(ctx, `SELECT name, role, department, department_id, system_prompt, workload, success_rate FROM experts WHERE name = $1`, id).
		Scan(&e.Name, &e.Role, &e.Department, &e.DepartmentID, &e.SystemPrompt, &e.Workload, &e.SuccessRate)
	if err == pgx.ErrNoRows {
		return model.Expert{}, false, nil
	}
	if err != nil {
		return model.Expert{}, false, err
	}
	return e, true, nil
}

func (p *postgresExperts) UpsertWorkload(ctx context.Context, id string, delta int) error {
	_, err := p.pool.Exec(ctx, `UPDATE experts SET workload = GREATEST(0, workload + $2) WHERE name = $1`, id, delta)
	return err
}

// RecordOutcome maintains an incremental rolling average:
// new = old + (outcome - old) / (n+1), matching the teacher's style of
// updating fleet success metrics without storing the full outcome history.
func (p *postgresExperts) RecordOutcome(ctx context.Context, id string, success bool) error {
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	_, err := p.pool.Exec(ctx, `
UPDATE experts SET
  success_rate = success_rate + ($2 - success_rate) / (outcomes + 1),
  outcomes = outcomes + 1
WHERE name = $1`, id, outcome)
	return err
}

func (p *postgresExperts) SyncSeed(ctx context.Context, experts []model.Expert) error {
	for _, e := range experts {
		_, err := p.pool.Exec(ctx, `
INSERT INTO experts(name, role, department, department_id, system_prompt, workload, success_rate)
VALUES ($1,$2,$3,$4,$5,0,1)
ON CONFLICT (name) DO UPDATE SET role=EXCLUDED.role, department=EXCLUDED.department,
  department_id=EXCLUDED.department_id, system_prompt=EXCLUDED.system_prompt
`, e.Name, e.Role, e.Department, e.DepartmentID, e.SystemPrompt)
		if err != nil {
			return fmt.Errorf("sync expert %q: %w", e.Name, err)
		}
	}
	return nil
}

func (p *postgresExperts) Close() {}
