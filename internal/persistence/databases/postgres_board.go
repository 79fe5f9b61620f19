package databases

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskmesh/internal/model"
)

// postgresBoard persists board-synthesizer escalation decisions (spec.md
// §4.2 Escalation) for audit and the /api/board/consult lookup.
type postgresBoard struct {
	pool *pgxpool.Pool
}

func NewPostgresBoard(ctx context.Context, pool *pgxpool.Pool) (BoardStore, error) {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS board_decisions (
  id                     TEXT PRIMARY KEY,
  task_id                TEXT NOT NULL,
  decision               TEXT NOT NULL,
  rationale              TEXT NOT NULL DEFAULT '',
  risks                  TEXT[] NOT NULL DEFAULT '{}',
  confidence             DOUBLE PRECISION NOT NULL DEFAULT 0,
  recommend_human_review BOOLEAN NOT NULL DEFAULT false,
  created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
	if err != nil {
		return nil, fmt.Errorf("create board_decisions schema: %w", err)
	}
	return &postgresBoard{pool: pool}, nil
}

func (p *postgresBoard) Save(ctx context.Context, d model.BoardDecision) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO board_decisions(id, task_id, decision, rationale, risks, confidence, recommend_human_review, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET decision=EXCLUDED.decision, rationale=EXCLUDED.rationale,
  risks=EXCLUDED.risks, confidence=EXCLUDED.confidence, recommend_human_review=EXCLUDED.recommend_human_review
`, d.ID, d.TaskID, d.Decision, d.Rationale, d.Risks, d.Confidence, d.RecommendHumanReview, nonZeroTime(d.CreatedAt))
	return err
}

func (p *postgresBoard) Get(ctx context.Context, id string) (model.BoardDecision, bool, error) {
	var d model.BoardDecision
	err := p.pool.QueryRow(ctx, `
SELECT id, task_id, decision, rationale, risks, confidence, recommend_human_review, created_at
FROM board_decisions WHERE id = $1`, id).Scan(
		&d.ID, &d.TaskID, &d.Decision, &d.Rationale, &d.Risks, &d.Confidence, &d.RecommendHumanReview, &d.CreatedAt)
	if err == pgx.ErrNoRows {
		return model.BoardDecision{}, false, nil
	}
	if err != nil {
		return model.BoardDecision{}, false, err
	}
	return d, true, nil
}

func (p *postgresBoard) Close() {}
