package databases

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"taskmesh/internal/model"
)

// postgresSessions backs Conductor's short-term memory log (spec.md §3/§5).
type postgresSessions struct {
	pool *pgxpool.Pool
}

func NewPostgresSessions(ctx context.Context, pool *pgxpool.Pool) (SessionStore, error) {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS session_exchanges (
  id             BIGSERIAL PRIMARY KEY,
  session_id     TEXT NOT NULL,
  correlation_id TEXT NOT NULL DEFAULT '',
  user_text      TEXT NOT NULL,
  assistant_text TEXT NOT NULL,
  created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS session_exchanges_session_idx ON session_exchanges(session_id, created_at);
`)
	if err != nil {
		return nil, fmt.Errorf("create session_exchanges schema: %w", err)
	}
	return &postgresSessions{pool: pool}, nil
}

func (p *postgresSessions) Append(ctx context.Context, ex model.SessionExchange) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO session_exchanges(session_id, correlation_id, user_text, assistant_text, created_at)
VALUES ($1,$2,$3,$4,$5)`, ex.SessionID, ex.CorrelationID, ex.User, ex.Assistant, nonZeroTime(ex.CreatedAt))
	return err
}

// Recent returns the trimmed tail of a session's exchange log, oldest first,
// applying model.TrimExchanges to the count/char bounds from spec.md §3.
func (p *postgresSessions) Recent(ctx context.Context, sessionID string) ([]model.SessionExchange, error) {
	rows, err := p.pool.Query(ctx, `
SELECT session_id, correlation_id, user_text, assistant_text, created_at
FROM session_exchanges WHERE session_id = $1
ORDER BY created_at DESC LIMIT $2`, sessionID, model.SessionExchangeMaxCount)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.SessionExchange{}
	for rows.Next() {
		var ex model.SessionExchange
		if err := rows.Scan(&ex.SessionID, &ex.CorrelationID, &ex.User, &ex.Assistant, &ex.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return model.TrimExchanges(out), nil
}

func (p *postgresSessions) Close() {}
