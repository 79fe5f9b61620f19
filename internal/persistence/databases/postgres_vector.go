package databases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskmesh/internal/model"
)

// postgresKnowledge is the pgvector-backed KnowledgeStore, grounded on the
// teacher's internal/persistence/databases/postgres_vector.go raw-SQL
// cosine-distance pattern, extended to carry the full KnowledgeNode shape
// instead of a generic string-metadata map.
type postgresKnowledge struct {
	pool *pgxpool.Pool
}

// NewPostgresKnowledge ensures the pgvector extension and knowledge_nodes
// table exist, then returns a KnowledgeStore over them.
func NewPostgresKnowledge(ctx context.Context, pool *pgxpool.Pool) (KnowledgeStore, error) {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return nil, fmt.Errorf("create vector extension: %w", err)
	}
	_, err := pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS knowledge_nodes (
  id           TEXT PRIMARY KEY,
  content      TEXT NOT NULL,
  embedding    vector(%d),
  domain       TEXT NOT NULL DEFAULT '',
  source       TEXT NOT NULL DEFAULT '',
  is_standard  BOOLEAN NOT NULL DEFAULT false,
  confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
  verified     BOOLEAN NOT NULL DEFAULT false,
  usage_count  INTEGER NOT NULL DEFAULT 0,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`, model.EmbeddingDimensions))
	if err != nil {
		return nil, fmt.Errorf("create knowledge_nodes table: %w", err)
	}
	return &postgresKnowledge{pool: pool}, nil
}

func (p *postgresKnowledge) Upsert(ctx context.Context, n model.KnowledgeNode) error {
	if err := model.ValidateEmbedding(n.Embedding); err != nil {
		return err
	}
	var vecLit any
	if len(n.Embedding) > 0 {
		vecLit = toVectorLiteral(n.Embedding)
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO knowledge_nodes(id, content, embedding, domain, source, is_standard, confidence, verified, usage_count, created_at)
VALUES ($1, $2, $3::vector, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
  content=EXCLUDED.content, embedding=EXCLUDED.embedding, domain=EXCLUDED.domain,
  source=EXCLUDED.source, is_standard=EXCLUDED.is_standard, confidence=EXCLUDED.confidence,
  verified=EXCLUDED.verified
`, n.ID, n.Content, vecLit, n.Metadata.Domain, n.Metadata.Source, n.Metadata.IsStandard,
		n.Confidence, n.Verified, n.UsageCount, nonZeroTime(n.CreatedAt))
	return err
}

func (p *postgresKnowledge) Search(ctx context.Context, embedding []float32, k int, domain string) ([]ScoredNode, error) {
	if k <= 0 {
		k = 5
	}
	vecLit := toVectorLiteral(embedding)
	where := ""
	args := []any{vecLit, k}
	if domain != "" {
		where = "WHERE domain = $3"
		args = append(args, domain)
	}
	query := fmt.Sprintf(`
SELECT id, content, domain, source, is_standard, confidence, verified, usage_count, created_at,
       1 - (embedding <=> $1::vector) AS similarity
FROM knowledge_nodes
%s
ORDER BY embedding <=> $1::vector
LIMIT $2`, where)
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ScoredNode, 0, k)
	for rows.Next() {
		var sn ScoredNode
		if err := rows.Scan(&sn.Node.ID, &sn.Node.Content, &sn.Node.Metadata.Domain, &sn.Node.Metadata.Source,
			&sn.Node.Metadata.IsStandard, &sn.Node.Confidence, &sn.Node.Verified, &sn.Node.UsageCount,
			&sn.Node.CreatedAt, &sn.Similarity); err != nil {
			return nil, err
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

func (p *postgresKnowledge) SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]ScoredNode, error) {
	if limit <= 0 {
		return nil, nil
	}
	if len(keywords) == 0 {
		return nil, nil
	}
	clauses := make([]string, 0, len(keywords))
	args := make([]any, 0, len(keywords)+1)
	for i, kw := range keywords {
		clauses = append(clauses, fmt.Sprintf("content ILIKE $%d", i+1))
		args = append(args, "%"+kw+"%")
	}
	args = append(args, limit)
	query := fmt.Sprintf(`
SELECT id, content, domain, source, is_standard, confidence, verified, usage_count, created_at
FROM knowledge_nodes
WHERE %s
ORDER BY confidence DESC NULLS LAST, created_at DESC
LIMIT $%d`, strings.Join(clauses, " OR "), len(keywords)+1)
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ScoredNode, 0, limit)
	for rows.Next() {
		var sn ScoredNode
		if err := rows.Scan(&sn.Node.ID, &sn.Node.Content, &sn.Node.Metadata.Domain, &sn.Node.Metadata.Source,
			&sn.Node.Metadata.IsStandard, &sn.Node.Confidence, &sn.Node.Verified, &sn.Node.UsageCount,
			&sn.Node.CreatedAt); err != nil {
			return nil, err
		}
		// Substring hits have no similarity score; Retrieval treats 0 as
		// "unscored" and never uses it in the rerank formula.
		out = append(out, sn)
	}
	return out, rows.Err()
}

func (p *postgresKnowledge) Get(ctx context.Context, id string) (model.KnowledgeNode, bool, error) {
	var n model.KnowledgeNode
	err := p.pool.QueryRow(ctx, `
SELECT id, content, domain, source, is_standard, confidence, verified, usage_count, created_at
FROM knowledge_nodes WHERE id = $1`, id).Scan(
		&n.ID, &n.Content, &n.Metadata.Domain, &n.Metadata.Source, &n.Metadata.IsStandard,
		&n.Confidence, &n.Verified, &n.UsageCount, &n.CreatedAt)
	if err == pgx.ErrNoRows {
		return model.KnowledgeNode{}, false, nil
	}
	if err != nil {
		return model.KnowledgeNode{}, false, err
	}
	return n, true, nil
}

func (p *postgresKnowledge) IncrementUsage(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `UPDATE knowledge_nodes SET usage_count = usage_count + 1 WHERE id = $1`, id)
	return err
}

func (p *postgresKnowledge) Close() {}

func nonZeroTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	b := strings.Builder{}
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(fmt.Sprintf("%g", x))
	}
	b.WriteByte(']')
	return b.String()
}
