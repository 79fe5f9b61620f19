// Package databases holds the Postgres/pgvector/Qdrant-backed stores behind
// Retrieval, Executor, and Conductor's narrow storage ports. Each port is a
// small interface so tests can swap in an in-memory fake without a live
// database, matching the teacher's habit of defining a port next to its
// Postgres implementation in internal/persistence/databases.
package databases

import (
	"context"
	"time"

	"taskmesh/internal/model"
)

// ScoredNode pairs a KnowledgeNode with the similarity score computed by the
// vector backend's distance operator.
type ScoredNode struct {
	Node       model.KnowledgeNode
	Similarity float64
}

// KnowledgeStore is Retrieval's vector-search port.
type KnowledgeStore interface {
	Upsert(ctx context.Context, node model.KnowledgeNode) error
	Search(ctx context.Context, embedding []float32, k int, domain string) ([]ScoredNode, error)
	// SearchByKeywords is spec.md §4.4 step 4's fallback for rows with no
	// embedding: an ILIKE substring match over the given keywords, ordered
	// by confidence_score DESC NULLS LAST, created_at DESC.
	SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]ScoredNode, error)
	Get(ctx context.Context, id string) (model.KnowledgeNode, bool, error)
	IncrementUsage(ctx context.Context, id string) error
	Close()
}

// TaskStore is Executor's durable queue port.
type TaskStore interface {
	Enqueue(ctx context.Context, t model.Task) error
	PullReady(ctx context.Context, limit int) ([]model.Task, error)
	Get(ctx context.Context, id string) (model.Task, bool, error)
	// CompareAndTransition updates a task's status only if its current
	// status still matches expectFrom, recording a TaskTransition row in
	// the same transaction. Returns false (no error) on a CAS miss so
	// callers can treat it as "someone else already moved this task".
	CompareAndTransition(ctx context.Context, id string, expectFrom model.Status, tr model.TaskTransition, mutate func(*model.Task)) (bool, error)
	Heartbeat(ctx context.Context, id string, at time.Time) error
	Stuck(ctx context.Context, stuckAfter time.Duration) ([]model.Task, error)
	Transitions(ctx context.Context, taskID string) ([]model.TaskTransition, error)
	Close()
}

// ExpertStore is Executor's assignment-scoring port.
type ExpertStore interface {
	List(ctx context.Context) ([]model.Expert, error)
	Get(ctx context.Context, id string) (model.Expert, bool, error)
	UpsertWorkload(ctx context.Context, id string, delta int) error
	RecordOutcome(ctx context.Context, id string, success bool) error
	SyncSeed(ctx context.Context, experts []model.Expert) error
	Close()
}

// SessionStore is Conductor's short-term-memory port.
type SessionStore interface {
	Append(ctx context.Context, ex model.SessionExchange) error
	Recent(ctx context.Context, sessionID string) ([]model.SessionExchange, error)
	Close()
}

// BoardStore persists escalation decisions for audit and later lookup.
type BoardStore interface {
	Save(ctx context.Context, d model.BoardDecision) error
	Get(ctx context.Context, id string) (model.BoardDecision, bool, error)
	Close()
}

// Manager aggregates every store the composition root builds once and
// threads through Conductor/Executor/Router/Retrieval. All Postgres-backed
// stores share one pool, owned here rather than per-store, so Close shuts
// it down exactly once.
type Manager struct {
	Knowledge KnowledgeStore
	Tasks     TaskStore
	Experts   ExpertStore
	Sessions  SessionStore
	Board     BoardStore

	pool interface{ Close() }
}

func (m Manager) Close() {
	if m.Knowledge != nil {
		m.Knowledge.Close() // no-op for Postgres-backed stores, real for Qdrant's own client
	}
	if m.pool != nil {
		m.pool.Close()
	}
}
