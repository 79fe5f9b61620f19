package databases

import (
	"context"
	"fmt"

	"taskmesh/internal/config"
)

// NewManager opens the shared Postgres pool and builds every store the
// composition root needs, choosing the vector backend per
// RAGConfig.VectorBackend ("postgres" default, "qdrant" alternative).
func NewManager(ctx context.Context, cfg config.Config) (Manager, error) {
	pool, err := OpenPool(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		return Manager{}, fmt.Errorf("open postgres pool: %w", err)
	}

	var m Manager
	switch cfg.RAG.VectorBackend {
	case "qdrant":
		m.Knowledge, err = NewQdrantKnowledge(cfg.Database.DSN, "knowledge_nodes")
	default:
		m.Knowledge, err = NewPostgresKnowledge(ctx, pool)
	}
	if err != nil {
		pool.Close()
		return Manager{}, fmt.Errorf("init knowledge store: %w", err)
	}
	if m.Tasks, err = NewPostgresTasks(ctx, pool); err != nil {
		pool.Close()
		return Manager{}, fmt.Errorf("init task store: %w", err)
	}
	if m.Experts, err = NewPostgresExperts(ctx, pool); err != nil {
		pool.Close()
		return Manager{}, fmt.Errorf("init expert store: %w", err)
	}
	if m.Sessions, err = NewPostgresSessions(ctx, pool); err != nil {
		pool.Close()
		return Manager{}, fmt.Errorf("init session store: %w", err)
	}
	if m.Board, err = NewPostgresBoard(ctx, pool); err != nil {
		pool.Close()
		return Manager{}, fmt.Errorf("init board store: %w", err)
	}
	m.pool = pool
	return m, nil
}
