// Package analytics records Router/Executor latency and retry outcomes to
// ClickHouse as an append-only time series, and answers a per-model
// cold-start timing query (ColdStartP95); Executor's attempt timeout does
// not read it.
// Grounded on internal/agentd/metrics_clickhouse.go's connection-opening
// and DSN-parsing pattern, rewritten from a read-only OTEL-metrics query
// surface into a small write+read sink for this spec's own event shape.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"taskmesh/internal/config"
)

// LatencyEvent is one append-only row: how long one stage of one model
// call took, and how it ended.
type LatencyEvent struct {
	Model      string
	Family     string // "fast" | "heavy"
	Stage      string // "generate" | "embed" | "retrieval" | "plan"
	DurationMs int64
	Outcome    string // "ok" | "timeout" | "error"
	At         time.Time
}

// Sink is the narrow port Router/Executor depend on, so callers can pass
// a no-op stub when CLICKHOUSE_DSN is unset rather than branching on nil
// everywhere.
type Sink interface {
	Record(ctx context.Context, ev LatencyEvent) error
	ColdStartP95(ctx context.Context, model string, lookback time.Duration) (time.Duration, error)
}

type noopSink struct{}

func (noopSink) Record(context.Context, LatencyEvent) error { return nil }
func (noopSink) ColdStartP95(context.Context, string, time.Duration) (time.Duration, error) {
	return 0, nil
}

// NoopSink is used when ClickHouse is not configured.
var NoopSink Sink = noopSink{}

type clickhouseSink struct {
	conn  clickhouse.Conn
	table string
}

// New opens a ClickHouse connection and ensures the latency_events table
// exists. Returns NoopSink, nil when cfg.DSN is empty so callers never
// need to special-case "analytics disabled".
func New(ctx context.Context, cfg config.ClickHouseConfig) (Sink, error) {
	if !cfg.Enabled {
		return NoopSink, nil
	}
	opts, err := clickhouse.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	s := &clickhouseSink{conn: conn, table: "latency_events"}
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *clickhouseSink) ensureTable(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		at DateTime,
		model String,
		family String,
		stage String,
		duration_ms Int64,
		outcome String
	) ENGINE = MergeTree ORDER BY (model, at)`, s.table)
	return s.conn.Exec(ctx, stmt)
}

func (s *clickhouseSink) Record(ctx context.Context, ev LatencyEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (at, model, family, stage, duration_ms, outcome) VALUES (?, ?, ?, ?, ?, ?)`, s.table)
	return s.conn.Exec(ctx, stmt, ev.At, ev.Model, ev.Family, ev.Stage, ev.DurationMs, ev.Outcome)
}

// ColdStartP95 estimates the 95th-percentile generate latency for a
// model over the lookback window. No caller in this module uses it to size
// a timeout; Executor derives its per-attempt timeout from its heartbeat
// setting.
func (s *clickhouseSink) ColdStartP95(ctx context.Context, model string, lookback time.Duration) (time.Duration, error) {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	query := fmt.Sprintf(`SELECT quantile(0.95)(duration_ms) FROM %s WHERE model = ? AND stage = 'generate' AND at >= ?`, s.table)
	row := s.conn.QueryRow(ctx, query, model, time.Now().UTC().Add(-lookback))
	var p95 float64
	if err := row.Scan(&p95); err != nil {
		return 0, fmt.Errorf("query cold start p95: %w", err)
	}
	return time.Duration(p95) * time.Millisecond, nil
}
