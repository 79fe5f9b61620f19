package retrieval

import (
	"sync"
	"sync/atomic"
	"time"
)

// StageThresholds are the configured ceilings past which a stage counts as
// slow, surfaced by the status endpoint per spec.md §4.4.
type StageThresholds struct {
	EmbedMs   int64
	PrepareMs int64
	PlanMs    int64
}

func DefaultStageThresholds() StageThresholds {
	return StageThresholds{EmbedMs: 300, PrepareMs: 500, PlanMs: 1500}
}

// StageClocks records the three per-stage latencies spec.md §4.4 names
// (embed_ms, prepare_ms, llm_plan_ms) and a running slow_count for any
// stage that exceeds its threshold.
type StageClocks struct {
	thresholds StageThresholds

	slowCount  atomic.Int64
	mu         sync.Mutex
	lastSlowAt time.Time
	last       time.Duration
}

func NewStageClocks(thresholds StageThresholds) *StageClocks {
	return &StageClocks{thresholds: thresholds}
}

func (s *StageClocks) observeEmbed(d time.Duration)   { s.observe(d, s.thresholds.EmbedMs) }
func (s *StageClocks) observePrepare(d time.Duration) { s.observe(d, s.thresholds.PrepareMs) }
func (s *StageClocks) observePlan(d time.Duration)    { s.observe(d, s.thresholds.PlanMs) }

func (s *StageClocks) observe(d time.Duration, ceilingMs int64) {
	s.mu.Lock()
	s.last = d
	s.mu.Unlock()
	if d.Milliseconds() <= ceilingMs {
		return
	}
	s.slowCount.Add(1)
	s.mu.Lock()
	s.lastSlowAt = time.Now()
	s.mu.Unlock()
}

// Snapshot is the status-endpoint view of retrieval latency health.
type Snapshot struct {
	LastMs     int64
	SlowCount  int64
	LastSlowAt time.Time
	Thresholds StageThresholds
}

func (s *StageClocks) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{LastMs: s.last.Milliseconds(), SlowCount: s.slowCount.Load(), LastSlowAt: s.lastSlowAt, Thresholds: s.thresholds}
}
