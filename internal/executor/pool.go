// Package executor implements the durable, retryable task queue worker
// pool described in spec.md §4.2: assignment, stuck sweep, batched pull,
// adaptive concurrency, and the execute-one-task state machine.
package executor

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"taskmesh/internal/config"
)

// HostSample is one reading of host resource pressure, fed into the
// adaptive concurrency function. Grounded on the teacher's hostinfo
// package (internal/hostinfo), rewritten onto github.com/shirou/gopsutil/v4
// since the teacher's own hostinfo.go imports the unversioned
// github.com/shirou/gopsutil (not in go.mod) and github.com/jaypipes/ghw
// (also not in go.mod) — both stale paths this package does not carry
// forward.
type HostSample struct {
	CPUPercent float64
	MemPercent float64
}

func sampleHost(ctx context.Context) (HostSample, error) {
	cpuPct, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return HostSample{}, err
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return HostSample{}, err
	}
	sample := HostSample{MemPercent: vm.UsedPercent}
	if len(cpuPct) > 0 {
		sample.CPUPercent = cpuPct[0]
	}
	return sample, nil
}

// AdaptiveConcurrency is the pure function spec.md §4.2 names:
// effective_N = min(MAX_CONCURRENT, adaptive(cpu%, mem%, mlxActive, ollamaActive)).
// It backs off linearly as host pressure rises above 70%, and backs off
// further per in-flight heavy-family call since those dominate host load.
func AdaptiveConcurrency(maxConcurrent int, host HostSample, mlxActive, ollamaActive int) int {
	if maxConcurrent <= 0 {
		maxConcurrent = 15
	}
	pressure := math.Max(host.CPUPercent, host.MemPercent)
	budget := float64(maxConcurrent)
	if pressure > 70 {
		overage := pressure - 70
		budget -= budget * (overage / 30) // linear falloff from 70% to 100%
	}
	budget -= float64(mlxActive+ollamaActive) * 0.5
	n := int(math.Floor(budget))
	if n < 1 {
		n = 1
	}
	if n > maxConcurrent {
		n = maxConcurrent
	}
	return n
}

// Pool recomputes effective_N on ADAPTIVE_INTERVAL and exposes the
// current value for the pull loop to respect, without blocking callers
// on the gopsutil sampling call (spec.md §5: CPU work off the request path).
type Pool struct {
	cfg config.ExecutorConfig

	effectiveN int
}

func NewPool(cfg config.ExecutorConfig) *Pool {
	p := &Pool{cfg: cfg, effectiveN: cfg.MaxConcurrent}
	if p.effectiveN <= 0 {
		p.effectiveN = 15
	}
	return p
}

// Run recomputes effective_N every ADAPTIVE_INTERVAL until ctx is done.
// activeHeavy reports the Router's current per-family in-flight counts.
func (p *Pool) Run(ctx context.Context, activeHeavy func() (mlx, ollama int)) {
	if !p.cfg.AdaptiveConcurrency {
		return
	}
	interval := p.cfg.AdaptiveInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample, err := sampleHost(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("executor_host_sample_failed")
				continue
			}
			mlx, ollama := 0, 0
			if activeHeavy != nil {
				mlx, ollama = activeHeavy()
			}
			p.effectiveN = AdaptiveConcurrency(p.cfg.MaxConcurrent, sample, mlx, ollama)
		}
	}
}

// EffectiveN returns the last computed worker ceiling.
func (p *Pool) EffectiveN() int {
	if p.effectiveN <= 0 {
		return 1
	}
	return p.effectiveN
}
