package conductor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"taskmesh/internal/router"
)

// Subtask is one unit of spec.md §4.1 step 7's plan JSON.
type Subtask struct {
	ID              string   `json:"id"`
	Description     string   `json:"description"`
	Department      string   `json:"department"`
	Role            string   `json:"role"`
	Dependencies    []string `json:"dependencies"`
	CanParallel     bool     `json:"can_parallel"`
	SuccessCriteria string   `json:"success_criteria"`
}

// Plan is the full fan-out plan spec.md §4.1 step 7 names.
type Plan struct {
	Subtasks       []Subtask  `json:"subtasks"`
	ExecutionOrder []string   `json:"execution_order"`
	ParallelGroups [][]string `json:"parallel_groups"`
	Requirements   []string   `json:"requirements"`
}

// Planner generates and synthesizes fan-out plans via the Router, grounded
// on the teacher's multi-agent plan/execute/synthesize pipeline shape in
// internal/orchestrator, rebuilt onto the fixed plan schema spec.md names.
type Planner struct {
	dispatcher Dispatcher
}

func NewPlanner(dispatcher Dispatcher) *Planner {
	return &Planner{dispatcher: dispatcher}
}

func (p *Planner) GeneratePlan(ctx context.Context, goal, contextText string) (Plan, error) {
	prompt := buildPlanPrompt(goal, contextText)
	resp, err := p.dispatcher.Dispatch(ctx, router.Request{
		Prompt:          prompt,
		Category:        "plan",
		PreferredFamily: "heavy",
		MaxTokens:       2048,
	})
	if err != nil {
		return Plan{}, err
	}
	plan, ok := parsePlan(resp.Text)
	if !ok {
		return Plan{}, fmt.Errorf("conductor: planner returned an unparseable plan")
	}
	return plan, nil
}

func buildPlanPrompt(goal, contextText string) string {
	var b strings.Builder
	b.WriteString("Produce a plan to accomplish this goal by decomposing it into subtasks. ")
	b.WriteString("Respond with a single JSON object with exactly these keys: ")
	b.WriteString(`subtasks (array of {id, description, department, role, dependencies, can_parallel, success_criteria}), `)
	b.WriteString("execution_order (array of subtask ids), parallel_groups (array of arrays of subtask ids), requirements (array of strings).")
	b.WriteString("\n\nGoal: ")
	b.WriteString(goal)
	if contextText != "" {
		b.WriteString("\n\nRelevant context:\n")
		b.WriteString(contextText)
	}
	return b.String()
}

func parsePlan(text string) (Plan, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return Plan{}, false
	}
	var plan Plan
	if err := json.Unmarshal([]byte(text[start:end+1]), &plan); err != nil {
		return Plan{}, false
	}
	if len(plan.Subtasks) == 0 {
		return Plan{}, false
	}
	return plan, true
}

// SubtaskResult is one subtask's outcome from a direct (non-durable) fan-out run.
type SubtaskResult struct {
	ID     string
	Output string
	Err    error
}

// RunFanout executes plan directly (spec.md §4.1 step 7's "directly runs
// them in parallel" branch), processing parallel_groups in order and
// bounding concurrency within each group by fanoutMax via a semaphore —
// grounded on the teacher's errgroup-based parallel dispatch pattern.
func RunFanout(ctx context.Context, plan Plan, dispatcher Dispatcher, fanoutMax int) ([]SubtaskResult, error) {
	if fanoutMax <= 0 {
		fanoutMax = 4
	}
	byID := make(map[string]Subtask, len(plan.Subtasks))
	for _, st := range plan.Subtasks {
		byID[st.ID] = st
	}

	groups := plan.ParallelGroups
	if len(groups) == 0 {
		for _, id := range plan.ExecutionOrder {
			groups = append(groups, []string{id})
		}
	}
	if len(groups) == 0 {
		for _, st := range plan.Subtasks {
			groups = append(groups, []string{st.ID})
		}
	}

	results := make(map[string]SubtaskResult, len(plan.Subtasks))
	var mu sync.Mutex

	for _, group := range groups {
		sem := semaphore.NewWeighted(int64(fanoutMax))
		eg, egCtx := errgroup.WithContext(ctx)
		for _, id := range group {
			st, ok := byID[id]
			if !ok {
				continue
			}
			id, st := id, st
			if err := sem.Acquire(egCtx, 1); err != nil {
				return nil, err
			}
			mu.Lock()
			snapshot := make(map[string]SubtaskResult, len(results))
			for k, v := range results {
				snapshot[k] = v
			}
			mu.Unlock()
			eg.Go(func() error {
				defer sem.Release(1)
				out, err := dispatcher.Dispatch(egCtx, router.Request{
					Prompt:          buildSubtaskPrompt(st, snapshot),
					Category:        st.Department,
					PreferredFamily: "heavy",
					MaxTokens:       1024,
				})
				res := SubtaskResult{ID: id}
				if err != nil {
					res.Err = err
				} else {
					res.Output = out.Text
				}
				mu.Lock()
				results[id] = res
				mu.Unlock()
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	out := make([]SubtaskResult, 0, len(results))
	for _, id := range plan.ExecutionOrder {
		if r, ok := results[id]; ok {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		for _, r := range results {
			out = append(out, r)
		}
	}
	return out, nil
}

func buildSubtaskPrompt(st Subtask, priorResults map[string]SubtaskResult) string {
	var b strings.Builder
	b.WriteString(st.Description)
	for _, dep := range st.Dependencies {
		if r, ok := priorResults[dep]; ok && r.Output != "" {
			b.WriteString("\n\nDependency ")
			b.WriteString(dep)
			b.WriteString(" result:\n")
			b.WriteString(r.Output)
		}
	}
	return b.String()
}

// NeedsRevision reports whether any subtask completed without error but
// with an empty output, which triggers a single plan revision (bounded by
// MAX_PLAN_REVISIONS=1). It sees only the results, so it does not check
// whether that subtask is a dependency of another subtask.
func NeedsRevision(results []SubtaskResult) bool {
	for _, r := range results {
		if r.Err == nil && strings.TrimSpace(r.Output) == "" {
			return true
		}
	}
	return false
}

// Synthesize asks the planner to combine subtask outputs into one answer.
func (p *Planner) Synthesize(ctx context.Context, goal string, results []SubtaskResult) (string, error) {
	var b strings.Builder
	b.WriteString("Synthesize a single final answer for this goal from the enumerated subtask outputs.\n\nGoal: ")
	b.WriteString(goal)
	for _, r := range results {
		b.WriteString("\n\n--- subtask ")
		b.WriteString(r.ID)
		b.WriteString(" ---\n")
		if r.Err != nil {
			b.WriteString("(failed: " + r.Err.Error() + ")")
			continue
		}
		b.WriteString(r.Output)
	}
	resp, err := p.dispatcher.Dispatch(ctx, router.Request{
		Prompt:          b.String(),
		Category:        "synthesis",
		PreferredFamily: "heavy",
		MaxTokens:       2048,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
