// Package conductor implements spec.md §4.1: goal understanding, ambiguity
// detection, strategy selection, routing to a templated answer / direct
// Router call / Executor fan-out, and final synthesis and memory update.
// Grounded on the teacher's top-level orchestrator entry point in
// internal/orchestrator, rebuilt onto the Conductor/Executor/Router/
// Retrieval architecture this spec names.
package conductor

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"taskmesh/internal/config"
	"taskmesh/internal/model"
	"taskmesh/internal/persistence/databases"
	"taskmesh/internal/retrieval"
	"taskmesh/internal/router"
)

// Retriever is the narrow slice of Retrieval's surface Conductor depends on.
type Retriever interface {
	Context(ctx context.Context, goal, domain string, precomputed []float32) (retrieval.ContextBlock, error)
}

// Conductor is the single entry point for spec.md §4.1's Run/Status
// operations.
type Conductor struct {
	cfg         config.ConductorConfig
	understander *Understander
	planner     *Planner
	dispatcher  Dispatcher
	retriever   Retriever
	sessions    databases.SessionStore
	knowledge   databases.KnowledgeStore
	tasks       databases.TaskStore

	syncSlots *semaphore.Weighted
}

func New(cfg config.ConductorConfig, understander *Understander, planner *Planner, dispatcher Dispatcher,
	retriever Retriever, sessions databases.SessionStore, knowledge databases.KnowledgeStore, tasks databases.TaskStore) *Conductor {
	maxSync := cfg.MaxConcurrentSync
	if maxSync <= 0 {
		maxSync = 10
	}
	return &Conductor{
		cfg: cfg, understander: understander, planner: planner, dispatcher: dispatcher,
		retriever: retriever, sessions: sessions, knowledge: knowledge, tasks: tasks,
		syncSlots: semaphore.NewWeighted(int64(maxSync)),
	}
}

// Run implements spec.md §4.1's public Run operation.
func (c *Conductor) Run(ctx context.Context, goal, projectContext, sessionID string, async bool) model.Result {
	correlationID := uuid.NewString()

	maxGoalChars := c.cfg.MaxGoalChars
	if maxGoalChars <= 0 {
		maxGoalChars = 8000
	}
	if strings.TrimSpace(goal) == "" || len(goal) > maxGoalChars {
		return model.Result{Kind: model.ResultFailure, CorrelationID: correlationID,
			FailureKind: "validation_failed", FailureMessage: "goal must be non-empty and within the character limit"}
	}

	if async {
		taskID := uuid.NewString()
		if c.tasks != nil {
			_ = c.tasks.Enqueue(ctx, model.Task{
				ID: taskID, Goal: goal, ProjectContext: projectContext, Status: model.StatusPending,
				Priority: model.PriorityMedium, Metadata: model.TaskMetadata{ParentTaskID: sessionID},
			})
		}
		return model.Result{Kind: model.ResultAccepted, CorrelationID: correlationID, TaskID: taskID, StatusURL: "/run/status/" + taskID}
	}

	if !c.syncSlots.TryAcquire(1) {
		return model.Result{Kind: model.ResultFailure, CorrelationID: correlationID,
			FailureKind: "overloaded", FailureMessage: "too many concurrent synchronous requests", RetryAfterSec: 2}
	}
	defer c.syncSlots.Release(1)

	return c.runSync(ctx, goal, projectContext, sessionID, correlationID)
}

func (c *Conductor) runSync(ctx context.Context, goal, projectContext, sessionID, correlationID string) model.Result {
	sessionSummary := ""
	var history []model.SessionExchange
	if c.sessions != nil && sessionID != "" {
		history, _ = c.sessions.Recent(ctx, sessionID)
		sessionSummary = summarizeHistory(history)
	}

	understanding, err := c.understander.Understand(ctx, goal, sessionSummary)
	if err != nil {
		return model.Result{Kind: model.ResultFailure, CorrelationID: correlationID,
			FailureKind: "llm_unavailable", FailureMessage: err.Error()}
	}

	if IsAmbiguous(goal, understanding.Category) {
		return model.Result{Kind: model.ResultNeedsClarification, CorrelationID: correlationID,
			ClarificationQuestions: clarifyingQuestions(goal), SuggestedRestatement: understanding.Restated}
	}

	decision := SelectStrategy(goal, understanding.Category, false)
	if decision.Choice == model.StrategyNeedClarify {
		return model.Result{Kind: model.ResultNeedsClarification, CorrelationID: correlationID,
			ClarificationQuestions: clarifyingQuestions(goal), SuggestedRestatement: understanding.Restated}
	}

	if answer, ok := templatedAnswer(understanding.Category); ok {
		return c.finish(ctx, goal, answer, sessionID, correlationID, nil)
	}

	contextText, knowledgeRefs := c.assembleContext(ctx, goal, understanding, history)

	switch decision.Choice {
	case model.StrategyDeep:
		return c.runDeepAnalysis(ctx, goal, contextText, sessionID, correlationID, knowledgeRefs)
	default:
		return c.runQuickAnswer(ctx, goal, contextText, understanding, sessionID, correlationID, knowledgeRefs)
	}
}

func (c *Conductor) runQuickAnswer(ctx context.Context, goal, contextText string, understanding Understanding,
	sessionID, correlationID string, knowledgeRefs []model.KnowledgeRef) model.Result {

	if understanding.Category == model.CategoryStatusQuery {
		resp, err := c.dispatcher.Dispatch(ctx, toDirectRequest(goal, contextText))
		if err != nil {
			return c.finish(ctx, goal, statusQueryFallback, sessionID, correlationID, knowledgeRefs)
		}
		return c.finish(ctx, goal, resp.Text, sessionID, correlationID, knowledgeRefs)
	}

	resp, err := c.dispatcher.Dispatch(ctx, toDirectRequest(goal, contextText))
	if err != nil {
		return model.Result{Kind: model.ResultFailure, CorrelationID: correlationID,
			FailureKind: "llm_unavailable", FailureMessage: err.Error()}
	}
	return c.finish(ctx, goal, resp.Text, sessionID, correlationID, knowledgeRefs)
}

func (c *Conductor) runDeepAnalysis(ctx context.Context, goal, contextText, sessionID, correlationID string, knowledgeRefs []model.KnowledgeRef) model.Result {
	plan, err := c.planner.GeneratePlan(ctx, goal, contextText)
	if err != nil {
		return model.Result{Kind: model.ResultFailure, CorrelationID: correlationID,
			FailureKind: "llm_unavailable", FailureMessage: err.Error()}
	}

	fanoutMax := c.cfg.FanoutMax
	results, err := RunFanout(ctx, plan, c.dispatcher, fanoutMax)
	if err != nil {
		return model.Result{Kind: model.ResultFailure, CorrelationID: correlationID,
			FailureKind: "llm_unavailable", FailureMessage: err.Error()}
	}

	maxRevisions := c.cfg.MaxPlanRevisions
	if maxRevisions <= 0 {
		maxRevisions = 1
	}
	for revision := 0; revision < maxRevisions && NeedsRevision(results); revision++ {
		log.Warn().Str("correlation_id", correlationID).Int("revision", revision+1).Msg("conductor_plan_revision")
		revised, err := c.planner.GeneratePlan(ctx, goal, contextText)
		if err != nil {
			break
		}
		plan = revised
		results, err = RunFanout(ctx, plan, c.dispatcher, fanoutMax)
		if err != nil {
			break
		}
	}

	output, err := c.planner.Synthesize(ctx, goal, results)
	if err != nil {
		return model.Result{Kind: model.ResultFailure, CorrelationID: correlationID,
			FailureKind: "llm_unavailable", FailureMessage: err.Error()}
	}
	return c.finish(ctx, goal, output, sessionID, correlationID, knowledgeRefs)
}

func toDirectRequest(goal, contextText string) router.Request {
	prompt := goal
	if contextText != "" {
		prompt = contextText + "\n\n" + goal
	}
	return router.Request{Prompt: prompt, MaxTokens: 1024}
}

func (c *Conductor) assembleContext(ctx context.Context, goal string, understanding Understanding, history []model.SessionExchange) (string, []model.KnowledgeRef) {
	if c.retriever == nil {
		return "", nil
	}
	block, err := c.retriever.Context(ctx, goal, string(understanding.Category), nil)
	if err != nil {
		return "", nil
	}
	var b strings.Builder
	refs := make([]model.KnowledgeRef, 0, len(block.Snippets))
	for _, s := range block.Snippets {
		b.WriteString(s.Content)
		b.WriteString("\n\n")
		refs = append(refs, model.KnowledgeRef{ID: s.NodeID, Snippet: s.Content, Similarity: s.Similarity})
	}
	longTermK := 2
	for i := len(history) - 1; i >= 0 && longTermK > 0; i-- {
		b.WriteString(history[i].User)
		b.WriteString(" -> ")
		b.WriteString(history[i].Assistant)
		b.WriteString("\n")
		longTermK--
	}
	return b.String(), refs
}

// finish records the session exchange and a self-authored knowledge node
// per spec.md §4.1 step 9, and builds the final success Result.
func (c *Conductor) finish(ctx context.Context, goal, output, sessionID, correlationID string, refs []model.KnowledgeRef) model.Result {
	if c.sessions != nil && sessionID != "" {
		_ = c.sessions.Append(ctx, model.SessionExchange{
			SessionID: sessionID, CorrelationID: correlationID, User: goal, Assistant: output, CreatedAt: time.Now().UTC(),
		})
	}
	if c.knowledge != nil && strings.TrimSpace(output) != "" {
		_ = c.knowledge.Upsert(ctx, model.KnowledgeNode{
			ID: uuid.NewString(), Content: truncate(output, model.MaxContentChars),
			Metadata: model.KnowledgeNodeMetadata{Source: "self"}, CreatedAt: time.Now().UTC(),
		})
	}
	return model.Result{Kind: model.ResultSuccess, CorrelationID: correlationID, Output: output, Knowledge: refs}
}

// Status implements spec.md §4.1's Status(taskId) operation.
func (c *Conductor) Status(ctx context.Context, taskID string) (string, model.Result, bool) {
	if c.tasks == nil {
		return "", model.Result{}, false
	}
	t, ok, err := c.tasks.Get(ctx, taskID)
	if err != nil || !ok {
		return "", model.Result{}, false
	}
	switch t.Status {
	case model.StatusPending:
		return "queued", model.Result{}, true
	case model.StatusInProgress:
		return "running", model.Result{}, true
	case model.StatusCompleted:
		return "completed", model.Result{Kind: model.ResultSuccess, Output: t.Metadata.LastOutput}, true
	case model.StatusFailed, model.StatusCancelled:
		return "failed", model.Result{Kind: model.ResultFailure, FailureKind: string(t.Metadata.LastError)}, true
	case model.StatusDeferredToHuman:
		return "failed", model.Result{Kind: model.ResultFailure, FailureKind: "escalated", FailureMessage: "deferred to human review"}, true
	default:
		return "queued", model.Result{}, true
	}
}

func summarizeHistory(history []model.SessionExchange) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	start := 0
	if len(history) > 3 {
		start = len(history) - 3
	}
	for _, ex := range history[start:] {
		b.WriteString(ex.User)
		b.WriteString(" ")
	}
	return strings.TrimSpace(b.String())
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
