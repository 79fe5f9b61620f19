package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"taskmesh/internal/archive"
	"taskmesh/internal/model"
	"taskmesh/internal/persistence/databases"
)

// ArbiterClient is the narrow LLM surface the board synthesizer needs —
// satisfied directly by a router.Provider (the arbiter model bypasses
// Router's fast/heavy failover, since it is a single fixed model).
type ArbiterClient interface {
	Generate(ctx context.Context, model, prompt string, maxTokens int) (string, error)
}

// boardResponse is the fixed JSON schema the arbiter prompt asks for
// (SPEC_FULL.md §D), mirrored onto model.BoardDecision's fields.
type boardResponse struct {
	Decision             string   `json:"decision"`
	Rationale            string   `json:"rationale"`
	Risks                []string `json:"risks"`
	Confidence           float64  `json:"confidence"`
	RecommendHumanReview bool     `json:"recommend_human_review"`
}

// Escalation synthesizes a board decision for a task that has exhausted
// its retry budget, grounded on the teacher's multi-agent "board" prompt
// shape in internal/agents, generalized to a single fixed schema so parse
// failures degrade predictably instead of crashing the worker loop.
type Escalation struct {
	Arbiter ArbiterClient
	Model   string
	Board   databases.BoardStore
	// Archive offloads oversized rationale blobs to object storage; nil
	// is valid and simply keeps the full rationale inline.
	Archive *archive.Archive
	// Events publishes the resulting BoardDecision to the escalation
	// event bus; nil is valid and simply skips publishing.
	Events EventPublisher
}

func (e *Escalation) Escalate(ctx context.Context, task model.Task, lastErr model.ErrorKind) error {
	prompt := buildBoardPrompt(task, lastErr)
	text, err := e.Arbiter.Generate(ctx, e.Model, prompt, 1024)
	if err != nil {
		log.Warn().Err(err).Str("task_id", task.ID).Msg("board_synthesis_call_failed")
		return e.Board.Save(ctx, model.FailedSynthesisDecision(task.ID))
	}

	decision, ok := parseBoardResponse(text)
	if !ok {
		log.Warn().Str("task_id", task.ID).Msg("board_synthesis_unparseable")
		decision = model.FailedSynthesisDecision(task.ID)
	}
	decision.ID = uuid.NewString()
	decision.TaskID = task.ID
	decision.CreatedAt = time.Now().UTC()
	e.archiveRationaleIfOversized(ctx, &decision)
	if err := e.Board.Save(ctx, decision); err != nil {
		return err
	}
	if e.Events != nil {
		_ = e.Events.Publish(ctx, TaskEvent{
			Type: EventBoardDecision, TaskID: task.ID, Timestamp: decision.CreatedAt, Payload: decision,
		})
	}
	return nil
}

func (e *Escalation) archiveRationaleIfOversized(ctx context.Context, decision *model.BoardDecision) {
	if e.Archive == nil || !archive.NeedsArchive(decision.Rationale) {
		return
	}
	key, err := e.Archive.PutBoardRationale(ctx, decision.ID, []byte(decision.Rationale))
	if err != nil {
		log.Warn().Err(err).Str("decision_id", decision.ID).Msg("board_rationale_archive_failed")
		return
	}
	decision.RationaleArchiveKey = key
	decision.Rationale = decision.Rationale[:archive.InlineMaxChars]
}

func buildBoardPrompt(task model.Task, lastErr model.ErrorKind) string {
	var b strings.Builder
	b.WriteString("A task could not be completed automatically after repeated attempts. ")
	b.WriteString("Review it and respond with a single JSON object with exactly these keys: ")
	b.WriteString(`decision, rationale, risks (array of strings), confidence (0-1 number), recommend_human_review (bool).`)
	b.WriteString("\n\nGoal: ")
	b.WriteString(task.Goal)
	fmt.Fprintf(&b, "\nAttempts made: %d", task.AttemptCount)
	b.WriteString("\nLast error: ")
	b.WriteString(string(lastErr))
	if task.Metadata.LastOutput != "" {
		b.WriteString("\nMost recent output:\n")
		b.WriteString(task.Metadata.LastOutput)
	}
	return b.String()
}

// parseBoardResponse tolerates the arbiter wrapping the JSON object in
// prose or a markdown fence, taking only the outermost {...} span.
func parseBoardResponse(text string) (model.BoardDecision, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return model.BoardDecision{}, false
	}
	var resp boardResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil {
		return model.BoardDecision{}, false
	}
	if resp.Decision == "" {
		return model.BoardDecision{}, false
	}
	return model.BoardDecision{
		Decision:             resp.Decision,
		Rationale:            resp.Rationale,
		Risks:                resp.Risks,
		Confidence:           resp.Confidence,
		RecommendHumanReview: resp.RecommendHumanReview,
	}, true
}
