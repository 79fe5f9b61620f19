package model

import "time"

// BoardDecision is the structured escalation artifact produced by the board
// synthesizer (spec.md §4.2 Escalation, §9 Open Questions — schema fixed in
// SPEC_FULL.md §D).
type BoardDecision struct {
	ID                 string
	TaskID             string
	Decision           string
	Rationale          string
	Risks              []string
	Confidence         float64
	RecommendHumanReview bool
	// RationaleArchiveKey points to the full rationale in object storage
	// when it exceeds the inline character budget; Rationale then holds
	// only a truncated preview.
	RationaleArchiveKey string
	CreatedAt          time.Time
}

// FailedSynthesisDecision is the sentinel used when the arbiter model's
// response cannot be parsed into the fixed board schema. A parse failure is
// never a crash — it degrades into a human-reviewable decision instead.
func FailedSynthesisDecision(taskID string) BoardDecision {
	return BoardDecision{
		TaskID:               taskID,
		Decision:             "automated synthesis failed",
		Rationale:            "arbiter response could not be parsed into the board decision schema",
		Confidence:           0,
		RecommendHumanReview: true,
	}
}
