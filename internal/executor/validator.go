package executor

import "strings"

// ValidationResult is a scored judgment of one task attempt's output.
type ValidationResult struct {
	Score    float64
	Feedback string
}

// acceptScore is the threshold spec.md §4.2 step 4 names: a result scoring
// at or above this is accepted as completed, otherwise the attempt failed
// validation.
const acceptScore = 0.5

// Passed reports whether this result clears the acceptance threshold.
func (v ValidationResult) Passed() bool { return v.Score >= acceptScore }

// ValidateResult is the cheap, local pre-check run before accepting an
// attempt's output: reject empty/too-short output outright (spec.md §7's
// empty_or_short_response kind) without spending a Router round trip on a
// second model call to judge it. A richer LLM-graded validator can be
// layered in later behind the same ValidationResult shape; this one is
// grounded on the teacher's habit of a fast heuristic gate before the
// expensive synthesis path (internal/orchestrator's output-length checks).
func ValidateResult(goal, output string) ValidationResult {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return ValidationResult{Score: 0, Feedback: "empty response"}
	}
	if len(trimmed) < 20 {
		return ValidationResult{Score: 0.2, Feedback: "response too short to address the goal"}
	}
	score := 0.6
	lowerGoal := strings.ToLower(goal)
	lowerOut := strings.ToLower(trimmed)
	for _, kw := range extractKeywordsForValidation(lowerGoal) {
		if strings.Contains(lowerOut, kw) {
			score += 0.1
			if score >= 1 {
				score = 1
				break
			}
		}
	}
	return ValidationResult{Score: score, Feedback: ""}
}

// extractKeywordsForValidation pulls the longest few words out of goal as a
// crude relevance signal, mirroring retrieval's keyword extraction without
// creating a package dependency on internal/retrieval for one helper.
func extractKeywordsForValidation(goal string) []string {
	fields := strings.Fields(goal)
	var out []string
	for _, f := range fields {
		if len(f) >= 5 {
			out = append(out, f)
		}
		if len(out) >= 3 {
			break
		}
	}
	return out
}
