package conductor

import (
	"strings"

	"taskmesh/internal/model"
)

var pronouns = []string{"it", "this", "that", "these", "those", "they", "them"}

var indefiniteWords = []string{"something", "somehow", "somewhere", "anything", "stuff", "things"}

var conjunctions = []string{" and ", " then ", " also ", " plus "}

// ambiguityScore implements spec.md §4.1 step 3's deterministic heuristic:
// one point each for a goal under three words, a bare pronoun, an
// indefinite word, multiple conjunctions (more than one hit), and a short
// multi_step-categorized goal.
func ambiguityScore(goal string, category model.Category) int {
	words := strings.Fields(goal)
	lower := strings.ToLower(" " + goal + " ")

	score := 0
	if len(words) < 3 {
		score++
	}
	for _, p := range pronouns {
		if containsWord(lower, p) {
			score++
			break
		}
	}
	for _, w := range indefiniteWords {
		if containsWord(lower, w) {
			score++
			break
		}
	}
	conjunctionHits := 0
	for _, c := range conjunctions {
		if strings.Contains(lower, c) {
			conjunctionHits++
		}
	}
	if conjunctionHits > 1 {
		score++
	}
	if category == model.CategoryMultiStep && len(words) < 6 {
		score++
	}
	return score
}

func containsWord(spacedLower, word string) bool {
	return strings.Contains(spacedLower, " "+word+" ")
}

// IsAmbiguous reports whether goal needs clarification before routing,
// per spec.md §4.1 step 3's threshold of 2.
func IsAmbiguous(goal string, category model.Category) bool {
	return ambiguityScore(goal, category) >= 2
}

// clarifyingQuestions returns the same three fixed clarification prompts
// for every goal; the goal argument is not used. Conductor returns them
// directly in a needs_clarification result without any LLM call, so a
// clarification request never itself becomes a 503.
func clarifyingQuestions(goal string) []string {
	return []string{
		"Could you restate the goal with more detail?",
		"What specific outcome or deliverable are you looking for?",
		"Is there a particular file, system, or area this relates to?",
	}
}
