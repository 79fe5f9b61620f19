package conductor

import "taskmesh/internal/model"

// canonicalAnswers holds the templated replies spec.md §4.1 step 5 requires
// for categories where an LLM round trip would be pure waste: greetings and
// the "what can you do" meta-question. The status-query reply used only
// when the LLM backends are unavailable is the separate statusQueryFallback
// constant, not an entry of this map. Grounded on the teacher's
// habit of a small local-file template set ahead of falling through to the
// model (internal/agents' canned responses); kept in code rather than an
// external file since the set is fixed and small.
var canonicalAnswers = map[model.Category]string{
	model.CategoryGreeting: "Hello! I can help you investigate, plan, or execute a task — " +
		"just describe the goal and I'll get started.",
	model.CategoryWhatCanYouDo: "I can answer quick questions directly, delegate coding or " +
		"multi-step work to a pool of specialist experts, and retrieve prior knowledge to " +
		"ground my answers. Tell me the goal and I'll pick the right path.",
}

const statusQueryFallback = "I couldn't reach a model backend to summarize current status. " +
	"Please check back shortly or ask again with more detail."

// templatedAnswer returns a canonical answer for category, if one exists.
func templatedAnswer(category model.Category) (string, bool) {
	a, ok := canonicalAnswers[category]
	return a, ok
}
