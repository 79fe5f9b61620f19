package conductor

import (
	"path/filepath"
	"regexp"
	"strings"

	"taskmesh/internal/model"
)

var fileOrCommandPattern = regexp.MustCompile(`[\w./-]*\w\.[A-Za-z0-9]{1,6}\b|\b(run|execute|build|test|install|deploy)\b`)

// IsSimpleOneShot is spec.md §4.1 step 5's deterministic predicate: single
// verb, short, no conjunctions, mentions a concrete file or command. This
// is the single source of truth ShouldFanOut cites (spec.md's Open
// Question on detector/predicate tie-break is collapsed into this one
// function, per the decision recorded in SPEC_FULL.md §D).
func IsSimpleOneShot(goal string) bool {
	words := strings.Fields(goal)
	if len(words) == 0 || len(words) > 12 {
		return false
	}
	lower := strings.ToLower(goal)
	for _, c := range conjunctions {
		if strings.Contains(" "+lower+" ", c) {
			return false
		}
	}
	if !fileOrCommandPattern.MatchString(goal) {
		return false
	}
	return hasSingleLeadingVerb(words)
}

func hasSingleLeadingVerb(words []string) bool {
	if len(words) == 0 {
		return false
	}
	first := strings.ToLower(strings.Trim(words[0], ".,!?"))
	return !strings.HasSuffix(first, "ing") && filepath.Ext(first) == ""
}

// ShouldFanOut decides whether a coding/execution/multi_step goal should
// go through Executor's durable fan-out path, or the light executor /
// direct path. The only "light" case is a deterministic simple one-shot;
// everything else fans out.
func ShouldFanOut(goal string, category model.Category) bool {
	switch category {
	case model.CategoryCoding, model.CategoryExecution, model.CategoryMultiStep:
		return !IsSimpleOneShot(goal)
	default:
		return false
	}
}

// StrategyDecision is the planner's strategy-selection output (spec.md
// §4.1 step 4).
type StrategyDecision struct {
	Choice            model.StrategyChoice
	Confidence        float64
	UncertaintyReason string
}

// SelectStrategy maps a category and ambiguity verdict onto one of
// spec.md §4.1 step 4's four strategy choices. Categories with a
// canonical template or a deterministic light path never need a planner
// round trip; everything else defers to deep_analysis so Conductor's
// plan/fan-out/synthesis pipeline decides the rest.
func SelectStrategy(goal string, category model.Category, ambiguous bool) StrategyDecision {
	if ambiguous {
		return StrategyDecision{Choice: model.StrategyNeedClarify, Confidence: 1}
	}
	switch category {
	case model.CategoryGreeting, model.CategoryWhatCanYouDo, model.CategoryStatusQuery, model.CategorySimple:
		return StrategyDecision{Choice: model.StrategyQuick, Confidence: 1}
	case model.CategoryCoding, model.CategoryExecution, model.CategoryMultiStep:
		if IsSimpleOneShot(goal) {
			return StrategyDecision{Choice: model.StrategyQuick, Confidence: 0.9}
		}
		return StrategyDecision{Choice: model.StrategyDeep, Confidence: 0.8}
	default:
		return StrategyDecision{Choice: model.StrategyDeep, Confidence: 0.6, UncertaintyReason: "unrecognized category"}
	}
}
