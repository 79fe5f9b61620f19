package retrieval

import (
	"sort"
	"strings"
	"unicode"
)

// lengthBonus implements spec.md §4.4 step 5's rerank length bonus:
// clamp(len(content)/1000, 0.5, 1.5).
func lengthBonus(contentLen int) float64 {
	b := float64(contentLen) / 1000.0
	if b < 0.5 {
		return 0.5
	}
	if b > 1.5 {
		return 1.5
	}
	return b
}

// snippetFor trims content to at most maxChars, except the unique top-1
// result which may expand to top1Max when isTop1Unique is true, per
// spec.md §4.4 step 6.
func snippetFor(content string, maxChars, top1Max int, isTop1Unique bool) string {
	limit := maxChars
	if isTop1Unique {
		limit = top1Max
	}
	if len(content) <= limit {
		return content
	}
	return content[:limit]
}

// extractKeywords picks the 1-3 longest distinct words from goal for the
// substring-fallback search (spec.md §4.4 step 4).
func extractKeywords(goal string, max int) []string {
	fields := strings.FieldsFunc(goal, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	var candidates []string
	for _, w := range fields {
		if len([]rune(w)) < 3 {
			continue
		}
		lw := strings.ToLower(w)
		if seen[lw] {
			continue
		}
		seen[lw] = true
		candidates = append(candidates, lw)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})
	if len(candidates) > max {
		candidates = candidates[:max]
	}
	return candidates
}
