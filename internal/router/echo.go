package router

import "strings"

// isEcho implements spec.md §4.3's exact echo-detection rule: a response is
// an echo if it equals the prompt after trimming, or if it is short (under
// 200 chars) and one of prompt/output is a prefix of the other. Pure and
// side-effect free so it is directly table-testable.
func isEcho(prompt, output string) bool {
	p := strings.TrimSpace(prompt)
	o := strings.TrimSpace(output)
	if o == "" {
		return false
	}
	if o == p {
		return true
	}
	if len(o) < 200 && (strings.HasPrefix(p, o) || strings.HasPrefix(o, p)) {
		return true
	}
	return false
}
