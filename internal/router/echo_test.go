package router

import "testing"

func TestIsEcho(t *testing.T) {
	cases := []struct {
		name   string
		prompt string
		output string
		want   bool
	}{
		{"exact match after trim", "  hello world  ", "hello world", true},
		{"short prefix of prompt", "hello world, please respond", "hello world", true},
		{"short output prompt is prefix", "hi", "hi there, nice to meet you", true},
		{"short output that prefixes a long prompt is still echo", longText("hello world"), "hello", true},
		{"unrelated content", "summarize this document", "the document discusses quarterly revenue", false},
		{"empty output never echo", "hello", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := isEcho(tc.prompt, tc.output)
			if got != tc.want {
				t.Errorf("isEcho(%q, %q) = %v, want %v", tc.prompt, tc.output, got, tc.want)
			}
		})
	}
}

// longText pads s past 200 chars to build a long prompt; the 200-char echo
// threshold applies to the output, so a short output that prefixes it is
// still an echo.
func longText(s string) string {
	out := s
	for len(out) < 250 {
		out += " filler text to exceed the echo length threshold"
	}
	return out
}
