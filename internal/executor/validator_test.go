package executor

import "testing"

func TestValidateResult(t *testing.T) {
	cases := []struct {
		name       string
		goal       string
		output     string
		wantPassed bool
	}{
		{"empty output fails", "fix the login bug", "", false},
		{"too short fails", "fix the login bug", "done.", false},
		{"keyword match passes", "investigate the login timeout issue",
			"The login timeout issue is caused by a stale session token that expires before refresh.", true},
		{"generic output still clears the floor", "investigate the login timeout issue",
			"Here is a reasonably detailed unrelated response that still clears the minimum length floor.", true},
	}
	for _, c := range cases {
		got := ValidateResult(c.goal, c.output)
		if got.Passed() != c.wantPassed {
			t.Errorf("%s: ValidateResult(%q, %q).Passed() = %v (score %v), want %v", c.name, c.goal, c.output, got.Passed(), got.Score, c.wantPassed)
		}
	}
}
