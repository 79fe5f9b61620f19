package conductor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"taskmesh/internal/model"
)

func TestIsSimpleOneShot(t *testing.T) {
	cases := []struct {
		goal string
		want bool
	}{
		{"run go test ./...", true},
		{"build the docker image", true},
		{"fix main.go", true},
		{"investigate why the build is failing and then fix the tests", false},
		{"do something", false},
		{"deploy the service and notify the team", false},
	}
	for _, c := range cases {
		require.Equal(t, c.want, IsSimpleOneShot(c.goal), "goal=%q", c.goal)
	}
}

func TestShouldFanOut(t *testing.T) {
	require.False(t, ShouldFanOut("run go test ./...", model.CategoryCoding))
	require.True(t, ShouldFanOut("refactor the billing module to support multiple currencies", model.CategoryCoding))
	require.False(t, ShouldFanOut("run go test ./...", model.CategoryGreeting))
}

func TestSelectStrategy(t *testing.T) {
	d := SelectStrategy("hello", model.CategoryGreeting, false)
	require.Equal(t, model.StrategyQuick, d.Choice)

	d = SelectStrategy("anything", model.CategoryInvestigate, true)
	require.Equal(t, model.StrategyNeedClarify, d.Choice)

	d = SelectStrategy("refactor the billing module for multi-currency support", model.CategoryCoding, false)
	require.Equal(t, model.StrategyDeep, d.Choice)

	d = SelectStrategy("run go test ./...", model.CategoryCoding, false)
	require.Equal(t, model.StrategyQuick, d.Choice)
}
