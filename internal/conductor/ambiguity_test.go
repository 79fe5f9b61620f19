package conductor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"taskmesh/internal/model"
)

func TestIsAmbiguous(t *testing.T) {
	require.True(t, IsAmbiguous("fix it", model.CategoryInvestigate))
	require.True(t, IsAmbiguous("do something", model.CategoryInvestigate))
	require.False(t, IsAmbiguous("run the full integration test suite against staging", model.CategoryMultiStep))
	require.True(t, IsAmbiguous("do it", model.CategoryInvestigate))
}

func TestAmbiguityScoreMultiStepShortGoal(t *testing.T) {
	require.GreaterOrEqual(t, ambiguityScore("fix the bug", model.CategoryMultiStep), 1)
}
