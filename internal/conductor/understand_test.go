package conductor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"taskmesh/internal/model"
)

func TestClassifyHeuristically(t *testing.T) {
	cat, ok := classifyHeuristically("hello there")
	require.True(t, ok)
	require.Equal(t, model.CategoryGreeting, cat)

	cat, ok = classifyHeuristically("what can you do?")
	require.True(t, ok)
	require.Equal(t, model.CategoryWhatCanYouDo, cat)

	_, ok = classifyHeuristically("refactor the billing module")
	require.False(t, ok)
}
