package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"taskmesh/internal/model"
)

func TestAssignPendingPicksBestExpertAndSetsFamily(t *testing.T) {
	t1 := model.Task{ID: "t1", Status: model.StatusPending, Metadata: model.TaskMetadata{ParentTaskID: "engineering"}}
	tasks := newFakeTaskStore(t1)
	experts := newFakeExpertStore(
		model.Expert{Name: "alice", Department: "engineering", Workload: 5, SuccessRate: 0.9},
		model.Expert{Name: "bob", Department: "engineering", Workload: 0, SuccessRate: 0.5},
		model.Expert{Name: "carol", Department: "support", Workload: 0, SuccessRate: 0.9},
	)

	err := AssignPending(context.Background(), tasks, experts, DefaultAssignmentWeights(), []model.Task{t1})
	require.NoError(t, err)

	got, ok, err := tasks.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, got.Assignee)
	require.Equal(t, model.FamilyHeavy, got.Metadata.PreferredFamily)

	roster, err := experts.List(context.Background())
	require.NoError(t, err)
	var assigned model.Expert
	for _, e := range roster {
		if e.Name == got.Assignee {
			assigned = e
		}
	}
	require.Equal(t, 1, assigned.Workload-mustFindOriginalWorkload(got.Assignee))
}

// mustFindOriginalWorkload returns the workload each seeded expert started
// with, so the assertion above only checks the +1 delta AssignPending
// applies via UpsertWorkload.
func mustFindOriginalWorkload(name string) int {
	switch name {
	case "alice":
		return 5
	case "bob":
		return 0
	case "carol":
		return 0
	default:
		return 0
	}
}

func TestAssignPendingSkipsAlreadyAssignedTasks(t *testing.T) {
	t1 := model.Task{ID: "t1", Status: model.StatusPending, Assignee: "direct"}
	tasks := newFakeTaskStore(t1)
	experts := newFakeExpertStore(model.Expert{Name: "alice", Department: "engineering"})

	err := AssignPending(context.Background(), tasks, experts, DefaultAssignmentWeights(), []model.Task{t1})
	require.NoError(t, err)

	got, _, _ := tasks.Get(context.Background(), "t1")
	require.Equal(t, "direct", got.Assignee)
}

func TestAssignPendingFallsBackToDirectWithNoRoster(t *testing.T) {
	t1 := model.Task{ID: "t1", Status: model.StatusPending}
	tasks := newFakeTaskStore(t1)
	experts := newFakeExpertStore()

	err := AssignPending(context.Background(), tasks, experts, DefaultAssignmentWeights(), []model.Task{t1})
	require.NoError(t, err)

	got, _, _ := tasks.Get(context.Background(), "t1")
	require.Equal(t, model.DirectAssignee, got.Assignee)
	require.Equal(t, model.FamilyFast, got.Metadata.PreferredFamily)
}
