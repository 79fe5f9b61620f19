package executor

import (
	"context"
	"sort"

	"taskmesh/internal/model"
	"taskmesh/internal/persistence/databases"
)

// AssignmentWeights are the w1/w2/w3 coefficients in spec.md §4.2's
// composite score: score = w1·domainFit − w2·workload + w3·successRate.
type AssignmentWeights struct {
	DomainFit   float64
	Workload    float64
	SuccessRate float64
}

func DefaultAssignmentWeights() AssignmentWeights {
	return AssignmentWeights{DomainFit: 1.0, Workload: 0.05, SuccessRate: 0.5}
}

// departmentFamily is the fixed department→backend-family mapping spec.md
// §4.2 names ("preferred_source"). No teacher source specifies exact
// department names, so this is an Open Question decision (recorded in
// DESIGN.md): coding/ops-heavy departments prefer the heavy family,
// everything else defaults to fast.
var departmentFamily = map[string]model.BackendFamily{
	"engineering": model.FamilyHeavy,
	"research":    model.FamilyHeavy,
	"support":     model.FamilyFast,
	"general":     model.FamilyFast,
}

func preferredFamilyFor(department string) model.BackendFamily {
	if f, ok := departmentFamily[department]; ok {
		return f
	}
	return model.FamilyFast
}

// score computes spec.md §4.2's composite assignment score.
func score(w AssignmentWeights, e model.Expert, taskDepartment string) float64 {
	return w.DomainFit*e.DomainFit(taskDepartment) - w.Workload*float64(e.Workload) + w.SuccessRate*e.SuccessRate
}

// bestExpert picks the highest-scoring expert for taskDepartment, breaking
// ties by lexicographic name per spec.md §4.2.
func bestExpert(w AssignmentWeights, experts []model.Expert, taskDepartment string) (model.Expert, bool) {
	if len(experts) == 0 {
		return model.Expert{}, false
	}
	sort.Slice(experts, func(i, j int) bool { return experts[i].Name < experts[j].Name })
	best := experts[0]
	bestScore := score(w, best, taskDepartment)
	for _, e := range experts[1:] {
		s := score(w, e, taskDepartment)
		if s > bestScore {
			best, bestScore = e, s
		}
	}
	return best, true
}

// AssignPending scans pending/unassigned tasks and assigns each to the
// best-scoring expert for its department, writing preferred_source from
// the fixed department→family mapping. Assignment is idempotent: the
// conditional write only sets the assignee while it is still unset, and the
// expert's workload is counted only when it did, so concurrent passes never
// double-assign.
func AssignPending(ctx context.Context, tasks databases.TaskStore, experts databases.ExpertStore, weights AssignmentWeights, pending []model.Task) error {
	roster, err := experts.List(ctx)
	if err != nil {
		return err
	}
	for _, t := range pending {
		if t.Assignee != "" {
			continue
		}
		expert, ok := bestExpert(weights, roster, t.Metadata.ParentTaskID)
		if !ok {
			expert = model.Expert{Name: model.DirectAssignee}
		}
		family := preferredFamilyFor(expert.Department)
		assigned := false
		ok2, err := tasks.CompareAndTransition(ctx, t.ID, t.Status, model.TaskTransition{
			TaskID: t.ID, FromStatus: t.Status, ToStatus: t.Status, Reason: "assigned",
		}, func(task *model.Task) {
			if task.Assignee != "" {
				return
			}
			task.Assignee = expert.Name
			task.Metadata.PreferredFamily = family
			assigned = true
		})
		if err != nil {
			return err
		}
		if ok2 && assigned {
			_ = experts.UpsertWorkload(ctx, expert.Name, 1)
		}
	}
	return nil
}
