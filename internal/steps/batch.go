package steps

import (
	"sort"

	"github.com/aretw0/errand/pkg/domain"
)

// DefaultBatchCap is the largest number of steps run concurrently.
const DefaultBatchCap = 3

// BatchSize returns how many steps starting at cursor can run together:
// consecutive pending steps with the same tool name, at most limit. It is 0
// when the cursor is past the plan and 1 for a step that cannot batch.
//
// Only same-tool runs are treated as independent. Plans carry no declared
// dependencies, so anything broader would be a guess.
func BatchSize(plan domain.Plan, cursor, limit int) int {
	if cursor < 0 || cursor >= len(plan) {
		return 0
	}
	if limit < 1 {
		limit = 1
	}
	tool := plan[cursor].ToolName
	n := 1
	for i := cursor + 1; i < len(plan) && n < limit; i++ {
		if plan[i].ToolName != tool || plan[i].Status != domain.StepPending {
			break
		}
		n++
	}
	return n
}

// Merge writes results into a copy of plan at their original indexes.
// Results are applied in index order whatever order they arrive in.
func Merge(plan domain.Plan, results []Result) domain.Plan {
	out := plan.Clone()
	sorted := append([]Result(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	for _, r := range sorted {
		if r.Index >= 0 && r.Index < len(out) {
			out[r.Index] = r.Step
		}
	}
	return out
}
