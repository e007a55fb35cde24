package nodes

import (
	"context"
	"fmt"
	"maps"
	"sort"

	"github.com/aretw0/errand/internal/runtime"
	"github.com/aretw0/errand/internal/steps"
	"github.com/aretw0/errand/pkg/domain"
)

// Execution runs the step or batch at the cursor and advances the cursor
// past it in one jump. Failed steps are recorded and skipped; the node never
// stalls. Once the cursor reaches the end of the plan the phase becomes
// validation.
func Execution(d Deps, p Profile) runtime.NodeFunc {
	d = d.WithDefaults()
	return func(ctx context.Context, s *domain.AgentState) (domain.Update, error) {
		plan := s.ExecutionPlan
		cursor := s.CurrentStepIndex
		if cursor >= len(plan) {
			return domain.Update{Phase: domain.Ptr(domain.PhaseValidation)}, nil
		}

		n := steps.BatchSize(plan, cursor, d.Runner.Cap())
		jobs, results, err := prepare(s, steps.Jobs(plan[cursor:cursor+n], cursor))
		if err != nil {
			return domain.Update{}, err
		}

		switch {
		case len(jobs) > 1:
			results = append(results, d.Runner.RunBatch(ctx, s.TaskID, jobs)...)
		case len(jobs) == 1:
			results = append(results, d.Runner.Run(ctx, s.TaskID, jobs[0].Step, jobs[0].Index))
		}
		if err := ctx.Err(); err != nil {
			return domain.Update{}, err
		}
		sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

		next := cursor + n
		u := domain.Update{
			ExecutionPlan:    steps.Merge(plan, results),
			CurrentStepIndex: domain.Ptr(next),
			Phase:            domain.Ptr(domain.PhaseExecution),
		}
		if next >= len(plan) {
			u.Phase = domain.Ptr(domain.PhaseValidation)
		}

		if p.MergeResult == nil {
			return u, nil
		}
		for _, r := range results {
			if r.Failed() {
				continue
			}
			extra, err := p.MergeResult(r.Step)
			if err != nil {
				d.Logger.Warn("result not merged", "task_id", s.TaskID, "step", r.Step.ID, "tool", r.Step.ToolName, "err", err)
				continue
			}
			u = u.Merge(extra)
		}
		return u, nil
	}
}

// prepare resolves argument templates. Jobs whose templates cannot be
// resolved are returned as failed results instead of running.
func prepare(s *domain.AgentState, jobs []steps.Job) ([]steps.Job, []steps.Result, error) {
	var (
		data     map[string]any
		runnable = make([]steps.Job, 0, len(jobs))
		failed   []steps.Result
	)
	for _, job := range jobs {
		job.Step.ToolArgs = maps.Clone(job.Step.ToolArgs)
		if steps.HasPlaceholders(job.Step.ToolArgs) {
			if data == nil {
				var err error
				if data, err = steps.TemplateData(s); err != nil {
					return nil, nil, err
				}
			}
			args, err := steps.Expand(job.Step.ToolArgs, data)
			if err != nil {
				job.Step.Status = domain.StepFailed
				job.Step.Error = fmt.Sprintf("resolve arguments: %v", err)
				failed = append(failed, steps.Result{Index: job.Index, Step: job.Step})
				continue
			}
			job.Step.ToolArgs = args
		}
		runnable = append(runnable, job)
	}
	return runnable, failed, nil
}
