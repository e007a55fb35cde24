package nodes

import (
	"context"
	"strings"

	"github.com/aretw0/errand/internal/runtime"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/llm"
	"github.com/aretw0/errand/pkg/llm/parse"
)

type plannedStep struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	ToolName    string         `json:"toolName"`
	ToolArgs    map[string]any `json:"toolArgs"`
}

type planResponse struct {
	Steps []plannedStep `json:"steps"`
}

// Planning asks the model for steps over the task type's tools. New steps
// are appended after any already in the plan, so a re-plan never moves the
// cursor back or drops a step. An unusable plan degrades to the profile's
// default plan.
func Planning(d Deps, p Profile) runtime.NodeFunc {
	d = d.WithDefaults()
	return func(ctx context.Context, s *domain.AgentState) (domain.Update, error) {
		tools := d.Registry.ToolsFor(p.TaskType)

		text, err := d.LLM.Complete(ctx, llm.Request{
			Name:   "plan",
			System: planSystem,
			Prompt: planPrompt(p, s, tools),
			JSON:   true,
		})
		if err != nil {
			if ctx.Err() != nil {
				return domain.Update{}, err
			}
			d.Logger.Warn("planning call failed, using default plan", "task_id", s.TaskID, "err", err)
		}

		added := d.toSteps(parsePlan(text))
		if len(added) == 0 && p.DefaultPlan != nil {
			d.Logger.Info("plan unusable, using default plan", "task_id", s.TaskID)
			added = d.normalize(p.DefaultPlan(s))
		}
		if len(added) == 0 {
			return domain.Fail("no plan could be built for this request"), nil
		}

		plan := append(s.ExecutionPlan.Clone(), added...)
		return domain.Update{
			Phase:            domain.Ptr(domain.PhaseExecution),
			ExecutionPlan:    plan,
			RefinementReason: domain.Ptr(""),
		}, nil
	}
}

// parsePlan accepts {"steps": [...]} or a bare array of steps.
func parsePlan(text string) []plannedStep {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var wrapped planResponse
	if _, err := parse.JSON(text, &wrapped); err == nil && len(wrapped.Steps) > 0 {
		return wrapped.Steps
	}
	var bare []plannedStep
	if _, err := parse.JSON(text, &bare); err == nil {
		return bare
	}
	return nil
}

func (d Deps) toSteps(planned []plannedStep) domain.Plan {
	out := make(domain.Plan, 0, len(planned))
	for _, ps := range planned {
		tool := strings.TrimSpace(ps.ToolName)
		if tool == "" {
			continue
		}
		out = append(out, domain.ExecutionStep{
			Name:        ps.Name,
			Description: ps.Description,
			ToolName:    tool,
			ToolArgs:    ps.ToolArgs,
		})
	}
	return d.normalize(out)
}

// normalize assigns ids and resets status on freshly planned steps.
func (d Deps) normalize(plan domain.Plan) domain.Plan {
	out := plan.Clone()
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = d.NewID()
		}
		if out[i].Name == "" {
			out[i].Name = out[i].ToolName
		}
		if out[i].ToolArgs == nil {
			out[i].ToolArgs = map[string]any{}
		}
		out[i].Status = domain.StepPending
		out[i].Result = nil
		out[i].Error = ""
	}
	return out
}
