package domain

import "maps"

// StepStatus tracks an ExecutionStep through execution.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// ExecutionStep is one tool invocation in a plan. Steps are created in bulk
// by planning and mutated in place by execution; they are never reordered.
type ExecutionStep struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	ToolName    string         `json:"toolName"`
	ToolArgs    map[string]any `json:"toolArgs,omitempty"`
	Status      StepStatus     `json:"status"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Plan is the ordered list of steps for a task.
type Plan []ExecutionStep

// Clone copies the plan and each step's argument map.
func (p Plan) Clone() Plan {
	if p == nil {
		return nil
	}
	out := make(Plan, len(p))
	for i, s := range p {
		s.ToolArgs = maps.Clone(s.ToolArgs)
		out[i] = s
	}
	return out
}

// StepCounts summarises step statuses.
type StepCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Counts tallies the plan by status.
func (p Plan) Counts() StepCounts {
	c := StepCounts{Total: len(p)}
	for _, s := range p {
		switch s.Status {
		case StepCompleted:
			c.Completed++
		case StepFailed:
			c.Failed++
		case StepInProgress:
			c.InProgress++
		default:
			c.Pending++
		}
	}
	return c
}

// NextPending returns the index of the first step not yet run, or len(p).
func (p Plan) NextPending() int {
	for i, s := range p {
		if s.Status == StepPending || s.Status == "" {
			return i
		}
	}
	return len(p)
}
