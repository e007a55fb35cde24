package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/errand/pkg/domain"
)

// TaskView is the read-only projection of a task and its checkpoint.
type TaskView struct {
	Task          *domain.Task        `json:"task"`
	Phase         domain.Phase        `json:"phase"`
	Progress      float64             `json:"progress"`
	GatheredInfo  domain.GatheredInfo `json:"gatheredInfo"`
	ExecutionPlan domain.Plan         `json:"executionPlan"`
	Steps         domain.StepCounts   `json:"steps"`
	UpdatedAt     time.Time           `json:"updatedAt,omitzero"`
}

// ProgressView is the compact progress projection.
type ProgressView struct {
	TaskID     string            `json:"taskId"`
	Status     domain.TaskStatus `json:"status"`
	Phase      domain.Phase      `json:"phase"`
	Progress   float64           `json:"progress"`
	StepIndex  int               `json:"stepIndex"`
	TotalSteps int               `json:"totalSteps"`
	Steps      domain.StepCounts `json:"steps"`
}

// Inspect returns the task record and its last checkpoint. A task that has
// not finished a turn yet reports the clarification phase.
func (o *Orchestrator) Inspect(ctx context.Context, taskID string) (*TaskView, error) {
	task, s, cp, err := o.snapshot(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &TaskView{
		Task:          task,
		Phase:         s.CurrentPhase,
		Progress:      cp.Progress,
		GatheredInfo:  s.GatheredInfo,
		ExecutionPlan: s.ExecutionPlan,
		Steps:         s.ExecutionPlan.Counts(),
		UpdatedAt:     cp.UpdatedAt,
	}, nil
}

// Progress returns where the task stands.
func (o *Orchestrator) Progress(ctx context.Context, taskID string) (*ProgressView, error) {
	task, s, cp, err := o.snapshot(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &ProgressView{
		TaskID:     task.ID,
		Status:     task.Status,
		Phase:      s.CurrentPhase,
		Progress:   cp.Progress,
		StepIndex:  s.CurrentStepIndex,
		TotalSteps: len(s.ExecutionPlan),
		Steps:      s.ExecutionPlan.Counts(),
	}, nil
}

func (o *Orchestrator) snapshot(ctx context.Context, taskID string) (*domain.Task, *domain.AgentState, domain.Checkpoint, error) {
	task, err := o.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, domain.Checkpoint{}, fmt.Errorf("get task %s: %w", taskID, err)
	}
	base := domain.NewAgentState(task.SessionID, task.ID, task.Type)

	cp, err := o.store.Load(ctx, taskID)
	if errors.Is(err, domain.ErrCheckpointNotFound) {
		return task, base, domain.Checkpoint{TaskID: taskID, Phase: domain.PhaseClarification}, nil
	}
	if err != nil {
		o.checkpointFailed("load")
		return nil, nil, domain.Checkpoint{}, fmt.Errorf("load checkpoint %s: %w", taskID, err)
	}
	s, err := domain.Restore(base, cp)
	if err != nil {
		return nil, nil, domain.Checkpoint{}, fmt.Errorf("restore task %s: %w", taskID, err)
	}
	return task, s, cp, nil
}
