package nodes_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aretw0/errand/internal/nodes"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/llm"
	"github.com/aretw0/errand/pkg/registry"
)

// scriptedLLM answers by request name and records every call.
type scriptedLLM struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   []string
}

func (f *scriptedLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.Name)
	if err := f.errs[req.Name]; err != nil {
		return "", err
	}
	reply, ok := f.replies[req.Name]
	if !ok {
		return "", fmt.Errorf("unexpected call %q", req.Name)
	}
	return reply, nil
}

func (f *scriptedLLM) called(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func testProfile() nodes.Profile {
	return nodes.Profile{
		TaskType: domain.TaskMedicine,
		Persona:  "You help people find medicine nearby.",
		Fields: []nodes.Field{
			{Key: "medicineName", Description: "Which medicine you need"},
			{Key: "location", Description: "Where you are"},
		},
		Required:           []string{"medicineName", "location"},
		AfterClarification: domain.PhasePlanning,
		AfterValidation:    domain.PhaseComplete,
		DefaultPlan: func(s *domain.AgentState) domain.Plan {
			return domain.Plan{{Name: "Search", ToolName: "web_search", ToolArgs: map[string]any{"query": s.GatheredInfo.MedicineName}}}
		},
	}
}

func testDeps(t *testing.T, fake *scriptedLLM, reg *registry.Registry) nodes.Deps {
	t.Helper()
	if reg == nil {
		reg = registry.New()
	}
	n := 0
	return nodes.Deps{
		LLM:      fake,
		Registry: reg,
		NewID: func() string {
			n++
			return fmt.Sprintf("step-%d", n)
		},
	}
}

func apply(s *domain.AgentState, u domain.Update) *domain.AgentState {
	out := s.Clone()
	out.Apply(u)
	return out
}
