package nodes_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/errand/internal/nodes"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecution_BatchWithOneFailure(t *testing.T) {
	reg := registry.New()
	reg.MustRegister(domain.Tool{Name: "web_search"}, func(ctx context.Context, args map[string]any) (any, error) {
		if args["query"] == "b" {
			return nil, errors.New("search timed out")
		}
		return []any{"result for " + args["query"].(string)}, nil
	})
	node := nodes.Execution(testDeps(t, &scriptedLLM{}, reg), testProfile())

	s := domain.NewAgentState("s", "t", domain.TaskGeneral)
	s.CurrentPhase = domain.PhaseExecution
	s.ExecutionPlan = domain.Plan{
		{ID: "1", ToolName: "web_search", ToolArgs: map[string]any{"query": "a"}, Status: domain.StepPending},
		{ID: "2", ToolName: "web_search", ToolArgs: map[string]any{"query": "b"}, Status: domain.StepPending},
		{ID: "3", ToolName: "web_search", ToolArgs: map[string]any{"query": "c"}, Status: domain.StepPending},
	}

	u, err := node(context.Background(), s)
	require.NoError(t, err)
	got := apply(s, u)

	assert.Equal(t, 3, got.CurrentStepIndex)
	assert.Equal(t, domain.PhaseValidation, got.CurrentPhase)
	assert.Equal(t, []string{"1", "2", "3"}, []string{got.ExecutionPlan[0].ID, got.ExecutionPlan[1].ID, got.ExecutionPlan[2].ID})
	assert.Equal(t, domain.StepCompleted, got.ExecutionPlan[0].Status)
	assert.Equal(t, domain.StepFailed, got.ExecutionPlan[1].Status)
	assert.Equal(t, "search timed out", got.ExecutionPlan[1].Error)
	assert.Equal(t, domain.StepCompleted, got.ExecutionPlan[2].Status)
}

func TestExecution_SingleStepAdvancesByOne(t *testing.T) {
	reg := registry.New()
	reg.MustRegister(domain.Tool{Name: "geocode"}, func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{"lat": 38.7, "lng": -9.1}, nil
	})
	node := nodes.Execution(testDeps(t, &scriptedLLM{}, reg), testProfile())

	s := domain.NewAgentState("s", "t", domain.TaskGeneral)
	s.ExecutionPlan = domain.Plan{
		{ID: "1", ToolName: "geocode", Status: domain.StepPending},
		{ID: "2", ToolName: "missing_tool", Status: domain.StepPending},
	}

	u, err := node(context.Background(), s)
	require.NoError(t, err)
	got := apply(s, u)
	assert.Equal(t, 1, got.CurrentStepIndex)
	assert.Equal(t, domain.PhaseExecution, got.CurrentPhase)

	u, err = node(context.Background(), got)
	require.NoError(t, err)
	got = apply(got, u)
	assert.Equal(t, 2, got.CurrentStepIndex)
	assert.Equal(t, domain.StepFailed, got.ExecutionPlan[1].Status)
	assert.Contains(t, got.ExecutionPlan[1].Error, "missing_tool")
	assert.Equal(t, domain.PhaseValidation, got.CurrentPhase)
}

func TestExecution_TemplatesAndResultMerge(t *testing.T) {
	reg := registry.New()
	var dialed []string
	reg.MustRegister(domain.Tool{Name: "phone_call"}, func(ctx context.Context, args map[string]any) (any, error) {
		dialed = append(dialed, args["phone"].(string))
		return map[string]any{"pharmacyId": args["pharmacyId"], "inStock": true}, nil
	})

	p := testProfile()
	p.MergeResult = func(step domain.ExecutionStep) (domain.Update, error) {
		res := step.Result.(map[string]any)
		return domain.Update{CallResults: []domain.CallResult{{PharmacyID: res["pharmacyId"].(string), InStock: true}}}, nil
	}
	d := testDeps(t, &scriptedLLM{}, reg)
	node := nodes.Execution(d, p)

	s := domain.NewAgentState("s", "t", domain.TaskMedicine)
	s.Pharmacies = []domain.Pharmacy{{ID: "p1", Phone: "555-1"}}
	s.ExecutionPlan = domain.Plan{
		{ID: "1", ToolName: "phone_call", ToolArgs: map[string]any{"phone": "{{pharmacies.0.phone}}", "pharmacyId": "{{pharmacies.0.id}}"}, Status: domain.StepPending},
		{ID: "2", ToolName: "phone_call", ToolArgs: map[string]any{"phone": "{{pharmacies.1.phone}}", "pharmacyId": "{{pharmacies.1.id}}"}, Status: domain.StepPending},
	}

	u, err := node(context.Background(), s)
	require.NoError(t, err)
	got := apply(s, u)

	assert.Equal(t, []string{"555-1"}, dialed)
	assert.Equal(t, domain.StepCompleted, got.ExecutionPlan[0].Status)
	assert.Equal(t, "555-1", got.ExecutionPlan[0].ToolArgs["phone"])
	assert.Equal(t, domain.StepFailed, got.ExecutionPlan[1].Status)
	assert.Contains(t, got.ExecutionPlan[1].Error, "resolve arguments")
	assert.Equal(t, 2, got.CurrentStepIndex)
	require.Len(t, got.CallResults, 1)
	assert.Equal(t, "p1", got.CallResults[0].PharmacyID)
	assert.Equal(t, "{{pharmacies.0.phone}}", s.ExecutionPlan[0].ToolArgs["phone"], "input state untouched")
}

func TestExecution_PastEndRoutesToValidation(t *testing.T) {
	node := nodes.Execution(testDeps(t, &scriptedLLM{}, nil), testProfile())
	s := domain.NewAgentState("s", "t", domain.TaskGeneral)
	s.ExecutionPlan = domain.Plan{{ID: "1", ToolName: "x", Status: domain.StepCompleted}}
	s.CurrentStepIndex = 1

	u, err := node(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseValidation, *u.Phase)
}

func TestExecution_CanceledContext(t *testing.T) {
	reg := registry.New()
	reg.MustRegister(domain.Tool{Name: "web_search"}, func(ctx context.Context, args map[string]any) (any, error) {
		return nil, ctx.Err()
	})
	node := nodes.Execution(testDeps(t, &scriptedLLM{}, reg), testProfile())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := domain.NewAgentState("s", "t", domain.TaskGeneral)
	s.ExecutionPlan = domain.Plan{{ID: "1", ToolName: "web_search", Status: domain.StepPending}}

	_, err := node(ctx, s)
	assert.ErrorIs(t, err, context.Canceled)
}
