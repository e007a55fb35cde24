package steps_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/errand/internal/steps"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchSteps(n int) domain.Plan {
	plan := make(domain.Plan, n)
	for i := range plan {
		plan[i] = domain.ExecutionStep{
			ID:       fmt.Sprintf("s%d", i),
			Name:     fmt.Sprintf("search %d", i),
			ToolName: "web_search",
			ToolArgs: map[string]any{"query": fmt.Sprintf("q%d", i)},
			Status:   domain.StepPending,
		}
	}
	return plan
}

func TestBatchSize(t *testing.T) {
	plan := domain.Plan{
		{ToolName: "web_search", Status: domain.StepPending},
		{ToolName: "web_search", Status: domain.StepPending},
		{ToolName: "web_search", Status: domain.StepPending},
		{ToolName: "web_search", Status: domain.StepPending},
		{ToolName: "geocode", Status: domain.StepPending},
		{ToolName: "web_search", Status: domain.StepPending},
		{ToolName: "web_search", Status: domain.StepCompleted},
	}
	tests := []struct {
		cursor, limit, want int
	}{
		{0, 3, 3},
		{1, 3, 3},
		{2, 3, 2},
		{3, 3, 1},
		{4, 3, 1},
		{5, 3, 1},
		{0, 10, 4},
		{0, 0, 1},
		{7, 3, 0},
		{-1, 3, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, steps.BatchSize(plan, tt.cursor, tt.limit), "cursor %d limit %d", tt.cursor, tt.limit)
	}
}

func TestRunBatch_OneFailureDoesNotAbortSiblings(t *testing.T) {
	reg := registry.New()
	reg.MustRegister(domain.Tool{Name: "web_search"}, func(ctx context.Context, args map[string]any) (any, error) {
		if args["query"] == "q1" {
			return nil, errors.New("search backend down")
		}
		return map[string]any{"results": []any{args["query"]}}, nil
	})

	runner := steps.NewRunner(reg)
	plan := searchSteps(3)
	results := runner.RunBatch(context.Background(), "t", steps.Jobs(plan, 0))

	require.Len(t, results, 3)
	assert.Equal(t, domain.StepCompleted, results[0].Step.Status)
	assert.Equal(t, domain.StepFailed, results[1].Step.Status)
	assert.Equal(t, "search backend down", results[1].Step.Error)
	assert.Equal(t, domain.StepCompleted, results[2].Step.Status)

	merged := steps.Merge(plan, results)
	assert.Equal(t, []string{"s0", "s1", "s2"}, []string{merged[0].ID, merged[1].ID, merged[2].ID})
	assert.Equal(t, domain.StepPending, plan[1].Status, "input plan is not mutated")
}

func TestRunBatch_MergeOrderIgnoresCompletionOrder(t *testing.T) {
	var (
		mu       sync.Mutex
		finished []string
	)
	exec := executorFunc(func(ctx context.Context, name string, args map[string]any) (any, error) {
		q := args["query"].(string)
		// Later steps finish first.
		delay := map[string]time.Duration{"q0": 60 * time.Millisecond, "q1": 30 * time.Millisecond, "q2": 0}[q]
		time.Sleep(delay)
		mu.Lock()
		finished = append(finished, q)
		mu.Unlock()
		return q, nil
	})

	plan := searchSteps(3)
	results := steps.NewRunner(exec).RunBatch(context.Background(), "t", steps.Jobs(plan, 4))

	assert.Equal(t, []string{"q2", "q1", "q0"}, finished)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, 4+i, r.Index)
		assert.Equal(t, fmt.Sprintf("q%d", i), r.Step.Result)
	}
}

func TestRunBatch_WorkerPoolIsBounded(t *testing.T) {
	var inFlight, peak atomic.Int32
	exec := executorFunc(func(ctx context.Context, name string, args map[string]any) (any, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return "ok", nil
	})

	var batches []int
	runner := steps.NewRunner(exec, steps.WithBatchCap(2), steps.WithBatchObserver(func(n int) { batches = append(batches, n) }))
	results := runner.RunBatch(context.Background(), "t", steps.Jobs(searchSteps(5), 0))

	require.Len(t, results, 5)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, []int{5}, batches)
	assert.Equal(t, 2, runner.Cap())
}

func TestRun_ToolFailureModes(t *testing.T) {
	tests := []struct {
		name string
		fn   func(ctx context.Context, args map[string]any) (any, error)
		want string
	}{
		{
			name: "error payload",
			fn: func(ctx context.Context, args map[string]any) (any, error) {
				return domain.ToolErrorPayload{Error: "no stock data"}, nil
			},
			want: "no stock data",
		},
		{
			name: "success false",
			fn: func(ctx context.Context, args map[string]any) (any, error) {
				return map[string]any{"success": false}, nil
			},
			want: "tool reported failure",
		},
		{
			name: "panic",
			fn: func(ctx context.Context, args map[string]any) (any, error) {
				panic("nil map")
			},
			want: "panicked",
		},
		{
			name: "timeout",
			fn: func(ctx context.Context, args map[string]any) (any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			want: "timed out",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := registry.New()
			reg.MustRegister(domain.Tool{Name: "web_search"}, tt.fn)
			runner := steps.NewRunner(reg, steps.WithToolTimeout(20*time.Millisecond))

			res := runner.Run(context.Background(), "t", searchSteps(1)[0], 0)
			assert.True(t, res.Failed())
			assert.Contains(t, res.Step.Error, tt.want)
		})
	}
}

func TestRun_UnknownTool(t *testing.T) {
	runner := steps.NewRunner(registry.New())
	res := runner.Run(context.Background(), "t", domain.ExecutionStep{ID: "x", ToolName: "teleport"}, 2)
	assert.True(t, res.Failed())
	assert.Equal(t, 2, res.Index)
	assert.Contains(t, res.Step.Error, "teleport")
}

func TestRun_Hooks(t *testing.T) {
	var events []domain.EventType
	var mu sync.Mutex
	record := func(ctx context.Context, e *domain.ToolEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e.Type)
	}
	reg := registry.New()
	reg.MustRegister(domain.Tool{Name: "web_search"}, func(ctx context.Context, args map[string]any) (any, error) {
		return "ok", nil
	})
	runner := steps.NewRunner(reg, steps.WithLifecycleHooks(domain.LifecycleHooks{OnToolCall: record, OnToolReturn: record}))

	runner.Run(context.Background(), "t", searchSteps(1)[0], 0)
	assert.Equal(t, []domain.EventType{domain.EventToolCall, domain.EventToolReturn}, events)
}

func TestErrorPayload(t *testing.T) {
	ok := true
	cases := []struct {
		in     any
		failed bool
	}{
		{map[string]any{"error": "x"}, true},
		{map[string]any{"error": "x", "success": true}, false},
		{map[string]any{"results": []any{}}, false},
		{&domain.ToolErrorPayload{Error: "y"}, true},
		{domain.ToolErrorPayload{Success: &ok}, false},
		{"plain", false},
		{nil, false},
	}
	for _, c := range cases {
		_, failed := steps.ErrorPayload(c.in)
		assert.Equal(t, c.failed, failed, "%#v", c.in)
	}
}

type executorFunc func(ctx context.Context, name string, args map[string]any) (any, error)

func (f executorFunc) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	return f(ctx, name, args)
}
