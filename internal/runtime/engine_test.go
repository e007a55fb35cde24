package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/errand/internal/runtime"
	"github.com/aretw0/errand/pkg/adapters/memory"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func advance(to domain.Phase) runtime.NodeFunc {
	return func(ctx context.Context, s *domain.AgentState) (domain.Update, error) {
		return domain.Update{Phase: domain.Ptr(to)}, nil
	}
}

// linear builds clarification -> planning -> terminate.
func linear(t *testing.T, clarify runtime.NodeFunc, opts ...runtime.Option) *runtime.Machine {
	t.Helper()
	m, err := runtime.NewGraph().
		AddNode(domain.NodeClarification, clarify,
			runtime.StandardRoutes(runtime.InPhase(domain.PhasePlanning), domain.NodePlanning, domain.NodeClarification)...).
		AddNode(domain.NodePlanning, advance(domain.PhaseComplete),
			runtime.Otherwise(domain.Terminate)).
		Compile(domain.NodeClarification, opts...)
	require.NoError(t, err)
	return m
}

func TestMachine_ReentrantLoopThenAdvance(t *testing.T) {
	calls := 0
	m := linear(t, func(ctx context.Context, s *domain.AgentState) (domain.Update, error) {
		calls++
		if calls < 3 {
			return domain.Update{}, nil
		}
		return domain.Update{Phase: domain.Ptr(domain.PhasePlanning), HasSufficientInfo: domain.Ptr(true)}, nil
	})

	s := domain.NewAgentState("s", "t", domain.TaskGeneral)
	var visited []domain.NodeID
	err := m.Walk(context.Background(), s, m.Entry(), func(tr runtime.Transition) error {
		visited = append(visited, tr.Node)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []domain.NodeID{
		domain.NodeClarification, domain.NodeClarification, domain.NodeClarification, domain.NodePlanning,
	}, visited)
	assert.Equal(t, domain.PhaseComplete, s.CurrentPhase)
	assert.True(t, s.HasSufficientInfo)
}

func TestMachine_PauseTerminates(t *testing.T) {
	m := linear(t, func(ctx context.Context, s *domain.AgentState) (domain.Update, error) {
		return domain.Pause(domain.HumanInputRequest{Type: domain.InputClarification, Question: "Where?"}), nil
	})

	s := domain.NewAgentState("s", "t", domain.TaskGeneral)
	require.NoError(t, m.Run(context.Background(), s, m.Entry()))
	assert.True(t, s.Paused())
	assert.Equal(t, domain.PhaseClarification, s.CurrentPhase)
}

func TestMachine_ErrorPreemptsPauseAndAdvance(t *testing.T) {
	m := linear(t, func(ctx context.Context, s *domain.AgentState) (domain.Update, error) {
		u := domain.Pause(domain.HumanInputRequest{Type: domain.InputClarification, Question: "?"})
		u.Error = domain.Ptr("tool exploded")
		u.Phase = domain.Ptr(domain.PhasePlanning)
		return u, nil
	})

	s := domain.NewAgentState("s", "t", domain.TaskGeneral)
	var visited []domain.NodeID
	require.NoError(t, m.Walk(context.Background(), s, m.Entry(), func(tr runtime.Transition) error {
		visited = append(visited, tr.Node)
		assert.Equal(t, domain.Terminate, tr.Next)
		return nil
	}))
	assert.Equal(t, []domain.NodeID{domain.NodeClarification}, visited)
	assert.Equal(t, "tool exploded", s.Error)
}

func TestMachine_NodeFailuresBecomeTerminalState(t *testing.T) {
	tests := []struct {
		name string
		fn   runtime.NodeFunc
		want string
	}{
		{
			name: "error",
			fn: func(ctx context.Context, s *domain.AgentState) (domain.Update, error) {
				return domain.Update{}, errors.New("llm unavailable")
			},
			want: "llm unavailable",
		},
		{
			name: "panic",
			fn: func(ctx context.Context, s *domain.AgentState) (domain.Update, error) {
				var plan domain.Plan
				_ = plan[3]
				return domain.Update{}, nil
			},
			want: "node panicked",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := linear(t, tt.fn)
			s := domain.NewAgentState("s", "t", domain.TaskGeneral)

			require.NoError(t, m.Run(context.Background(), s, m.Entry()))
			assert.Equal(t, domain.PhaseError, s.CurrentPhase)
			assert.Contains(t, s.Error, tt.want)
			assert.False(t, s.Paused())
		})
	}
}

func TestMachine_StepLimit(t *testing.T) {
	m := linear(t, func(ctx context.Context, s *domain.AgentState) (domain.Update, error) {
		return domain.Update{}, nil
	}, runtime.WithMaxSteps(5))

	s := domain.NewAgentState("s", "t", domain.TaskGeneral)
	require.NoError(t, m.Run(context.Background(), s, m.Entry()))
	assert.Equal(t, domain.PhaseError, s.CurrentPhase)
	assert.Contains(t, s.Error, "step limit of 5")
}

func TestMachine_NodesReceiveACopy(t *testing.T) {
	m := linear(t, func(ctx context.Context, s *domain.AgentState) (domain.Update, error) {
		s.GatheredInfo.Query = "mutated"
		s.CurrentPhase = domain.PhaseComplete
		return domain.Pause(domain.HumanInputRequest{Type: domain.InputText, Question: "?"}), nil
	})

	s := domain.NewAgentState("s", "t", domain.TaskGeneral)
	require.NoError(t, m.Run(context.Background(), s, m.Entry()))
	assert.Empty(t, s.GatheredInfo.Query)
	assert.Equal(t, domain.PhaseClarification, s.CurrentPhase)
}

func TestMachine_CanceledContextLeavesStateUntouched(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := linear(t, func(ctx context.Context, s *domain.AgentState) (domain.Update, error) {
		cancel()
		return domain.Update{Phase: domain.Ptr(domain.PhasePlanning)}, ctx.Err()
	})

	s := domain.NewAgentState("s", "t", domain.TaskGeneral)
	err := m.Run(ctx, s, m.Entry())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.PhaseClarification, s.CurrentPhase)
	assert.Empty(t, s.Error)
}

func TestMachine_LifecycleHooks(t *testing.T) {
	var entered, left []domain.NodeID
	hooks := domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) { entered = append(entered, e.Node) },
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) { left = append(left, e.Node) },
	}
	m := linear(t, advance(domain.PhasePlanning), runtime.WithLifecycleHooks(hooks))

	s := domain.NewAgentState("s", "t", domain.TaskGeneral)
	require.NoError(t, m.Run(context.Background(), s, m.Entry()))
	want := []domain.NodeID{domain.NodeClarification, domain.NodePlanning}
	assert.Equal(t, want, entered)
	assert.Equal(t, want, left)
}

func TestMachine_CheckpointerSnapshots(t *testing.T) {
	store := memory.NewStore()
	m := linear(t, advance(domain.PhasePlanning), runtime.WithCheckpointer(store))

	s := domain.NewAgentState("s", "task-9", domain.TaskGeneral)
	require.NoError(t, m.Run(context.Background(), s, m.Entry()))

	cp, err := m.Snapshot(context.Background(), "task-9")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseComplete, cp.Phase)
	assert.Equal(t, 100.0, cp.Progress)

	bare := linear(t, advance(domain.PhasePlanning))
	_, err = bare.Snapshot(context.Background(), "task-9")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
}

func TestMachine_EntryFor(t *testing.T) {
	m := linear(t, advance(domain.PhasePlanning))

	assert.Equal(t, domain.NodePlanning, m.EntryFor(domain.PhasePlanning))
	assert.Equal(t, domain.NodeClarification, m.EntryFor(domain.PhaseClarification))
	assert.Equal(t, domain.NodeClarification, m.EntryFor(domain.PhaseError))
	assert.Equal(t, domain.NodeClarification, m.EntryFor(domain.PhaseComplete))
	assert.Equal(t, domain.NodeClarification, m.EntryFor(domain.PhaseBooking), "no booking node")
}

func TestCompile_Validation(t *testing.T) {
	noop := advance(domain.PhasePlanning)
	tests := []struct {
		name  string
		graph *runtime.Graph
		entry domain.NodeID
		want  string
	}{
		{
			name:  "missing fallback",
			graph: runtime.NewGraph().AddNode(domain.NodeClarification, noop, runtime.Rule{When: runtime.HasError, To: domain.Terminate}),
			entry: domain.NodeClarification,
			want:  "unconditional rule",
		},
		{
			name:  "undefined target",
			graph: runtime.NewGraph().AddNode(domain.NodeClarification, noop, runtime.Otherwise(domain.NodeBooking)),
			entry: domain.NodeClarification,
			want:  "undefined node booking",
		},
		{
			name:  "undefined entry",
			graph: runtime.NewGraph().AddNode(domain.NodeClarification, noop, runtime.Otherwise(domain.Terminate)),
			entry: domain.NodePlanning,
			want:  "entry node planning",
		},
		{
			name: "duplicate",
			graph: runtime.NewGraph().
				AddNode(domain.NodeClarification, noop, runtime.Otherwise(domain.Terminate)).
				AddNode(domain.NodeClarification, noop, runtime.Otherwise(domain.Terminate)),
			entry: domain.NodeClarification,
			want:  "registered twice",
		},
		{
			name:  "nil transform",
			graph: runtime.NewGraph().AddNode(domain.NodeClarification, nil, runtime.Otherwise(domain.Terminate)),
			entry: domain.NodeClarification,
			want:  "no transform",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.graph.Compile(tt.entry)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMachine_NodesAndEdges(t *testing.T) {
	m := linear(t, advance(domain.PhasePlanning))

	assert.Equal(t, []domain.NodeID{domain.NodeClarification, domain.NodePlanning}, m.Nodes())
	assert.Equal(t, []runtime.Edge{
		{From: domain.NodeClarification, To: domain.Terminate, Conditional: true},
		{From: domain.NodeClarification, To: domain.NodePlanning, Conditional: true},
		{From: domain.NodeClarification, To: domain.NodeClarification},
		{From: domain.NodePlanning, To: domain.Terminate},
	}, m.Edges())
}
