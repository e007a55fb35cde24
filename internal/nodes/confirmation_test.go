package nodes_test

import (
	"context"
	"testing"

	"github.com/aretw0/errand/internal/nodes"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyFeedback(t *testing.T) {
	tests := map[string]nodes.Decision{
		"Confirm":                           nodes.DecisionAccept,
		"Request changes":                   nodes.DecisionChanges,
		"Looks good!":                       nodes.DecisionAccept,
		"yes, book it":                      nodes.DecisionAccept,
		"perfect":                           nodes.DecisionAccept,
		"Yes but change the hotel":          nodes.DecisionChanges,
		"Can we do something cheaper?":      nodes.DecisionChanges,
		"I'd rather visit museums on day 2": nodes.DecisionChanges,
		"hmm":                               nodes.DecisionChanges,
	}
	for in, want := range tests {
		assert.Equal(t, want, nodes.ClassifyFeedback(in), in)
	}
}

func travelProfile() nodes.Profile {
	p := testProfile()
	p.TaskType = domain.TaskTravel
	p.Summarize = func(s *domain.AgentState) string { return "3 days in Rome" }
	p.AcceptPhase = func(s *domain.AgentState) domain.Phase { return domain.PhaseBooking }
	return p
}

func TestConfirmation_PresentsOnFirstEntry(t *testing.T) {
	node := nodes.Confirmation(testDeps(t, &scriptedLLM{}, nil), travelProfile())

	s := domain.NewAgentState("s", "t", domain.TaskTravel)
	s.CurrentPhase = domain.PhaseConfirmation
	u, err := node(context.Background(), s)
	require.NoError(t, err)

	got := apply(s, u)
	require.True(t, got.Paused())
	assert.Equal(t, domain.InputConfirmation, got.HumanInputRequest.Type)
	assert.Equal(t, []string{domain.OptionConfirm, domain.OptionRequestChanges}, got.HumanInputRequest.Options)
	assert.Contains(t, got.HumanInputRequest.Question, "3 days in Rome")
}

func TestConfirmation_Accept(t *testing.T) {
	node := nodes.Confirmation(testDeps(t, &scriptedLLM{}, nil), travelProfile())

	s := domain.NewAgentState("s", "t", domain.TaskTravel)
	s.CurrentPhase = domain.PhaseConfirmation
	s.UserMessage = domain.OptionConfirm
	u, err := node(context.Background(), s)
	require.NoError(t, err)

	got := apply(s, u)
	assert.Equal(t, domain.PhaseBooking, got.CurrentPhase)
	assert.False(t, got.Paused())
	assert.Empty(t, got.UserMessage)
}

func TestConfirmation_ChangesBecomeFeedback(t *testing.T) {
	node := nodes.Confirmation(testDeps(t, &scriptedLLM{}, nil), travelProfile())

	s := domain.NewAgentState("s", "t", domain.TaskTravel)
	s.CurrentPhase = domain.PhaseConfirmation
	s.UserMessage = "swap the hotel for something near the Colosseum"
	u, err := node(context.Background(), s)
	require.NoError(t, err)

	got := apply(s, u)
	assert.Equal(t, domain.PhaseRefinement, got.CurrentPhase)
	assert.Equal(t, "swap the hotel for something near the Colosseum", got.Feedback)
	assert.Empty(t, got.UserMessage)
}
