package domain_test

import (
	"testing"

	"github.com/aretw0/errand/pkg/domain"
	"github.com/stretchr/testify/assert"
)

type position struct {
	phase  domain.Phase
	cursor int
}

func TestProgress_MonotonicAcrossPhases(t *testing.T) {
	plan := make(domain.Plan, 4)
	for planLen := 1; planLen <= len(plan); planLen++ {
		walk := []position{{domain.PhaseClarification, 0}, {domain.PhasePlanning, 0}}
		for i := 0; i <= planLen; i++ {
			walk = append(walk, position{domain.PhaseExecution, i})
		}
		walk = append(walk, position{domain.PhaseValidation, planLen}, position{domain.PhaseComplete, planLen})

		var last float64
		for _, w := range walk {
			s := &domain.AgentState{CurrentPhase: w.phase, ExecutionPlan: plan[:planLen], CurrentStepIndex: w.cursor}
			got := domain.Progress(s)
			assert.GreaterOrEqual(t, got, last, "phase %s cursor %d of %d", w.phase, w.cursor, planLen)
			assert.LessOrEqual(t, got, 100.0)
			last = got
		}
		assert.Equal(t, 100.0, last)
	}
}

func TestProgress_MonotonicAcrossTravelPhases(t *testing.T) {
	plan := make(domain.Plan, 3)
	walk := []position{
		{domain.PhaseClarification, 0},
		{domain.PhaseResearch, 0},
		{domain.PhaseExecution, 0},
		{domain.PhaseExecution, 3},
		{domain.PhaseValidation, 3},
		{domain.PhaseItinerary, 3},
		{domain.PhaseConfirmation, 3},
		{domain.PhaseRefinement, 3},
		{domain.PhaseConfirmation, 3},
		{domain.PhaseBooking, 3},
		{domain.PhaseComplete, 4},
	}

	var last float64
	for _, w := range walk {
		s := &domain.AgentState{CurrentPhase: w.phase, ExecutionPlan: plan, CurrentStepIndex: w.cursor}
		got := domain.Progress(s)
		assert.GreaterOrEqual(t, got, last, "phase %s", w.phase)
		assert.LessOrEqual(t, got, 100.0)
		last = got
	}
	assert.Equal(t, 100.0, last)
}

func TestProgress_ExecutionBand(t *testing.T) {
	s := &domain.AgentState{
		CurrentPhase:     domain.PhaseExecution,
		ExecutionPlan:    make(domain.Plan, 4),
		CurrentStepIndex: 2,
	}
	assert.Equal(t, 75.0, domain.Progress(s))

	s.ExecutionPlan = nil
	s.CurrentStepIndex = 0
	assert.Equal(t, 60.0, domain.Progress(s))
}

func TestProgress_ErrorIsZero(t *testing.T) {
	assert.Zero(t, domain.Progress(&domain.AgentState{CurrentPhase: domain.PhaseError}))
}
